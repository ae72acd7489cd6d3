package cluster

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/fabricpilot/vanctl/pkg/logging"
)

// certificateGVK is the cert-manager Certificate resource. No typed client
// for cert-manager is available in this module's dependency set, so the
// collaborator speaks to it through controller-runtime's unstructured
// client, keyed by GroupVersionKind the same way any CRD without a
// generated clientset gets addressed.
var certificateGVK = schema.GroupVersionKind{
	Group:   "cert-manager.io",
	Version: "v1",
	Kind:    "Certificate",
}

// k8sCollaborator implements Collaborator against a real cluster. It embeds
// client.WithWatch rather than the plain client.Client so WatchCertificates
// and WatchSecrets can open a real server-side watch without requiring a
// running controller-runtime Manager and its cache.
type k8sCollaborator struct {
	client.WithWatch
}

// NewK8sCollaborator builds a Collaborator backed by a controller-runtime
// watch-capable client constructed from cfg.
func NewK8sCollaborator(cfg *rest.Config) (Collaborator, error) {
	c, err := client.NewWithWatch(cfg, client.Options{})
	if err != nil {
		return nil, fmt.Errorf("creating cluster client: %w", err)
	}
	return &k8sCollaborator{WithWatch: c}, nil
}

func (k *k8sCollaborator) certificateObject(objectName, namespace string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{}
	u.SetGroupVersionKind(certificateGVK)
	u.SetName(objectName)
	u.SetNamespace(namespace)
	return u
}

func (k *k8sCollaborator) EnsureCertificate(ctx context.Context, spec CertificateSpec) error {
	existing := k.certificateObject(spec.ObjectName, spec.Namespace)
	err := k.Get(ctx, client.ObjectKey{Name: spec.ObjectName, Namespace: spec.Namespace}, existing)
	if err == nil {
		return nil // idempotent: already created
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("checking existing certificate %s/%s: %w", spec.Namespace, spec.ObjectName, err)
	}

	issuerRef := map[string]interface{}{
		"name": spec.IssuerName,
		"kind": "ClusterIssuer",
	}
	if spec.IssuerName == "" {
		issuerRef["name"] = "selfsigned-root"
	}

	obj := &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "cert-manager.io/v1",
			"kind":       "Certificate",
			"metadata": map[string]interface{}{
				"name":      spec.ObjectName,
				"namespace": spec.Namespace,
			},
			"spec": map[string]interface{}{
				"secretName": spec.SecretName,
				"isCA":       spec.IsCA,
				"dnsNames":   toInterfaceSlice(spec.DNSNames),
				"duration":   spec.Duration.String(),
				"issuerRef":  issuerRef,
			},
		},
	}

	if err := k.Create(ctx, obj); err != nil {
		return fmt.Errorf("creating certificate %s/%s: %w", spec.Namespace, spec.ObjectName, err)
	}
	logging.Info("Cluster", "created certificate object %s/%s", spec.Namespace, spec.ObjectName)
	return nil
}

func (k *k8sCollaborator) GetCertificateStatus(ctx context.Context, objectName, namespace string) (CertificateStatus, error) {
	obj := k.certificateObject(objectName, namespace)
	if err := k.Get(ctx, client.ObjectKey{Name: objectName, Namespace: namespace}, obj); err != nil {
		return CertificateStatus{}, fmt.Errorf("getting certificate %s/%s: %w", namespace, objectName, err)
	}

	conditions, _, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	var status CertificateStatus
	for _, c := range conditions {
		cond, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if cond["type"] != "Ready" {
			continue
		}
		if cond["status"] == "True" {
			status.Ready = true
		} else if cond["reason"] == "Failed" {
			status.Failed = true
			if msg, ok := cond["message"].(string); ok {
				status.FailureMessage = msg
			}
		}
	}

	if notAfter, ok, _ := unstructured.NestedString(obj.Object, "status", "notAfter"); ok {
		if t, err := time.Parse(time.RFC3339, notAfter); err == nil {
			status.ExpirationTime = t
		}
	}
	if renewal, ok, _ := unstructured.NestedString(obj.Object, "status", "renewalTime"); ok {
		if t, err := time.Parse(time.RFC3339, renewal); err == nil {
			status.RenewalTime = t
		}
	}

	return status, nil
}

func (k *k8sCollaborator) LoadSecret(ctx context.Context, secretName, namespace string) (Secret, error) {
	secret := &corev1.Secret{}
	if err := k.Get(ctx, client.ObjectKey{Name: secretName, Namespace: namespace}, secret); err != nil {
		return Secret{}, fmt.Errorf("loading secret %s/%s: %w", namespace, secretName, err)
	}
	return Secret{
		CACrt:  secret.Data["ca.crt"],
		TLSCrt: secret.Data["tls.crt"],
		TLSKey: secret.Data["tls.key"],
	}, nil
}

func (k *k8sCollaborator) DeleteCertificate(ctx context.Context, objectName, namespace string) error {
	obj := k.certificateObject(objectName, namespace)
	if err := k.Delete(ctx, obj); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting certificate %s/%s: %w", namespace, objectName, err)
	}
	secret := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{Name: objectName, Namespace: namespace}}
	if err := k.Delete(ctx, secret); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting secret %s/%s: %w", namespace, objectName, err)
	}
	return nil
}

// LoadCertificate reads back a previously-created Certificate object's
// spec, the counterpart of EnsureCertificate for callers that need more
// than GetCertificateStatus's ready/failed summary.
func (k *k8sCollaborator) LoadCertificate(ctx context.Context, objectName, namespace string) (CertificateSpec, error) {
	obj := k.certificateObject(objectName, namespace)
	if err := k.Get(ctx, client.ObjectKey{Name: objectName, Namespace: namespace}, obj); err != nil {
		return CertificateSpec{}, fmt.Errorf("loading certificate %s/%s: %w", namespace, objectName, err)
	}

	spec := CertificateSpec{ObjectName: objectName, Namespace: namespace}
	if secretName, ok, _ := unstructured.NestedString(obj.Object, "spec", "secretName"); ok {
		spec.SecretName = secretName
	}
	if isCA, ok, _ := unstructured.NestedBool(obj.Object, "spec", "isCA"); ok {
		spec.IsCA = isCA
	}
	if dnsNames, ok, _ := unstructured.NestedStringSlice(obj.Object, "spec", "dnsNames"); ok {
		spec.DNSNames = dnsNames
	}
	if durStr, ok, _ := unstructured.NestedString(obj.Object, "spec", "duration"); ok {
		if d, err := time.ParseDuration(durStr); err == nil {
			spec.Duration = d
		}
	}
	if issuerName, ok, _ := unstructured.NestedString(obj.Object, "spec", "issuerRef", "name"); ok {
		spec.IssuerName = issuerName
	}
	return spec, nil
}

// ApplyObject is the generic annotated upsert of §6: create obj if it
// doesn't exist, otherwise overwrite its spec and merge in its
// annotations, stamping every object this package writes with the
// controlled-by marker so they're identifiable from kubectl output.
func (k *k8sCollaborator) ApplyObject(ctx context.Context, obj ObjectSpec) error {
	gvk := schema.FromAPIVersionAndKind(obj.APIVersion, obj.Kind)
	existing := &unstructured.Unstructured{}
	existing.SetGroupVersionKind(gvk)

	err := k.Get(ctx, client.ObjectKey{Name: obj.Name, Namespace: obj.Namespace}, existing)
	if apierrors.IsNotFound(err) {
		u := &unstructured.Unstructured{}
		u.SetGroupVersionKind(gvk)
		u.SetName(obj.Name)
		if obj.Namespace != "" {
			u.SetNamespace(obj.Namespace)
		}
		u.SetAnnotations(controlledAnnotations(obj.Annotations))
		u.Object["spec"] = obj.Spec
		if err := k.Create(ctx, u); err != nil {
			return fmt.Errorf("applying %s object %s: %w", gvk.Kind, obj.Name, err)
		}
		logging.Info("Cluster", "created %s object %s", gvk.Kind, obj.Name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking existing %s object %s: %w", gvk.Kind, obj.Name, err)
	}

	annotations := existing.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	for k2, v := range controlledAnnotations(obj.Annotations) {
		annotations[k2] = v
	}
	existing.SetAnnotations(annotations)
	existing.Object["spec"] = obj.Spec
	if err := k.Update(ctx, existing); err != nil {
		return fmt.Errorf("updating %s object %s: %w", gvk.Kind, obj.Name, err)
	}
	return nil
}

func controlledAnnotations(extra map[string]string) map[string]string {
	out := map[string]string{"skx.io/controlled": "true"}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// WatchCertificates opens a real server-side watch on every cert-manager
// Certificate object, via the watch-capable client this collaborator is
// constructed with -- no controller-runtime Manager/cache required, so the
// reconciler's §4.5 watch-refresh path drives real finalization instead of
// sitting on a dead channel.
func (k *k8sCollaborator) WatchCertificates(ctx context.Context) (<-chan string, error) {
	list := &unstructured.UnstructuredList{}
	list.SetGroupVersionKind(schema.GroupVersionKind{
		Group:   certificateGVK.Group,
		Version: certificateGVK.Version,
		Kind:    certificateGVK.Kind + "List",
	})
	w, err := k.Watch(ctx, list)
	if err != nil {
		return nil, fmt.Errorf("watching certificates: %w", err)
	}
	return watchNames(ctx, w, func(obj runtime.Object) (string, bool) {
		u, ok := obj.(*unstructured.Unstructured)
		if !ok {
			return "", false
		}
		return u.GetName(), true
	}), nil
}

// WatchSecrets opens a real server-side watch on every Kubernetes Secret,
// for internal/syncbridge's push-on-rotation path.
func (k *k8sCollaborator) WatchSecrets(ctx context.Context) (<-chan string, error) {
	w, err := k.Watch(ctx, &corev1.SecretList{})
	if err != nil {
		return nil, fmt.Errorf("watching secrets: %w", err)
	}
	return watchNames(ctx, w, func(obj runtime.Object) (string, bool) {
		s, ok := obj.(*corev1.Secret)
		if !ok {
			return "", false
		}
		return s.GetName(), true
	}), nil
}

// watchNames adapts a watch.Interface into the object-name channel every
// Collaborator Watch* method returns: every add/modify/delete event is
// translated through extractName, duplicates included, since the
// reconciler's handling of each reported name is already idempotent. The
// channel closes when w's result channel closes or ctx is cancelled.
func watchNames(ctx context.Context, w watch.Interface, extractName func(runtime.Object) (string, bool)) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.ResultChan():
				if !ok {
					return
				}
				name, ok := extractName(event.Object)
				if !ok {
					continue
				}
				select {
				case out <- name:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
