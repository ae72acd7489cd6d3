package manifest

import (
	"encoding/json"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/yaml"
)

// RouterMode is the interior/edge distinction the router config map's JSON
// carries (§4.9).
type RouterMode string

const (
	RouterModeInterior RouterMode = "interior"
	RouterModeEdge     RouterMode = "edge"
)

// SiteRole distinguishes the backbone role (full router-management RBAC)
// from the member role (namespace-scoped, site-local only) a site's Role
// grants (§4.9 "role (backbone or member)").
type SiteRole string

const (
	SiteRoleBackbone SiteRole = "backbone"
	SiteRoleMember   SiteRole = "member"
)

// SiteSpec carries the fields every site-template builder in this file
// draws from; assembled by cmd/vanctl-controller's bundle endpoint from the
// relevant InteriorSite/MemberSite/BackboneAccessPoint rows.
type SiteSpec struct {
	Name      string
	Namespace string
	Platform  string // e.g. "kube", "podman"
	Mode      RouterMode
	Role      SiteRole
	NetworkID string // optional, ApplicationNetwork.ID
	TenantID  string // optional

	RouterImage    string
	DataplaneImage string // empty: platform has no separate dataplane container
}

func objectMeta(name, namespace string, labels map[string]string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:      name,
		Namespace: namespace,
		Labels:    labels,
		Annotations: map[string]string{
			AnnotationControlled: "true",
		},
	}
}

func siteLabels(site SiteSpec) map[string]string {
	return map[string]string{
		"skx.io/site": site.Name,
		"skx.io/role": string(site.Role),
	}
}

func marshalYAML(obj interface{}) (string, error) {
	out, err := yaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("manifest: marshal %T: %w", obj, err)
	}
	return string(out), nil
}

// ServiceAccount builds the site's controller-managed service account.
func ServiceAccount(site SiteSpec) (string, error) {
	sa := corev1.ServiceAccount{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ServiceAccount"},
		ObjectMeta: objectMeta(site.Name, site.Namespace, siteLabels(site)),
	}
	return marshalYAML(sa)
}

// Role builds the backbone or member Role a site's service account binds
// to. Every role may read ConfigMaps; backbone roles additionally manage
// the Secrets the link/access-point machinery creates at runtime; member
// roles are read-only on their own namespace's config.
func Role(site SiteSpec) (string, error) {
	rules := []rbacv1.PolicyRule{
		{APIGroups: []string{""}, Resources: []string{"configmaps"}, Verbs: []string{"get", "list", "watch"}},
	}
	if site.Role == SiteRoleBackbone {
		rules = append(rules, rbacv1.PolicyRule{
			APIGroups: []string{""},
			Resources: []string{"secrets"},
			Verbs:     []string{"get", "list", "watch", "create", "update"},
		})
	}
	r := rbacv1.Role{
		TypeMeta:   metav1.TypeMeta{APIVersion: "rbac.authorization.k8s.io/v1", Kind: "Role"},
		ObjectMeta: objectMeta(site.Name+"-"+string(site.Role), site.Namespace, siteLabels(site)),
		Rules:      rules,
	}
	return marshalYAML(r)
}

// RoleBinding binds the site's service account to its Role.
func RoleBinding(site SiteSpec) (string, error) {
	roleName := site.Name + "-" + string(site.Role)
	rb := rbacv1.RoleBinding{
		TypeMeta:   metav1.TypeMeta{APIVersion: "rbac.authorization.k8s.io/v1", Kind: "RoleBinding"},
		ObjectMeta: objectMeta(roleName, site.Namespace, siteLabels(site)),
		RoleRef: rbacv1.RoleRef{
			APIGroup: "rbac.authorization.k8s.io",
			Kind:     "Role",
			Name:     roleName,
		},
		Subjects: []rbacv1.Subject{
			{Kind: "ServiceAccount", Name: site.Name, Namespace: site.Namespace},
		},
	}
	return marshalYAML(rb)
}

// routerEntity is one [entityType, attributes] pair, the wire shape
// skupper-router's own JSON configuration format uses.
type routerEntity [2]interface{}

// RouterConfigMap builds the config map holding the router's JSON
// configuration: a `router` entity plus a `listener` for the site-api
// port, and — for interior mode — an additional `listener` accepting
// inter-router connections.
func RouterConfigMap(site SiteSpec) (string, error) {
	entities := []routerEntity{
		{"router", map[string]interface{}{
			"mode": string(site.Mode),
			"id":   site.Name,
		}},
		{"listener", map[string]interface{}{
			"name": "site-api",
			"role": "normal",
			"port": 8443,
		}},
	}
	if site.Mode == RouterModeInterior {
		entities = append(entities, routerEntity{"listener", map[string]interface{}{
			"name": "inter-router",
			"role": "inter-router",
			"port": 55671,
		}})
	}
	if site.NetworkID != "" {
		attrs := entities[0][1].(map[string]interface{})
		attrs["networkId"] = site.NetworkID
		if site.TenantID != "" {
			attrs["tenantId"] = site.TenantID
		}
	}

	raw, err := json.Marshal(entities)
	if err != nil {
		return "", fmt.Errorf("manifest: marshal router config: %w", err)
	}

	cm := corev1.ConfigMap{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: objectMeta(site.Name+"-router-config", site.Namespace, siteLabels(site)),
		Data: map[string]string{
			"skrouterd.json": string(raw),
		},
	}
	return marshalYAML(cm)
}

// Deployment builds the site's router deployment. The dataplane container
// is present only when site.DataplaneImage is set (some platforms bundle
// dataplane and router into a single process).
func Deployment(site SiteSpec) (string, error) {
	containers := []corev1.Container{
		{
			Name:  "router",
			Image: site.RouterImage,
			Ports: []corev1.ContainerPort{
				{Name: "site-api", ContainerPort: 8443},
			},
			VolumeMounts: []corev1.VolumeMount{
				{Name: "router-config", MountPath: "/etc/skupper-router", ReadOnly: true},
			},
		},
	}
	if site.DataplaneImage != "" {
		containers = append(containers, corev1.Container{
			Name:  "dataplane",
			Image: site.DataplaneImage,
		})
	}

	replicas := int32(1)
	dep := appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: objectMeta(site.Name, site.Namespace, siteLabels(site)),
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: siteLabels(site)},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: siteLabels(site)},
				Spec: corev1.PodSpec{
					ServiceAccountName: site.Name,
					Containers:         containers,
					Volumes: []corev1.Volume{
						{
							Name: "router-config",
							VolumeSource: corev1.VolumeSource{
								ConfigMap: &corev1.ConfigMapVolumeSource{
									LocalObjectReference: corev1.LocalObjectReference{Name: site.Name + "-router-config"},
								},
							},
						},
					},
				},
			},
		},
	}
	return marshalYAML(dep)
}

// SiteAPIService builds the site-api Service, only part of the bundle for
// kube-platform sites (§6).
func SiteAPIService(site SiteSpec) (string, error) {
	svc := corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: objectMeta(site.Name, site.Namespace, siteLabels(site)),
		Spec: corev1.ServiceSpec{
			Selector: siteLabels(site),
			Ports: []corev1.ServicePort{
				{Name: "site-api", Port: 8443, TargetPort: intstr.FromInt(8443)},
			},
		},
	}
	return marshalYAML(svc)
}

// SiteSecretSpec carries the state-key/hash pairs and optional inject tag
// the site's Secret is annotated with (§4.9, §6).
type SiteSecretSpec struct {
	SiteSpec
	CACrt, TLSCrt, TLSKey []byte

	// StateKey/StateHash/StateType/StateID/TLSInject are empty unless the
	// secret also carries one of §6's state-tracking annotations.
	StateKey  string
	StateHash string
	StateType string
	StateID   string
	TLSInject string
}

// SiteSecret builds the site's TLS secret, annotated with state keys/
// hashes and an optional inject tag, per §4.9.
func SiteSecret(spec SiteSecretSpec) (string, error) {
	meta := objectMeta(spec.Name+"-tls", spec.Namespace, siteLabels(spec.SiteSpec))
	if spec.StateKey != "" {
		meta.Annotations[AnnotationStateDir] = StateDirRemote
		meta.Annotations[AnnotationStateKey] = spec.StateKey
		meta.Annotations[AnnotationStateHash] = spec.StateHash
	}
	if spec.StateType != "" {
		meta.Annotations[AnnotationStateType] = spec.StateType
	}
	if spec.StateID != "" {
		meta.Annotations[AnnotationStateID] = spec.StateID
	}
	if spec.TLSInject != "" {
		meta.Annotations[AnnotationTLSInject] = spec.TLSInject
	}

	secret := corev1.Secret{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
		ObjectMeta: meta,
		Type:       corev1.SecretTypeTLS,
		Data: map[string][]byte{
			"ca.crt":  spec.CACrt,
			"tls.crt": spec.TLSCrt,
			"tls.key": spec.TLSKey,
		},
	}
	return marshalYAML(secret)
}

// LinkConfigMap builds the config map a member site downloads to dial an
// inter-router link, state-typed "link" per §6.
func LinkConfigMap(site SiteSpec, linkID, host, port string) (string, error) {
	cm := corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: func() metav1.ObjectMeta {
			m := objectMeta("link-"+linkID, site.Namespace, siteLabels(site))
			m.Annotations[AnnotationStateType] = StateTypeLink
			m.Annotations[AnnotationStateID] = linkID
			return m
		}(),
		Data: map[string]string{
			"host": host,
			"port": port,
		},
	}
	return marshalYAML(cm)
}

// AccessPointConfigMap builds the config map describing a backbone access
// point's connection parameters, state-typed "accesspoint" per §6.
func AccessPointConfigMap(site SiteSpec, apID, host, port string) (string, error) {
	cm := corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: func() metav1.ObjectMeta {
			m := objectMeta("access-"+apID, site.Namespace, siteLabels(site))
			m.Annotations[AnnotationStateType] = StateTypeAccessPoint
			m.Annotations[AnnotationStateID] = apID
			return m
		}(),
		Data: map[string]string{
			"host": host,
			"port": port,
		},
	}
	return marshalYAML(cm)
}

// AccessPointSecret builds the client credential secret a ready-bootstrap
// site's bundle includes for one of its access points (§6).
func AccessPointSecret(site SiteSpec, apID string, caCrt, tlsCrt, tlsKey []byte) (string, error) {
	meta := objectMeta("access-"+apID+"-tls", site.Namespace, siteLabels(site))
	meta.Annotations[AnnotationTLSInject] = TLSInjectAccessPoint
	meta.Annotations[AnnotationStateID] = apID

	secret := corev1.Secret{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
		ObjectMeta: meta,
		Type:       corev1.SecretTypeTLS,
		Data: map[string][]byte{
			"ca.crt":  caCrt,
			"tls.crt": tlsCrt,
			"tls.key": tlsKey,
		},
	}
	return marshalYAML(secret)
}
