// Package cluster is the cluster collaborator of §5: the boundary every
// reconciler loop calls through to create cert-manager Certificate objects,
// load the Secrets they produce, and watch for changes. Adapted from a
// typed Kubernetes client wrapper onto the CertificateRequest/
// TlsCertificate surface this system needs.
package cluster

import (
	"context"
	"time"
)

// CertificateSpec describes the cert-manager Certificate object a reconciler
// wants created for one CertificateRequest row (§4.5).
type CertificateSpec struct {
	ObjectName string
	Namespace  string
	DNSNames   []string
	IsCA       bool
	IssuerName string // empty for the root self-signed issuer
	Duration   time.Duration
	SecretName string
}

// CertificateStatus is what the collaborator reports back once a
// cert-manager Certificate reaches (or fails to reach) Ready.
type CertificateStatus struct {
	Ready          bool
	Failed         bool
	FailureMessage string
	ExpirationTime time.Time
	RenewalTime    time.Time
}

// Secret is the decoded content of a Kubernetes TLS secret: the credential
// bytes the claim server and site bundle builder embed into client configs
// (§4.8, §4.9).
type Secret struct {
	CACrt  []byte
	TLSCrt []byte
	TLSKey []byte
}

// ObjectSpec describes one manifest object ApplyObject creates or updates:
// a generic annotated upsert over any GroupVersionKind, for objects this
// package has no dedicated typed method for -- Issuers/ClusterIssuers
// (§4.5's trust-forest chaining) and, eventually, the per-site objects
// internal/manifest renders (§4.9).
type ObjectSpec struct {
	APIVersion  string
	Kind        string
	Name        string
	Namespace   string // empty for a cluster-scoped object
	Spec        map[string]interface{}
	Annotations map[string]string
}

// NewIssuerObject builds the ObjectSpec for the cert-manager ClusterIssuer
// that must exist for every CA certificate before its descendants can
// reference it as an issuer (§4.5's trust forest): named identically to
// the CA's own Certificate object, matching the naming convention
// internal/reconciler's issuerObjectName already assumes when it resolves
// a descendant request's IssuerName to its parent TlsCertificate's
// ObjectName.
func NewIssuerObject(objectName, secretName string) ObjectSpec {
	return ObjectSpec{
		APIVersion: "cert-manager.io/v1",
		Kind:       "ClusterIssuer",
		Name:       objectName,
		Spec: map[string]interface{}{
			"ca": map[string]interface{}{
				"secretName": secretName,
			},
		},
	}
}

// Collaborator is the interface internal/reconciler, internal/claim,
// internal/syncbridge, internal/backbonelink and both cmd binaries depend on: narrow and side-effecting, mirroring a
// typed client interface over a CRD surface.
type Collaborator interface {
	// EnsureCertificate creates the cert-manager Certificate object for spec
	// if it doesn't already exist; idempotent on ObjectName.
	EnsureCertificate(ctx context.Context, spec CertificateSpec) error

	// GetCertificateStatus polls the current status of a previously-created
	// Certificate object.
	GetCertificateStatus(ctx context.Context, objectName, namespace string) (CertificateStatus, error)

	// LoadCertificate reads back a previously-created Certificate object's
	// full spec, for callers that need more than GetCertificateStatus's
	// ready/failed/expiry summary (e.g. an operator inspecting what was
	// actually applied).
	LoadCertificate(ctx context.Context, objectName, namespace string) (CertificateSpec, error)

	// LoadSecret reads the Secret a Ready Certificate produced.
	LoadSecret(ctx context.Context, secretName, namespace string) (Secret, error)

	// ApplyObject creates or updates an arbitrary manifest object (§6's
	// generic annotated upsert), used for objects with no dedicated typed
	// method -- Issuers chained off a CA certificate chief among them.
	ApplyObject(ctx context.Context, obj ObjectSpec) error

	// WatchCertificates streams object names whose cert-manager Certificate
	// status changed, until ctx is cancelled. Used by the §4.5 watch-refresh
	// path so reconcilers don't have to poll every request.
	WatchCertificates(ctx context.Context) (<-chan string, error)

	// WatchSecrets streams object names whose Kubernetes Secret changed,
	// until ctx is cancelled. Distinct from WatchCertificates because not
	// every Secret this system cares about is owned by a cert-manager
	// Certificate; internal/syncbridge uses it to push a fresh local-state
	// hash to peers as soon as a TLS secret rotates, instead of waiting for
	// their own heartbeat-driven pull.
	WatchSecrets(ctx context.Context) (<-chan string, error)

	// DeleteCertificate removes the Certificate object and its Secret, used
	// by the pruning sweeps of §4.5 when an owning entity is deleted.
	DeleteCertificate(ctx context.Context, objectName, namespace string) error
}
