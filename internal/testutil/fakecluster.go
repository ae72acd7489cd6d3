// Package testutil provides in-memory test doubles shared across this
// module's package tests: controllable fakes instead of generated mocks.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fabricpilot/vanctl/internal/cluster"
)

// FakeCluster is an in-memory cluster.Collaborator. Certificates become
// Ready immediately on EnsureCertificate unless AutoReady is false, in which
// case the test drives readiness explicitly via CompleteCertificate.
type FakeCluster struct {
	mu sync.Mutex

	AutoReady bool

	specs      map[string]cluster.CertificateSpec
	statuses   map[string]cluster.CertificateStatus
	secrets    map[string]cluster.Secret
	objects    map[string]cluster.ObjectSpec
	watchSubs  []chan string
	secretSubs []chan string
}

// AppliedObject returns the ObjectSpec last applied under name, for tests
// asserting on ApplyObject's callers (e.g. the Issuer a CA certificate's
// finalization applies).
func (f *FakeCluster) AppliedObject(name string) (cluster.ObjectSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[name]
	return obj, ok
}

// NewFakeCluster returns a FakeCluster with AutoReady enabled.
func NewFakeCluster() *FakeCluster {
	return &FakeCluster{
		AutoReady: true,
		specs:     make(map[string]cluster.CertificateSpec),
		statuses:  make(map[string]cluster.CertificateStatus),
		secrets:   make(map[string]cluster.Secret),
		objects:   make(map[string]cluster.ObjectSpec),
	}
}

func key(objectName, namespace string) string { return namespace + "/" + objectName }

func (f *FakeCluster) EnsureCertificate(ctx context.Context, spec cluster.CertificateSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key(spec.ObjectName, spec.Namespace)
	if _, exists := f.specs[k]; exists {
		return nil
	}
	f.specs[k] = spec

	if f.AutoReady {
		now := time.Now()
		f.statuses[k] = cluster.CertificateStatus{
			Ready:          true,
			ExpirationTime: now.Add(spec.Duration),
			RenewalTime:    now.Add(spec.Duration * 2 / 3),
		}
		f.secrets[k] = cluster.Secret{
			CACrt:  []byte("fake-ca-" + spec.ObjectName),
			TLSCrt: []byte("fake-crt-" + spec.ObjectName),
			TLSKey: []byte("fake-key-" + spec.ObjectName),
		}
		f.secretNotifyLocked(spec.ObjectName)
	} else {
		f.statuses[k] = cluster.CertificateStatus{}
	}

	f.notifyLocked(spec.ObjectName)
	return nil
}

// CompleteCertificate lets a test finish a pending certificate explicitly,
// used when AutoReady is false to exercise the §4.5 watch-refresh path.
func (f *FakeCluster) CompleteCertificate(objectName, namespace string, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(objectName, namespace)
	now := time.Now()
	f.statuses[k] = cluster.CertificateStatus{
		Ready:          true,
		ExpirationTime: now.Add(duration),
		RenewalTime:    now.Add(duration * 2 / 3),
	}
	f.secrets[k] = cluster.Secret{
		CACrt:  []byte("fake-ca-" + objectName),
		TLSCrt: []byte("fake-crt-" + objectName),
		TLSKey: []byte("fake-key-" + objectName),
	}
	f.secretNotifyLocked(objectName)
	f.notifyLocked(objectName)
}

// FailCertificate marks a pending certificate Failed, exercising the §4.5
// failure path into lifecycle "failed".
func (f *FakeCluster) FailCertificate(objectName, namespace, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(objectName, namespace)
	f.statuses[k] = cluster.CertificateStatus{Failed: true, FailureMessage: message}
	f.notifyLocked(objectName)
}

func (f *FakeCluster) notifyLocked(objectName string) {
	for _, ch := range f.watchSubs {
		select {
		case ch <- objectName:
		default:
		}
	}
}

func (f *FakeCluster) secretNotifyLocked(objectName string) {
	for _, ch := range f.secretSubs {
		select {
		case ch <- objectName:
		default:
		}
	}
}

func (f *FakeCluster) GetCertificateStatus(ctx context.Context, objectName, namespace string) (cluster.CertificateStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(objectName, namespace)
	s, ok := f.statuses[k]
	if !ok {
		return cluster.CertificateStatus{}, fmt.Errorf("no certificate %s", k)
	}
	return s, nil
}

func (f *FakeCluster) LoadCertificate(ctx context.Context, objectName, namespace string) (cluster.CertificateSpec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(objectName, namespace)
	s, ok := f.specs[k]
	if !ok {
		return cluster.CertificateSpec{}, fmt.Errorf("no certificate %s", k)
	}
	return s, nil
}

func (f *FakeCluster) ApplyObject(ctx context.Context, obj cluster.ObjectSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[obj.Name] = obj
	return nil
}

func (f *FakeCluster) LoadSecret(ctx context.Context, secretName, namespace string) (cluster.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(secretName, namespace)
	s, ok := f.secrets[k]
	if !ok {
		return cluster.Secret{}, fmt.Errorf("no secret %s", k)
	}
	return s, nil
}

func (f *FakeCluster) WatchCertificates(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	f.mu.Lock()
	f.watchSubs = append(f.watchSubs, ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *FakeCluster) WatchSecrets(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	f.mu.Lock()
	f.secretSubs = append(f.secretSubs, ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *FakeCluster) DeleteCertificate(ctx context.Context, objectName, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(objectName, namespace)
	delete(f.specs, k)
	delete(f.statuses, k)
	delete(f.secrets, k)
	return nil
}

var _ cluster.Collaborator = (*FakeCluster)(nil)
