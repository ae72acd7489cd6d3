// Package reconciler implements the C5 lifecycle reconcilers of §4.5: one
// poll loop per managed entity kind that drives new -> skx_cr_created, the
// CertificateRequest loop that drives skx_cr_created -> cm_cert_created, the
// watch-driven finalizer that drives cm_cert_created -> ready, and the
// pruning sweeps. Each loop polls database rows (runLoop in poll.go, with
// the poll/busy intervals of LoopConfig) instead of watching CRDs.
package reconciler

import "time"

// Kind names a managed entity kind this reconciler drives through its
// lifecycle, mirroring models.CertRequestKind plus the CertificateRequest
// loop itself (which has no owning entity kind of its own).
type Kind string

const (
	KindManagementController Kind = "ManagementController"
	KindBackbone             Kind = "Backbone"
	KindAccessPoint          Kind = "AccessPoint"
	KindApplicationNetwork   Kind = "ApplicationNetwork"
	KindInteriorSite         Kind = "InteriorSite"
	KindNetworkCredential    Kind = "NetworkCredential"
	KindMemberInvitation     Kind = "MemberInvitation"
	KindMemberSite           Kind = "MemberSite"
	KindCertificateRequest   Kind = "CertificateRequest"
)

// allKinds lists every per-entity lifecycle loop kind (excludes
// KindCertificateRequest, which runs its own loop shape).
var allKinds = []Kind{
	KindManagementController,
	KindBackbone,
	KindAccessPoint,
	KindApplicationNetwork,
	KindInteriorSite,
	KindNetworkCredential,
	KindMemberInvitation,
	KindMemberSite,
}

// LoopConfig tunes a single poll loop's cadence.
type LoopConfig struct {
	// PollInterval is how often the loop looks for a new row to process
	// when the previous pass found nothing.
	PollInterval time.Duration

	// BusyInterval is how often the loop immediately re-polls after
	// successfully processing a row, so a backlog drains without waiting
	// out a full PollInterval between each row.
	BusyInterval time.Duration
}

// DefaultLoopConfig is responsive under load and quiet when idle.
var DefaultLoopConfig = LoopConfig{
	PollInterval: 2 * time.Second,
	BusyInterval: 10 * time.Millisecond,
}

// Certificate durations per kind (§4.5 "compute a requested duration,
// default per kind"). Backbones are the root of the trust forest so they
// get the longest-lived CA; every other kind gets a shorter duration.
const (
	DurationManagementController = 365 * 24 * time.Hour
	DurationBackboneCA           = 10 * 365 * 24 * time.Hour
	DurationInteriorSite         = 90 * 24 * time.Hour
	DurationAccessPoint          = 90 * 24 * time.Hour
	DurationApplicationNetwork   = 180 * 24 * time.Hour
	DurationNetworkCredential    = 90 * 24 * time.Hour
	DurationMemberInvitation     = 30 * 24 * time.Hour
	DurationMemberSite           = 90 * 24 * time.Hour
)
