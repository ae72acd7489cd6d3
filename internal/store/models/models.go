// Package models defines the Go-side row types for every table in §3/§6 of
// the specification. The SQL schema in internal/store/schema.sql is the
// authoritative wire-format; these structs mirror it field for field via
// `db` tags consumed by sqlx.
package models

import "time"

// Lifecycle is the shared progression every managed entity follows:
//
//	partial (optional) -> new -> skx_cr_created -> cm_cert_created -> ready -> active (sites only) -> expired/failed
type Lifecycle string

const (
	LifecyclePartial       Lifecycle = "partial"
	LifecycleNew           Lifecycle = "new"
	LifecycleSkxCrCreated  Lifecycle = "skx_cr_created"
	LifecycleCmCertCreated Lifecycle = "cm_cert_created"
	LifecycleReady         Lifecycle = "ready"
	LifecycleActive        Lifecycle = "active"
	LifecycleExpired       Lifecycle = "expired"
	LifecycleFailed        Lifecycle = "failed"
)

// AccessPointKind enumerates the five ingress kinds of §3.
type AccessPointKind string

const (
	AccessPointClaim  AccessPointKind = "claim"
	AccessPointPeer   AccessPointKind = "peer"
	AccessPointMember AccessPointKind = "member"
	AccessPointManage AccessPointKind = "manage"
	AccessPointVan    AccessPointKind = "van"
)

// DeploymentState is the output alphabet of the §4.6 evaluator.
type DeploymentState string

const (
	DeploymentNotReady       DeploymentState = "not-ready"
	DeploymentReadyBootstrap DeploymentState = "ready-bootstrap"
	DeploymentReadyAutomatic DeploymentState = "ready-automatic"
	DeploymentDeployed       DeploymentState = "deployed"
)

// PeerClass is one of the three classes the state-sync engine dispatches on
// (§4.3, glossary "Class").
type PeerClass string

const (
	ClassManagement PeerClass = "management"
	ClassBackbone   PeerClass = "backbone"
	ClassMember     PeerClass = "member"
)

// CertRequestKind names which entity kind a CertificateRequest was raised
// for; used to pick the per-kind defaults in §4.5 (name, flags, DNS name,
// issuer reference).
type CertRequestKind string

const (
	CertRequestManagementController CertRequestKind = "ManagementController"
	CertRequestBackbone             CertRequestKind = "Backbone"
	CertRequestAccessPoint          CertRequestKind = "AccessPoint"
	CertRequestApplicationNetwork   CertRequestKind = "ApplicationNetwork"
	CertRequestInteriorSite         CertRequestKind = "InteriorSite"
	CertRequestNetworkCredential    CertRequestKind = "NetworkCredential"
	CertRequestMemberInvitation     CertRequestKind = "MemberInvitation"
	CertRequestMemberSite           CertRequestKind = "MemberSite"
)

// ManagementController is the bootstrap singleton row the backbone-link
// manager waits on (§4.4).
type ManagementController struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Lifecycle     Lifecycle `db:"lifecycle"`
	CertificateID *string   `db:"certificate_id"`
	FailureText   *string   `db:"failure_text"`
	CreatedAt     time.Time `db:"created_at"`
}

// Backbone is an administrative grouping of interior router sites (§3).
type Backbone struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Lifecycle     Lifecycle `db:"lifecycle"`
	CertificateID *string   `db:"certificate_id"` // CA credential reference
	IsManagement  bool      `db:"is_management"`
	FailureText   *string   `db:"failure_text"`
	CreatedAt     time.Time `db:"created_at"`
}

// InteriorSite is a router participating in a backbone (§3).
type InteriorSite struct {
	ID              string          `db:"id"`
	BackboneID      string          `db:"backbone_id"`
	Name            string          `db:"name"`
	Lifecycle       Lifecycle       `db:"lifecycle"`
	DeploymentState DeploymentState `db:"deployment_state"`
	Platform        string          `db:"platform"` // e.g. "kube"
	CertificateID   *string         `db:"certificate_id"`
	FirstActiveTime *time.Time      `db:"first_active_time"`
	LastHeartbeat   *time.Time      `db:"last_heartbeat"`
	FailureText     *string         `db:"failure_text"`
	CreatedAt       time.Time       `db:"created_at"`
}

// BackboneAccessPoint is an ingress on an interior site (§3).
type BackboneAccessPoint struct {
	ID             string          `db:"id"`
	InteriorSiteID string          `db:"interior_site_id"`
	Kind           AccessPointKind `db:"kind"`
	Lifecycle      Lifecycle       `db:"lifecycle"`
	Host           *string         `db:"host"`
	Port           *string         `db:"port"`
	BindHost       *string         `db:"bind_host"`
	CertificateID  *string         `db:"certificate_id"` // server credential
	FailureText    *string         `db:"failure_text"`
	CreatedAt      time.Time       `db:"created_at"`
}

// InterRouterLink is a directed backbone-to-backbone edge via a peer AP (§3).
type InterRouterLink struct {
	ID                     string    `db:"id"`
	ConnectingInteriorSite string    `db:"connecting_interior_site_id"`
	AccessPointID          string    `db:"access_point_id"`
	Cost                   int       `db:"cost"`
	CreatedAt              time.Time `db:"created_at"`
}

// ApplicationNetwork is a tenant network layered over one backbone (§3).
type ApplicationNetwork struct {
	ID            string     `db:"id"`
	BackboneID    string     `db:"backbone_id"`
	Name          string     `db:"name"` // human VAN identifier
	Lifecycle     Lifecycle  `db:"lifecycle"`
	CertificateID *string    `db:"certificate_id"`
	ValidFrom     *time.Time `db:"valid_from"`
	ValidUntil    *time.Time `db:"valid_until"`
	Connected     bool       `db:"connected"`
	FailureText   *string    `db:"failure_text"`
	CreatedAt     time.Time  `db:"created_at"`
}

// NetworkCredential is the client credential a VAN uses to join the
// management backbone (§3).
type NetworkCredential struct {
	ID            string    `db:"id"`
	NetworkID     string    `db:"network_id"`
	Lifecycle     Lifecycle `db:"lifecycle"`
	CertificateID *string   `db:"certificate_id"`
	CreatedAt     time.Time `db:"created_at"`
}

// MemberInvitation is a claim token for onboarding members (§3).
type MemberInvitation struct {
	ID               string     `db:"id"`
	NetworkID        string     `db:"network_id"`
	Name             string     `db:"name"`
	Lifecycle        Lifecycle  `db:"lifecycle"`
	CertificateID    *string    `db:"certificate_id"` // claim credential
	Deadline         *time.Time `db:"deadline"`
	Classes          string     `db:"classes"` // comma-separated SiteClasses
	InstanceLimit    int        `db:"instance_limit"`
	InstanceCount    int        `db:"instance_count"`
	NamePrefix       string     `db:"name_prefix"`
	ClaimAccessPoint string     `db:"claim_access_point_id"`
	FailureText      *string    `db:"failure_text"`
	CreatedAt        time.Time  `db:"created_at"`
}

// EdgeLink associates an invitation with a member-kind AP (§3).
type EdgeLink struct {
	ID            string    `db:"id"`
	InvitationID  string    `db:"invitation_id"`
	AccessPointID string    `db:"access_point_id"`
	Priority      int       `db:"priority"`
	CreatedAt     time.Time `db:"created_at"`
}

// MemberSite is a site that redeemed an invitation (§3).
type MemberSite struct {
	ID              string     `db:"id"`
	InvitationID    string     `db:"invitation_id"`
	Name            string     `db:"name"`
	Lifecycle       Lifecycle  `db:"lifecycle"`
	CertificateID   *string    `db:"certificate_id"`
	SiteClasses     string     `db:"site_classes"` // comma-separated
	FirstActiveTime *time.Time `db:"first_active_time"`
	LastHeartbeat   *time.Time `db:"last_heartbeat"`
	FailureText     *string    `db:"failure_text"`
	CreatedAt       time.Time  `db:"created_at"`
}

// TlsCertificate is the opaque credential record of §3. SignedBy forms a
// trust forest rooted at NULL, the external root issuer.
type TlsCertificate struct {
	ID             string    `db:"id"`
	ObjectName     string    `db:"object_name"` // cluster-side secret/cert name
	IsCA           bool      `db:"is_ca"`
	SignedBy       *string   `db:"signed_by"`
	ExpirationTime time.Time `db:"expiration_time"`
	RenewalTime    time.Time `db:"renewal_time"`
	CreatedAt      time.Time `db:"created_at"`
}

// CertificateRequest is a queued certificate job (§3).
type CertificateRequest struct {
	ID          string          `db:"id"`
	Kind        CertRequestKind `db:"kind"`
	TargetID    string          `db:"target_id"` // owning entity row id
	IssuerID    *string         `db:"issuer_id"` // parent TlsCertificate, nil == root
	Duration    time.Duration   `db:"duration_ns"`
	RequestTime time.Time       `db:"request_time"` // "not before"
	Lifecycle   Lifecycle       `db:"lifecycle"`    // new -> cm_cert_created
	CreatedAt   time.Time       `db:"created_at"`
}

// Configuration is a generic controller-wide key/value row.
type Configuration struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// TargetPlatform names a supported site platform (e.g. "kube", "podman"),
// used by compose simple-body template platform filters (§4.10).
type TargetPlatform struct {
	Name string `db:"name"`
}

// BlockType enumerates the six compose-engine block types (§4.10).
type BlockType string

const (
	BlockTypeComponent BlockType = "component"
	BlockTypeConnector BlockType = "connector"
	BlockTypeTopLevel  BlockType = "toplevel"
	BlockTypeMixed     BlockType = "mixed"
	BlockTypeIngress   BlockType = "ingress"
	BlockTypeEgress    BlockType = "egress"
)

// Polarity is north or south, the two ends a binding can pair (§4.10).
type Polarity string

const (
	PolarityNorth Polarity = "north"
	PolaritySouth Polarity = "south"
)

// Allocation controls whether an instance becomes site-resident (§4.10).
type Allocation string

const (
	AllocationIndependent Allocation = "independent"
	AllocationShared      Allocation = "shared"
)

// InterfaceRole names the role two bound interfaces must share (§4.10).
type InterfaceRole struct {
	Name string `db:"name"`
}

// LibraryBlock is one revision of a named block (§4.10).
type LibraryBlock struct {
	ID         string     `db:"id"`
	Name       string     `db:"name"`
	Revision   int        `db:"revision"`
	Type       BlockType  `db:"type"`
	AllowNorth bool       `db:"allow_north"`
	AllowSouth bool       `db:"allow_south"`
	Allocation Allocation `db:"allocation"`
	Composite  bool       `db:"composite"`
	BodyJSON   string     `db:"body_json"` // simple-body templates or composite child map
	CreatedAt  time.Time  `db:"created_at"`
}

// Application is a declarative composition rooted at one LibraryBlock (§4.10).
type Application struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	RootBlockID string    `db:"root_block_id"`
	Lifecycle   string    `db:"lifecycle"` // new|build-warnings|build-errors|ready|deploy-errors
	BuildLog    string    `db:"build_log"`
	DeployLog   string    `db:"deploy_log"`
	CreatedAt   time.Time `db:"created_at"`
}

// InstanceBlock is the instantiation of a LibraryBlock within an Application
// (§4.10). Path is "/"-separated starting at the root.
type InstanceBlock struct {
	ID             string    `db:"id"`
	ApplicationID  string    `db:"application_id"`
	LibraryBlockID string    `db:"library_block_id"`
	Path           string    `db:"path"`
	ConfigJSON     string    `db:"config_json"`
	AllocateToSite bool      `db:"allocate_to_site"`
	CreatedAt      time.Time `db:"created_at"`
}

// Binding pairs two opposite-polarity, same-role interfaces of two
// InstanceBlocks (§4.10).
type Binding struct {
	ID            string    `db:"id"`
	ApplicationID string    `db:"application_id"`
	NorthPath     string    `db:"north_path"` // instance path + "#" + interface name
	SouthPath     string    `db:"south_path"`
	Role          string    `db:"role"`
	CreatedAt     time.Time `db:"created_at"`
}

// DeployedApplication records that an Application targets a VAN (§4.10).
type DeployedApplication struct {
	ID            string    `db:"id"`
	ApplicationID string    `db:"application_id"`
	NetworkID     string    `db:"network_id"`
	CreatedAt     time.Time `db:"created_at"`
}

// SiteData holds the concatenated per-site YAML produced by Deploy (§4.10).
type SiteData struct {
	ID            string    `db:"id"`
	MemberSiteID  string    `db:"member_site_id"`
	ApplicationID string    `db:"application_id"`
	YAML          string    `db:"yaml"`
	UpdatedAt     time.Time `db:"updated_at"`
}
