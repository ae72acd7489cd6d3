package manifest

// Annotation keys the core writes and reads on cluster objects (§6).
const (
	AnnotationControlled = "skx.io/controlled"
	AnnotationStateDir   = "skx.io/state-dir"
	AnnotationStateKey   = "skx.io/state-key"
	AnnotationStateHash  = "skx.io/state-hash"
	AnnotationStateType  = "skx.io/state-type"
	AnnotationStateID    = "skx.io/state-id"
	AnnotationTLSInject  = "skx.io/tls-inject"
	AnnotationDBLink     = "skx.io/skx-dblink"
	AnnotationIssuerLink = "skx.io/skx-issuerlink"
)

// StateDirRemote is the sole value §6 defines for AnnotationStateDir.
const StateDirRemote = "remote"

// StateType values for AnnotationStateType.
const (
	StateTypeLink        = "link"
	StateTypeAccessPoint = "accesspoint"
)

// TLSInject values for AnnotationTLSInject.
const (
	TLSInjectSite        = "site"
	TLSInjectAccessPoint = "accesspoint"
)

// IssuerLinkRoot is AnnotationIssuerLink's value for a self-signed root CA.
const IssuerLinkRoot = "root"
