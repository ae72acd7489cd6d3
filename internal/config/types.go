// Package config loads the controller's static configuration: the database
// DSN, cluster namespace, heartbeat tunables and CA issuer references from
// §4.3/§4.5/§6, via a YAML-file-plus-env-overlay loader.
package config

import "time"

// Config is the top-level controller configuration.
type Config struct {
	// Database is the relational store DSN and pool tuning (§6 database
	// collaborator).
	Database DatabaseConfig `yaml:"database"`

	// Cluster configures the cluster collaborator (§6).
	Cluster ClusterConfig `yaml:"cluster"`

	// ControllerName seeds ManagementControllers.Name (§6 CLI/env). Overridden
	// by SKX_CONTROLLER_NAME if set; HOSTNAME fills it only when it is still
	// empty after that.
	ControllerName string `yaml:"controllerName,omitempty"`

	// StateSync holds heartbeat/beacon window settings for §4.3. Validate
	// checks HeartbeatPeriod; the state-sync engine runs on its own fixed
	// timings and does not read these values.
	StateSync StateSyncConfig `yaml:"stateSync"`

	// Reconciler holds polling-cadence settings for §4.5. No reconciler or
	// link-manager loop reads them; each uses its own built-in defaults.
	Reconciler ReconcilerConfig `yaml:"reconciler"`

	// ClaimAddress is the messaging address the claim server listens on
	// (§6, default "skx/claim").
	ClaimAddress string `yaml:"claimAddress,omitempty"`

	// ManagementSyncAddress is the management controller's fixed sync
	// address (§6, default "skx/sync/mgmtcontroller").
	ManagementSyncAddress string `yaml:"managementSyncAddress,omitempty"`

	// MetricsAddr is the host:port the Prometheus /metrics endpoint binds to.
	MetricsAddr string `yaml:"metricsAddr,omitempty"`

	// LogLevel is one of debug|info|warn|error.
	LogLevel string `yaml:"logLevel,omitempty"`

	// LogFormat is one of text|json.
	LogFormat string `yaml:"logFormat,omitempty"`

	// Bundle configures the §6 site bootstrap bundle download endpoint.
	Bundle BundleConfig `yaml:"bundle"`
}

// BundleConfig names the router/dataplane container images the bundle
// download endpoint stamps into a site's Deployment object, and the
// address that endpoint listens on.
type BundleConfig struct {
	Addr           string `yaml:"addr,omitempty"`
	RouterImage    string `yaml:"routerImage,omitempty"`
	DataplaneImage string `yaml:"dataplaneImage,omitempty"`
}

// DatabaseConfig configures the relational store (internal/store).
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns,omitempty"`
	MaxIdleConns    int           `yaml:"maxIdleConns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime,omitempty"`
}

// ClusterConfig configures the cluster collaborator (internal/cluster).
//
// StandaloneNamespace mirrors SKX_STANDALONE_NAMESPACE (§6): when set, the
// controller runs outside the cluster against the given namespace using a
// local kubeconfig instead of in-cluster config.
type ClusterConfig struct {
	Namespace           string `yaml:"namespace,omitempty"`
	StandaloneNamespace string `yaml:"standaloneNamespace,omitempty"`
	Kubeconfig          string `yaml:"kubeconfig,omitempty"`
}

// StateSyncConfig holds §4.3's beacon/heartbeat window settings.
type StateSyncConfig struct {
	BeaconInterval  time.Duration `yaml:"beaconInterval,omitempty"`
	HeartbeatWindow time.Duration `yaml:"heartbeatWindow,omitempty"`
	HeartbeatPeriod time.Duration `yaml:"heartbeatPeriod,omitempty"`
	RequestTimeout  time.Duration `yaml:"requestTimeout,omitempty"`
}

// ReconcilerConfig holds §4.5's per-loop polling cadence settings.
type ReconcilerConfig struct {
	EmptyPollInterval time.Duration `yaml:"emptyPollInterval,omitempty"`
	ErrorBackoff      time.Duration `yaml:"errorBackoff,omitempty"`

	// LinkManagerInterval and LinkManagerErrorBackoff hold §4.4's settings.
	LinkManagerInterval     time.Duration `yaml:"linkManagerInterval,omitempty"`
	LinkManagerErrorBackoff time.Duration `yaml:"linkManagerErrorBackoff,omitempty"`
}
