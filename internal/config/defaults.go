package config

import "time"

// Default returns a Config with every tunable from §4.3/§4.4/§4.5/§6 set to
// its spec-mandated default.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Cluster: ClusterConfig{
			Namespace: "default",
		},
		ClaimAddress:          "skx/claim",
		ManagementSyncAddress: "skx/sync/mgmtcontroller",
		MetricsAddr:           "localhost:9090",
		LogLevel:              "info",
		LogFormat:             "text",
		Bundle: BundleConfig{
			Addr:           "localhost:9091",
			RouterImage:    "quay.io/skupper/skupper-router:main",
			DataplaneImage: "",
		},
		StateSync: StateSyncConfig{
			BeaconInterval:  5 * time.Second,
			HeartbeatWindow: 5 * time.Second,
			HeartbeatPeriod: 10 * time.Second,
			RequestTimeout:  5 * time.Second,
		},
		Reconciler: ReconcilerConfig{
			EmptyPollInterval:       2 * time.Second,
			ErrorBackoff:            10 * time.Second,
			LinkManagerInterval:     30 * time.Second,
			LinkManagerErrorBackoff: 10 * time.Second,
		},
	}
}
