package config

import "github.com/fabricpilot/vanctl/internal/apperr"

// Validate checks the fields Load cannot safely default: a DSN must be
// supplied (there is no reasonable default for a central relational store),
// and a controller name must resolve to something (ManagementControllers.Name
// is a primary key candidate, per §3).
func Validate(cfg Config) error {
	if cfg.Database.DSN == "" {
		return apperr.Validation("database.dsn is required")
	}
	if cfg.ControllerName == "" {
		return apperr.Validation("controllerName must be set (or SKX_CONTROLLER_NAME/HOSTNAME)")
	}
	if cfg.ClaimAddress == "" {
		return apperr.Validation("claimAddress must not be empty")
	}
	if cfg.StateSync.HeartbeatPeriod <= 0 {
		return apperr.Validation("stateSync.heartbeatPeriod must be positive")
	}
	return nil
}
