// Package logging is the ambient logging stack shared by every package in
// this module: a thin wrapper over log/slog keyed by "subsystem" rather than
// Go package name (e.g. "Reconciler:AccessPoint", "StateSync", "ClaimServer"),
// so operators can grep one name across goroutines that span packages.
//
// InitForCLI is called once from cmd/vanctl-controller's main before any
// other package starts a goroutine. Packages that might be exercised by a
// test binary directly (without main ever running) still get a usable
// default logger via this package's init().
package logging
