package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/fabricpilot/vanctl/internal/claim"
	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/syncbridge"
	"github.com/fabricpilot/vanctl/pkg/logging"
)

// PruneInterval is the cadence of the low-frequency pruning/renewal sweeps
// of §4.5/§12 -- deliberately much slower than the per-kind lifecycle
// loops, since pruning and renewal are housekeeping, not request latency.
const PruneInterval = 5 * time.Minute

type advanceFunc func(ctx context.Context, st *store.Store, m *Metrics) (bool, error)

var advanceFuncs = map[Kind]advanceFunc{
	KindManagementController: advanceManagementController,
	KindBackbone:             advanceBackbone,
	KindInteriorSite:         advanceInteriorSite,
	KindAccessPoint:          advanceAccessPoint,
	KindApplicationNetwork:   advanceApplicationNetwork,
	KindNetworkCredential:    advanceNetworkCredential,
	KindMemberInvitation:     advanceMemberInvitation,
	KindMemberSite:           advanceMemberSite,
}

// Manager owns every loop this package runs: one per-kind lifecycle
// advancer, the CertificateRequest loop, the secret-watch finalizer, and
// the pruning/renewal sweep, one struct holding every reconciler
// goroutine's lifetime.
type Manager struct {
	st        *store.Store
	cluster   cluster.Collaborator
	namespace string
	bridge    *syncbridge.Bridge
	claimSrv  *claim.Server
	metrics   *Metrics
	loopCfg   LoopConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager. bridge and claimSrv may be nil in tests that
// only exercise the lifecycle/certrequest loops.
func New(st *store.Store, coll cluster.Collaborator, namespace string, bridge *syncbridge.Bridge, claimSrv *claim.Server, metrics *Metrics) *Manager {
	if metrics == nil {
		metrics = GlobalMetrics()
	}
	return &Manager{
		st:        st,
		cluster:   coll,
		namespace: namespace,
		bridge:    bridge,
		claimSrv:  claimSrv,
		metrics:   metrics,
		loopCfg:   DefaultLoopConfig,
	}
}

// Start launches every loop as a goroutine. Call Stop to shut them down.
func (mgr *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	mgr.cancel = cancel

	for _, kind := range allKinds {
		kind := kind
		fn := advanceFuncs[kind]
		mgr.goLoop(ctx, func(ctx context.Context) {
			runLoop(ctx, mgr.loopCfg, func(ctx context.Context) (bool, error) {
				return fn(ctx, mgr.st, mgr.metrics)
			}, func(err error) {
				logging.Error(subsystem, err, "lifecycle advance failed for kind %s", kind)
			})
		})
	}

	mgr.goLoop(ctx, func(ctx context.Context) {
		runLoop(ctx, mgr.loopCfg, func(ctx context.Context) (bool, error) {
			return advanceCertificateRequest(ctx, mgr.st, mgr.cluster, mgr.namespace, time.Now, mgr.metrics)
		}, func(err error) {
			logging.Error(subsystem, err, "certificate request advance failed")
		})
	})

	mgr.goLoop(ctx, mgr.runFinalizer)

	mgr.goLoop(ctx, func(ctx context.Context) {
		runLoop(ctx, LoopConfig{PollInterval: PruneInterval, BusyInterval: PruneInterval}, func(ctx context.Context) (bool, error) {
			return mgr.runPruneSweep(ctx)
		}, func(err error) {
			logging.Error(subsystem, err, "prune sweep failed")
		})
	})
}

// Stop cancels every loop and waits for them to exit.
func (mgr *Manager) Stop() {
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.wg.Wait()
}

func (mgr *Manager) goLoop(ctx context.Context, fn func(ctx context.Context)) {
	mgr.wg.Add(1)
	go func() {
		defer mgr.wg.Done()
		fn(ctx)
	}()
}

// runFinalizer reconnects watchFinalizer with a short backoff if the
// collaborator's watch stream ends or errors, so a transient cluster
// disconnect doesn't permanently stop finalization.
func (mgr *Manager) runFinalizer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := watchFinalizer(ctx, mgr.st, mgr.cluster, mgr.namespace, mgr.bridge, mgr.claimSrv, mgr.metrics); err != nil {
			logging.Error(subsystem, err, "certificate watch ended, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (mgr *Manager) runPruneSweep(ctx context.Context) (bool, error) {
	renewed, err := pruneExpiredCertificates(ctx, mgr.st, time.Now, mgr.metrics)
	if err != nil {
		return false, err
	}
	orphans, err := pruneOrphanedCertificateRequests(ctx, mgr.st, mgr.cluster, mgr.namespace, mgr.metrics)
	if err != nil {
		return renewed > 0, err
	}
	dead, err := pruneUnreferencedCertificates(ctx, mgr.st, mgr.cluster, mgr.namespace, mgr.metrics)
	if err != nil {
		return renewed+orphans > 0, err
	}
	return renewed+orphans+dead > 0, nil
}
