// Package backbonelink implements the backbone-link manager of §4.4 (C4):
// it owns the map from backbone id to an open transport session toward that
// backbone's ready "manage" access point, polling the database on a fixed
// interval and notifying registered subscribers as sessions open and close.
package backbonelink

import (
	"context"
	"sync"
	"time"

	"github.com/fabricpilot/vanctl/internal/apperr"
	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/internal/transport"
	"github.com/fabricpilot/vanctl/pkg/logging"
)

const (
	// DefaultPollInterval is the steady-state reconcile cadence (§4.4).
	DefaultPollInterval = 30 * time.Second
	// DefaultErrorBackoff is used after a failed transaction (§4.4).
	DefaultErrorBackoff = 10 * time.Second
)

// Dialer opens a transport session to a manage access point's host:port,
// using the management controller's credential for TLS. The concrete
// implementation lives alongside the cluster collaborator / main wiring;
// this package only depends on the narrow function signature.
type Dialer func(ctx context.Context, host, port string) (*transport.Session, error)

// OnLinkAdded is called when a session to backboneID newly opens.
type OnLinkAdded func(backboneID string, session *transport.Session)

// OnLinkDeleted is called when a session to backboneID closes.
type OnLinkDeleted func(backboneID string)

type subscriber struct {
	onAdded   OnLinkAdded
	onDeleted OnLinkDeleted
}

// Manager is the C4 component. Call Run in its own goroutine; it polls
// until ctx is cancelled.
type Manager struct {
	st             *store.Store
	cluster        cluster.Collaborator
	dial           Dialer
	controllerName string
	pollInterval   time.Duration
	errorBackoff   time.Duration

	mu            sync.Mutex
	bbConnections map[string]*transport.Session
	registrations []subscriber
}

// NewManager constructs a Manager. controllerName is the configured
// ManagementController.Name this process bootstraps as (§4.4, §6).
func NewManager(st *store.Store, coll cluster.Collaborator, dial Dialer, controllerName string) *Manager {
	return &Manager{
		st:             st,
		cluster:        coll,
		dial:           dial,
		controllerName: controllerName,
		pollInterval:   DefaultPollInterval,
		errorBackoff:   DefaultErrorBackoff,
		bbConnections:  make(map[string]*transport.Session),
	}
}

// Subscribe registers a pair of callbacks, immediately invoking onAdded
// synchronously for every session already open (§4.4).
func (m *Manager) Subscribe(onAdded OnLinkAdded, onDeleted OnLinkDeleted) {
	m.mu.Lock()
	m.registrations = append(m.registrations, subscriber{onAdded: onAdded, onDeleted: onDeleted})
	snapshot := make(map[string]*transport.Session, len(m.bbConnections))
	for k, v := range m.bbConnections {
		snapshot[k] = v
	}
	m.mu.Unlock()

	if onAdded != nil {
		for backboneID, session := range snapshot {
			onAdded(backboneID, session)
		}
	}
}

// Run polls forever until ctx is cancelled. It first waits for bootstrap
// (the configured ManagementController to reach ready), then reconciles on
// pollInterval, backing off to errorBackoff after a failed transaction.
func (m *Manager) Run(ctx context.Context) {
	if err := m.awaitBootstrap(ctx); err != nil {
		if ctx.Err() == nil {
			logging.Error("BackboneLink", err, "bootstrap failed")
		}
		return
	}

	for {
		interval := m.pollInterval
		if err := m.reconcileOnce(ctx); err != nil {
			logging.Error("BackboneLink", err, "reconcile failed")
			interval = m.errorBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// awaitBootstrap polls and inserts the ManagementController row if missing,
// returning once it reaches ready (§4.4).
func (m *Manager) awaitBootstrap(ctx context.Context) error {
	for {
		mc, err := store.GetManagementControllerByName(ctx, m.st.Queryer(), m.controllerName)
		if apperr.Is(err, apperr.KindNotFound) {
			if _, insertErr := store.InsertManagementController(ctx, m.st.Queryer(), m.controllerName); insertErr != nil {
				logging.Error("BackboneLink", insertErr, "inserting management controller row")
			}
		} else if err != nil {
			logging.Error("BackboneLink", err, "loading management controller row")
		} else if mc.Lifecycle == models.LifecycleReady {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

// reconcileOnce queries ready manage-kind APs on ready backbones, diffs
// against the current session map, and opens/closes sessions accordingly.
func (m *Manager) reconcileOnce(ctx context.Context) error {
	rows, err := store.ListReadyManageAccessPointsByReadyBackbone(ctx, m.st.Queryer())
	if err != nil {
		return apperr.Transaction(err)
	}

	wanted := make(map[string]store.ReadyManageAP, len(rows))
	for _, row := range rows {
		wanted[row.BackboneID] = row
	}

	m.mu.Lock()
	var toClose []string
	for backboneID := range m.bbConnections {
		if _, ok := wanted[backboneID]; !ok {
			toClose = append(toClose, backboneID)
		}
	}
	var toOpen []store.ReadyManageAP
	for backboneID, row := range wanted {
		if _, ok := m.bbConnections[backboneID]; !ok {
			toOpen = append(toOpen, row)
		}
	}
	m.mu.Unlock()

	for _, backboneID := range toClose {
		m.closeSession(backboneID)
	}
	for _, row := range toOpen {
		m.openSession(ctx, row)
	}
	return nil
}

func (m *Manager) openSession(ctx context.Context, row store.ReadyManageAP) {
	session, err := m.dial(ctx, row.Host, row.Port)
	if err != nil {
		logging.Error("BackboneLink", err, "dialing manage AP for backbone %s", row.BackboneID)
		return
	}

	m.mu.Lock()
	m.bbConnections[row.BackboneID] = session
	subs := append([]subscriber(nil), m.registrations...)
	m.mu.Unlock()

	for _, sub := range subs {
		if sub.onAdded != nil {
			sub.onAdded(row.BackboneID, session)
		}
	}
	logging.Info("BackboneLink", "opened session for backbone %s", row.BackboneID)
}

func (m *Manager) closeSession(backboneID string) {
	m.mu.Lock()
	delete(m.bbConnections, backboneID)
	subs := append([]subscriber(nil), m.registrations...)
	m.mu.Unlock()

	for _, sub := range subs {
		if sub.onDeleted != nil {
			sub.onDeleted(backboneID)
		}
	}
	logging.Info("BackboneLink", "closed session for backbone %s", backboneID)
}
