// Package statesync implements the state-sync engine of §4.3 (C3): a
// lightweight, eventually-consistent view of each peer's state maintained
// by manifest reconciliation over heartbeats. Each peer's work is drained
// by its own FIFO worker goroutine; beacon sends fan out one goroutine per
// target under errgroup.WithContext, the pattern of zmb3-teleport's cache
// fetch fan-out (lib/cache/cache.go).
package statesync

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/fabricpilot/vanctl/internal/protocol"
	"github.com/fabricpilot/vanctl/internal/transport"
	"github.com/fabricpilot/vanctl/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Class is one of the three peer classes the engine dispatches on (§4.3).
type Class string

const (
	ClassManagement Class = "management"
	ClassBackbone   Class = "backbone"
	ClassMember     Class = "member"
)

const (
	// beaconInterval is how often the engine emits body-less heartbeats to
	// extra targets before it has ever received one.
	beaconInterval = 5 * time.Second
	// defaultWindow/defaultPeriod set the outgoing heartbeat schedule:
	// now + uniform(0, window) + period (§4.3 defaults).
	defaultWindow = 5 * time.Second
	defaultPeriod = 10 * time.Second
)

// PeerEvents is the set of callbacks the embedding application (internal/
// syncbridge, C7) supplies. The engine calls these synchronously from the
// owning peer's FIFO worker.
type PeerEvents interface {
	// OnNewPeer is called the first time a heartbeat arrives from an
	// unrecognized peer. It returns the initial (localState, remoteState)
	// manifests that become the peer's tracked state.
	OnNewPeer(ctx context.Context, peerID string, class Class) (localState, remoteState map[string]string, err error)
	// OnPing is called for every heartbeat from an already-known peer.
	OnPing(ctx context.Context, peerID string)
	// OnStateChange is called once a pulled or deleted key is reconciled.
	// hash and data are nil for a deletion.
	OnStateChange(ctx context.Context, peerID, key string, hash *string, data json.RawMessage)
	// OnStateRequest answers a peer's GET for one of our local-state keys.
	OnStateRequest(ctx context.Context, peerID, key string) (hash string, data json.RawMessage, err error)
}

// StateKey identifies one entry in a manifest.
type StateKey = string

type peerRecord struct {
	id         string
	class      Class
	local      map[StateKey]string
	remote     map[StateKey]string
	mu         sync.Mutex // guards local/remote and the fields below
	queue      []func()
	processing bool
	timer      *time.Timer
	session    *transport.Session
}

// Engine is the state-sync engine of §4.3. It is safe for concurrent use;
// internally every peer's messages are serialized through that peer's FIFO
// queue, and peers are otherwise independent.
type Engine struct {
	class  Class
	id     string
	events PeerEvents

	mu           sync.Mutex
	peers        map[string]*peerRecord
	connections  map[string]*transport.Session // backboneId, or "net" sentinel
	extraTargets []string
	everHeard    bool
	beaconCancel context.CancelFunc
	window       time.Duration
	period       time.Duration
}

// NetConnection is the sentinel key AddConnection uses for the
// not-backbone-specific connection extra targets beacon over.
const NetConnection = "net"

// NewEngine constructs an Engine for the local node identified by
// (class, id). events receives the four callbacks of §4.3/§4.7.
func NewEngine(class Class, id string, events PeerEvents) *Engine {
	return &Engine{
		class:       class,
		id:          id,
		events:      events,
		peers:       make(map[string]*peerRecord),
		connections: make(map[string]*transport.Session),
		window:      defaultWindow,
		period:      defaultPeriod,
	}
}

// AddExtraTarget registers a peer that is not auto-discoverable (member and
// backbone nodes target the management controller this way).
func (e *Engine) AddExtraTarget(peerID string) {
	e.mu.Lock()
	e.extraTargets = append(e.extraTargets, peerID)
	started := e.everHeard
	e.mu.Unlock()

	if !started {
		e.ensureBeacon()
	}
}

// AddConnection registers a session under backboneID, or NetConnection if
// backboneID is empty.
func (e *Engine) AddConnection(backboneID string, session *transport.Session) {
	key := backboneID
	if key == "" {
		key = NetConnection
	}
	e.mu.Lock()
	e.connections[key] = session
	e.mu.Unlock()
}

// DeleteConnection removes the mapping; peer records survive (§4.3).
func (e *Engine) DeleteConnection(backboneID string) {
	key := backboneID
	if key == "" {
		key = NetConnection
	}
	e.mu.Lock()
	delete(e.connections, key)
	e.mu.Unlock()
}

func (e *Engine) ensureBeacon() {
	e.mu.Lock()
	if e.everHeard || e.beaconCancel != nil {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.beaconCancel = cancel
	e.mu.Unlock()

	go e.runBeacon(ctx)
}

func (e *Engine) runBeacon(ctx context.Context) {
	ticker := time.NewTicker(beaconInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sendBeacons(ctx)
		}
	}
}

func (e *Engine) sendBeacons(ctx context.Context) {
	e.mu.Lock()
	if e.everHeard {
		e.mu.Unlock()
		return
	}
	targets := append([]string(nil), e.extraTargets...)
	net := e.connections[NetConnection]
	e.mu.Unlock()

	if net == nil {
		return
	}
	hb := protocol.NewHeartbeat(e.id, string(e.class), "", nil)
	body, err := json.Marshal(hb)
	if err != nil {
		logging.Error("StateSync", err, "marshaling beacon heartbeat")
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			return net.SendMessage(gctx, target, body, nil)
		})
	}
	if err := g.Wait(); err != nil {
		logging.Warn("StateSync", "beacon send failed: %v", err)
	}
}

// HandleHeartbeat processes an inbound HB, per the rules of §4.3. It is the
// entry point transport receivers call; work for a given peer is always
// serialized through that peer's FIFO queue.
func (e *Engine) HandleHeartbeat(ctx context.Context, hb protocol.Heartbeat) {
	e.markHeard()

	rec := e.getOrCreatePeerStub(hb.Site, Class(hb.SClass))
	e.enqueue(rec, func() {
		e.processHeartbeat(ctx, rec, hb)
	})
}

func (e *Engine) markHeard() {
	e.mu.Lock()
	wasHeard := e.everHeard
	e.everHeard = true
	cancel := e.beaconCancel
	e.beaconCancel = nil
	e.mu.Unlock()
	if !wasHeard && cancel != nil {
		cancel()
	}
}

func (e *Engine) getOrCreatePeerStub(peerID string, class Class) *peerRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.peers[peerID]
	if !ok {
		rec = &peerRecord{id: peerID, class: class}
		e.peers[peerID] = rec
	}
	return rec
}

// enqueue appends fn to rec's FIFO queue and drains it if nothing else is
// currently processing, implementing the "per-peer ordering" rule of §5.
func (e *Engine) enqueue(rec *peerRecord, fn func()) {
	rec.mu.Lock()
	rec.queue = append(rec.queue, fn)
	if rec.processing {
		rec.mu.Unlock()
		return
	}
	rec.processing = true
	rec.mu.Unlock()

	go e.drain(rec)
}

func (e *Engine) drain(rec *peerRecord) {
	for {
		rec.mu.Lock()
		if len(rec.queue) == 0 {
			rec.processing = false
			rec.mu.Unlock()
			return
		}
		next := rec.queue[0]
		rec.queue = rec.queue[1:]
		rec.mu.Unlock()

		next()
	}
}

func (e *Engine) processHeartbeat(ctx context.Context, rec *peerRecord, hb protocol.Heartbeat) {
	rec.mu.Lock()
	isNew := rec.local == nil && rec.remote == nil
	rec.mu.Unlock()

	if isNew {
		local, remote, err := e.events.OnNewPeer(ctx, hb.Site, Class(hb.SClass))
		if err != nil {
			logging.Error("StateSync", err, "OnNewPeer failed for %s", hb.Site)
			return
		}
		rec.mu.Lock()
		rec.local = copyMap(local)
		rec.remote = copyMap(remote)
		rec.mu.Unlock()
		e.sendHeartbeatTo(ctx, rec)
		e.scheduleNext(rec)
		return
	}

	e.events.OnPing(ctx, hb.Site)

	if hb.Hashset == nil {
		return // beacon-only heartbeat from an already-known peer
	}

	rec.mu.Lock()
	var pulls, deletions []string
	for key := range rec.remote {
		if _, present := hb.Hashset[key]; !present {
			deletions = append(deletions, key)
		}
	}
	for key, hash := range hb.Hashset {
		if rec.remote[key] != hash {
			pulls = append(pulls, key)
		}
	}
	rec.mu.Unlock()

	for _, key := range deletions {
		e.events.OnStateChange(ctx, hb.Site, key, nil, nil)
		rec.mu.Lock()
		delete(rec.remote, key)
		rec.mu.Unlock()
	}

	for _, key := range pulls {
		e.pull(ctx, rec, hb.Site, key)
	}
}

// pull issues a GET for key against peer; a successful reply updates
// remoteState and fires OnStateChange. Failures are logged and retried on
// the next heartbeat where the hash still disagrees (§4.3 failure
// semantics) -- no error propagates out of this call.
func (e *Engine) pull(ctx context.Context, rec *peerRecord, peerID, key string) {
	session := e.sessionFor(rec)
	if session == nil {
		logging.Warn("StateSync", "no session to pull %s from %s", key, peerID)
		return
	}

	req := protocol.NewGet(e.id, key)
	body, err := json.Marshal(req)
	if err != nil {
		logging.Error("StateSync", err, "marshaling GET for %s", key)
		return
	}

	_, replyBody, err := session.Request(ctx, peerID, body, nil, 0)
	if err != nil {
		logging.Warn("StateSync", "pull of %s from %s failed: %v", key, peerID, err)
		return
	}

	var reply protocol.GetReply
	if err := json.Unmarshal(replyBody, &reply); err != nil {
		logging.Error("StateSync", err, "decoding GET reply for %s", key)
		return
	}
	if reply.StatusCode != 200 {
		logging.Warn("StateSync", "GET %s from %s replied %d", key, peerID, reply.StatusCode)
		return
	}

	h := reply.Hash
	e.events.OnStateChange(ctx, peerID, key, &h, reply.Data)

	rec.mu.Lock()
	rec.remote[key] = h
	rec.mu.Unlock()
}

func (e *Engine) sessionFor(rec *peerRecord) *transport.Session {
	rec.mu.Lock()
	s := rec.session
	rec.mu.Unlock()
	if s != nil {
		return s
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connections[NetConnection]
}

func (e *Engine) sendHeartbeatTo(ctx context.Context, rec *peerRecord) {
	session := e.sessionFor(rec)
	if session == nil {
		return
	}

	rec.mu.Lock()
	hashset := copyMap(rec.local)
	rec.mu.Unlock()

	hb := protocol.NewHeartbeat(e.id, string(e.class), "", hashset)
	body, err := json.Marshal(hb)
	if err != nil {
		logging.Error("StateSync", err, "marshaling heartbeat to %s", rec.id)
		return
	}
	if err := session.SendMessage(ctx, rec.id, body, nil); err != nil {
		logging.Warn("StateSync", "heartbeat send to %s failed: %v", rec.id, err)
	}
}

// scheduleNext arms rec's next outgoing heartbeat at
// now + uniform(0, window) + period (§4.3 defaults).
func (e *Engine) scheduleNext(rec *peerRecord) {
	delay := e.period + time.Duration(rand.Int63n(int64(e.window)+1))

	rec.mu.Lock()
	if rec.timer != nil {
		rec.timer.Stop()
	}
	rec.timer = time.AfterFunc(delay, func() {
		ctx := context.Background()
		e.enqueue(rec, func() {
			e.sendHeartbeatTo(ctx, rec)
			e.scheduleNext(rec)
		})
	})
	rec.mu.Unlock()
}

// UpdateLocalState mutates the local manifest for peerID and fires an
// immediate heartbeat, cancelling the pending timer (§4.3). A nil hash
// removes the key.
func (e *Engine) UpdateLocalState(peerID, key string, hash *string) {
	e.mu.Lock()
	rec, ok := e.peers[peerID]
	e.mu.Unlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	if rec.local == nil {
		rec.local = make(map[string]string)
	}
	if hash == nil {
		delete(rec.local, key)
	} else {
		rec.local[key] = *hash
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	rec.mu.Unlock()

	ctx := context.Background()
	e.enqueue(rec, func() {
		e.sendHeartbeatTo(ctx, rec)
		e.scheduleNext(rec)
	})
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
