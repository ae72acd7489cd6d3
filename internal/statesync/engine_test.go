package statesync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/protocol"
	"github.com/fabricpilot/vanctl/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingEvents is a PeerEvents test double that records calls in order.
type recordingEvents struct {
	mu            sync.Mutex
	newPeerCalls  []string
	pingCalls     []string
	stateChanges  []string
	initialLocal  map[string]string
	initialRemote map[string]string
	getReply      protocol.GetReply
}

func (r *recordingEvents) OnNewPeer(ctx context.Context, peerID string, class Class) (map[string]string, map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.newPeerCalls = append(r.newPeerCalls, peerID)
	return copyMap(r.initialLocal), copyMap(r.initialRemote), nil
}

func (r *recordingEvents) OnPing(ctx context.Context, peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pingCalls = append(r.pingCalls, peerID)
}

func (r *recordingEvents) OnStateChange(ctx context.Context, peerID, key string, hash *string, data json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateChanges = append(r.stateChanges, key)
}

func (r *recordingEvents) OnStateRequest(ctx context.Context, peerID, key string) (string, json.RawMessage, error) {
	return r.getReply.Hash, r.getReply.Data, nil
}

// directLink delivers every Send synchronously to a single target Session,
// recording a GET handler reply inline so Request() round-trips without a
// real network.
type directLink struct {
	target *transport.Session
	onGet  func(protocol.Get) protocol.GetReply
}

func (d *directLink) Send(ctx context.Context, msg transport.Message) error {
	if msg.Correlation != "" && d.onGet != nil {
		var g protocol.Get
		if err := json.Unmarshal(msg.Body, &g); err == nil {
			reply := d.onGet(g)
			body, _ := json.Marshal(reply)
			d.target.Deliver(transport.Message{Address: msg.ReplyTo, Correlation: msg.Correlation, Body: body})
			return nil
		}
	}
	if d.target != nil {
		d.target.Deliver(msg)
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHandleHeartbeatFromUnknownPeerCallsOnNewPeer(t *testing.T) {
	events := &recordingEvents{initialLocal: map[string]string{"tls-site-1": "H1"}}
	engine := NewEngine(ClassManagement, "mgmt", events)

	link := &directLink{}
	session := transport.NewSession(link, "reply-addr")
	link.target = session
	engine.AddConnection("", session)

	hb := protocol.NewHeartbeat("peer-1", "backbone", "", map[string]string{"x": "1"})
	engine.HandleHeartbeat(context.Background(), hb)

	waitFor(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.newPeerCalls) == 1
	})
	assert.Equal(t, []string{"peer-1"}, events.newPeerCalls)
}

func TestHandleHeartbeatKnownPeerPullsChangedKeys(t *testing.T) {
	events := &recordingEvents{
		initialLocal:  map[string]string{},
		initialRemote: map[string]string{"link-L1": "H0"},
		getReply:      protocol.GetReply{StatusCode: 200, StateKey: "link-L1", Hash: "H1"},
	}
	engine := NewEngine(ClassManagement, "mgmt", events)

	link := &directLink{}
	session := transport.NewSession(link, "reply-addr")
	link.target = session
	link.onGet = func(g protocol.Get) protocol.GetReply {
		return protocol.GetReply{StatusCode: 200, StateKey: g.StateKey, Hash: "H1"}
	}
	engine.AddConnection("", session)

	// First heartbeat registers the peer.
	engine.HandleHeartbeat(context.Background(), protocol.NewHeartbeat("peer-1", "backbone", "", nil))
	waitFor(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.newPeerCalls) == 1
	})

	// Second heartbeat carries a changed hash for link-L1.
	engine.HandleHeartbeat(context.Background(), protocol.NewHeartbeat("peer-1", "backbone", "", map[string]string{"link-L1": "H1"}))

	waitFor(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		for _, k := range events.stateChanges {
			if k == "link-L1" {
				return true
			}
		}
		return false
	})
}

func TestUpdateLocalStateFiresImmediateHeartbeat(t *testing.T) {
	events := &recordingEvents{initialLocal: map[string]string{}}
	engine := NewEngine(ClassManagement, "mgmt", events)

	received := make(chan transport.Message, 4)
	serverLink := &directLink{}
	clientSession := transport.NewSession(serverLink, "")

	// The peer side just records inbound heartbeats.
	peerLink := &loopbackRecorder{received: received}
	peerSession := transport.NewSession(peerLink, "peer-reply")
	engine.AddConnection("", peerSession)

	_ = clientSession // unused placeholder kept for symmetry with other tests

	hb := protocol.NewHeartbeat("peer-1", "backbone", "", nil)
	engine.HandleHeartbeat(context.Background(), hb)
	waitFor(t, func() bool {
		events.mu.Lock()
		defer events.mu.Unlock()
		return len(events.newPeerCalls) == 1
	})

	h := "H9"
	engine.UpdateLocalState("peer-1", "tls-site-1", &h)

	waitFor(t, func() bool { return len(received) > 0 })
	msg := <-received
	var gotHB protocol.Heartbeat
	require.NoError(t, json.Unmarshal(msg.Body, &gotHB))
	assert.Equal(t, "H9", gotHB.Hashset["tls-site-1"])
}

// loopbackRecorder records every Send without delivering it anywhere.
type loopbackRecorder struct {
	received chan transport.Message
}

func (l *loopbackRecorder) Send(ctx context.Context, msg transport.Message) error {
	l.received <- msg
	return nil
}
