package backbonelink

import (
	"context"
	"testing"

	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return &Manager{
		bbConnections: make(map[string]*transport.Session),
		pollInterval:  DefaultPollInterval,
		errorBackoff:  DefaultErrorBackoff,
	}
}

func TestSubscribeReplaysExistingSessionsSynchronously(t *testing.T) {
	m := newTestManager()
	session := transport.NewSession(&noopLink{}, "")
	m.bbConnections["bb-1"] = session

	var addedWith string
	m.Subscribe(func(backboneID string, s *transport.Session) {
		addedWith = backboneID
	}, nil)

	assert.Equal(t, "bb-1", addedWith)
}

func TestOpenAndCloseSessionNotifySubscribers(t *testing.T) {
	m := newTestManager()
	m.dial = func(ctx context.Context, host, port string) (*transport.Session, error) {
		return transport.NewSession(&noopLink{}, ""), nil
	}

	var added, deleted []string
	m.Subscribe(func(backboneID string, s *transport.Session) {
		added = append(added, backboneID)
	}, func(backboneID string) {
		deleted = append(deleted, backboneID)
	})

	m.openSession(context.Background(), store.ReadyManageAP{BackboneID: "bb-1", Host: "host", Port: "5671"})
	require.Len(t, added, 1)
	assert.Equal(t, "bb-1", added[0])

	m.closeSession("bb-1")
	require.Len(t, deleted, 1)
	assert.Equal(t, "bb-1", deleted[0])

	m.mu.Lock()
	_, stillPresent := m.bbConnections["bb-1"]
	m.mu.Unlock()
	assert.False(t, stillPresent)
}

type noopLink struct{}

func (noopLink) Send(ctx context.Context, msg transport.Message) error { return nil }
