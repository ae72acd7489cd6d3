package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fabricpilot/vanctl/internal/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackLink is a fake Link that delivers every Send synchronously, to
// whichever Sessions have registered themselves as peers keyed by address.
type loopbackLink struct {
	mu       sync.Mutex
	peers    map[string]*Session
	sent     []Message
	dropNext bool
}

func newLoopbackLink() *loopbackLink {
	return &loopbackLink{peers: make(map[string]*Session)}
}

func (l *loopbackLink) register(address string, s *Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peers[address] = s
}

func (l *loopbackLink) Send(ctx context.Context, msg Message) error {
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	drop := l.dropNext
	l.dropNext = false
	peer := l.peers[msg.Address]
	l.mu.Unlock()

	if drop {
		return nil // simulate a dropped send: message never delivered
	}
	if peer != nil {
		peer.Deliver(msg)
	}
	return nil
}

func TestSendMessageDeliversToReceiver(t *testing.T) {
	link := newLoopbackLink()
	server := NewSession(link, "")
	link.register("svc", server)

	received := make(chan Message, 1)
	server.OpenReceiver("svc", func(msg Message) { received <- msg }, nil)

	client := NewSession(link, "")
	err := client.SendMessage(context.Background(), "svc", []byte("hello"), map[string]string{"k": "v"})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, []byte("hello"), msg.Body)
		assert.Equal(t, "v", msg.AppProps["k"])
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestRequestReplyRoundTrip(t *testing.T) {
	link := newLoopbackLink()
	server := NewSession(link, "")
	link.register("svc", server)

	client := NewSession(link, "")
	receiver := client.OpenReceiver("", nil, nil)
	link.register(receiver.Address, client)

	server.OpenReceiver("svc", func(msg Message) {
		_ = server.Reply(context.Background(), msg.ReplyTo, msg.Correlation, []byte("pong"), map[string]string{"status": "ok"})
	}, nil)

	appProps, body, err := client.Request(context.Background(), "svc", []byte("ping"), nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), body)
	assert.Equal(t, "ok", appProps["status"])
}

func TestRequestTimesOutAndClearsInFlight(t *testing.T) {
	link := newLoopbackLink()
	client := NewSession(link, "")
	client.OpenReceiver("", nil, nil)

	_, _, err := client.Request(context.Background(), "nowhere", []byte("ping"), nil, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTimeout))

	client.mu.Lock()
	inFlightCount := len(client.inFlight)
	client.mu.Unlock()
	assert.Zero(t, inFlightCount, "timed-out correlation id must be cleared")
}

func TestOpenSenderResolvesOnceSendable(t *testing.T) {
	link := newLoopbackLink()
	client := NewSession(link, "")

	done := make(chan struct{})
	go func() {
		_ = client.OpenSender(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("OpenSender resolved before the dynamic reply address was known")
	case <-time.After(20 * time.Millisecond):
	}

	client.OpenReceiver("", nil, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OpenSender did not resolve once sendable")
	}
}

func TestDynamicReceiverInvokesOnAddress(t *testing.T) {
	link := newLoopbackLink()
	s := NewSession(link, "")

	var got string
	s.OpenReceiver("", nil, func(addr string) { got = addr })
	assert.NotEmpty(t, got)
	assert.Equal(t, got, s.ReplyAddress())
}
