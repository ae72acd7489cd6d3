// Package transport implements the messaging primitives of §4.1 (C1): a
// Session carries SendMessage, Request/Reply with correlation-id matching,
// and receivers that may be static (address given) or dynamic (address
// learned asynchronously, e.g. once a broker's link attaches). No concrete
// wire protocol is bundled — a Session is driven by a Link, the thin
// send/receive boundary a transport backend (AMQP, a test fake, or a unit
// socket) implements.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/fabricpilot/vanctl/internal/apperr"
	"github.com/fabricpilot/vanctl/pkg/logging"

	"github.com/google/uuid"
)

// DefaultRequestTimeout is the per-call timeout §5 specifies for
// request/reply unless a caller overrides it.
const DefaultRequestTimeout = 5 * time.Second

// Message is one unit exchanged over a Link: a destination/source address,
// an application-property bag, and an opaque body.
type Message struct {
	Address     string
	AppProps    map[string]string
	Body        []byte
	Correlation string // set on requests and their replies
	ReplyTo     string // set on requests carrying a dynamic reply address
}

// Link is the boundary a transport backend implements: deliver a Message to
// its Address, and report that the Link is ready to send ("sendable").
type Link interface {
	// Send transmits msg. Returns an error only for failures the session
	// should treat as a dropped send (§4.3's "send failures are dropped —
	// the next heartbeat is the retry").
	Send(ctx context.Context, msg Message) error
}

// OnMessage handles an inbound Message on a receiver.
type OnMessage func(msg Message)

// OnAddress is called once a dynamic receiver's address becomes known.
type OnAddress func(address string)

// Receiver is a handle returned by OpenReceiver; Close stops delivery.
type Receiver struct {
	Address string
	close   func()
}

// Close stops this receiver from delivering further messages.
func (r *Receiver) Close() {
	if r.close != nil {
		r.close()
	}
}

type waiter struct {
	resultAppProps map[string]string
	resultBody     []byte
	done           chan struct{}
	err            error
	once           sync.Once
}

func (w *waiter) complete(appProps map[string]string, body []byte, err error) {
	w.once.Do(func() {
		w.resultAppProps = appProps
		w.resultBody = body
		w.err = err
		close(w.done)
	})
}

// Session carries one anonymous producer and one dynamic reply receiver, as
// required by §4.1. It is safe for concurrent use.
type Session struct {
	link Link

	mu           sync.Mutex
	inFlight     map[string]*waiter // correlation id -> waiter
	replyAddress string
	sendableOnce []chan struct{}
	receivers    map[string]*receiverEntry
	dynamicCount int
}

type receiverEntry struct {
	onMessage OnMessage
	onAddress OnAddress
	dynamic   bool
}

// NewSession wraps link in a Session. staticReplyAddress, if non-empty,
// makes the dynamic reply receiver static instead of dynamically allocated
// (§4.1's "a session exposes ... one dynamic reply receiver").
func NewSession(link Link, staticReplyAddress string) *Session {
	s := &Session{
		link:      link,
		inFlight:  make(map[string]*waiter),
		receivers: make(map[string]*receiverEntry),
	}
	if staticReplyAddress != "" {
		s.setReplyAddress(staticReplyAddress)
	}
	return s
}

func (s *Session) setReplyAddress(addr string) {
	s.mu.Lock()
	s.replyAddress = addr
	pending := s.sendableOnce
	s.sendableOnce = nil
	s.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
}

// ReplyAddress returns the session's dynamic reply address, or "" if it
// hasn't been learned yet.
func (s *Session) ReplyAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replyAddress
}

// OpenSender blocks until the session's producer is sendable (its dynamic
// reply address is known), the asynchronous variant §4.1 describes.
func (s *Session) OpenSender(ctx context.Context) error {
	s.mu.Lock()
	if s.replyAddress != "" {
		s.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	s.sendableOnce = append(s.sendableOnce, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpenReceiver registers onMessage for address. If address is empty the
// receiver is dynamic: a synthetic address is allocated immediately and
// onAddress (if non-nil) is invoked once, matching the "address learned"
// case of §4.1. If this is the session's first dynamic receiver and no
// static reply address was configured, it also becomes the session's reply
// address.
func (s *Session) OpenReceiver(address string, onMessage OnMessage, onAddress OnAddress) *Receiver {
	s.mu.Lock()
	dynamic := address == ""
	if dynamic {
		s.dynamicCount++
		address = uuid.NewString()
	}
	s.receivers[address] = &receiverEntry{onMessage: onMessage, onAddress: onAddress, dynamic: dynamic}
	needsReplyAddress := dynamic && s.replyAddress == ""
	s.mu.Unlock()

	if dynamic && onAddress != nil {
		onAddress(address)
	}
	if needsReplyAddress {
		s.setReplyAddress(address)
	}

	addr := address
	return &Receiver{
		Address: address,
		close: func() {
			s.mu.Lock()
			delete(s.receivers, addr)
			s.mu.Unlock()
		},
	}
}

// Deliver routes an inbound Message to the matching receiver, or -- if it
// carries a correlation id present in the in-flight table -- completes the
// corresponding Request waiter instead. Transport backends call this from
// their read loop.
func (s *Session) Deliver(msg Message) {
	if msg.Correlation != "" {
		s.mu.Lock()
		w, ok := s.inFlight[msg.Correlation]
		if ok {
			delete(s.inFlight, msg.Correlation)
		}
		s.mu.Unlock()
		if ok {
			w.complete(msg.AppProps, msg.Body, nil)
			return
		}
	}

	s.mu.Lock()
	entry, ok := s.receivers[msg.Address]
	s.mu.Unlock()
	if !ok || entry.onMessage == nil {
		logging.Warn("Transport", "no receiver for address %s", msg.Address)
		return
	}
	entry.onMessage(msg)
}

// SendMessage is the fire-and-forget primitive of §4.1.
func (s *Session) SendMessage(ctx context.Context, destination string, body []byte, appProps map[string]string) error {
	return s.link.Send(ctx, Message{Address: destination, Body: body, AppProps: appProps})
}

// Request sends body to destination with a correlation id and this
// session's dynamic reply address embedded, then blocks until a reply
// arrives or timeout elapses. A zero timeout uses DefaultRequestTimeout.
// On timeout the waiter is rejected with a TimeoutError and its in-flight
// slot is cleared (§4.1, §7).
func (s *Session) Request(ctx context.Context, destination string, body []byte, appProps map[string]string, timeout time.Duration) (map[string]string, []byte, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	corrID := uuid.NewString()
	w := &waiter{done: make(chan struct{})}

	s.mu.Lock()
	s.inFlight[corrID] = w
	replyAddr := s.replyAddress
	s.mu.Unlock()

	msg := Message{
		Address:     destination,
		Body:        body,
		AppProps:    appProps,
		Correlation: corrID,
		ReplyTo:     replyAddr,
	}

	if err := s.link.Send(ctx, msg); err != nil {
		s.clearInFlight(corrID)
		return nil, nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return w.resultAppProps, w.resultBody, w.err
	case <-timer.C:
		s.clearInFlight(corrID)
		return nil, nil, apperr.Timeout("request to %s timed out after %s", destination, timeout)
	case <-ctx.Done():
		s.clearInFlight(corrID)
		return nil, nil, ctx.Err()
	}
}

func (s *Session) clearInFlight(corrID string) {
	s.mu.Lock()
	delete(s.inFlight, corrID)
	s.mu.Unlock()
}

// Reply sends a correlated response back to a requester's dynamic reply
// address, completing the other end's in-flight Request.
func (s *Session) Reply(ctx context.Context, replyTo, correlation string, body []byte, appProps map[string]string) error {
	return s.link.Send(ctx, Message{Address: replyTo, Body: body, AppProps: appProps, Correlation: correlation})
}
