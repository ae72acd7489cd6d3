// Package claim implements the claim server of §4.8 (C8): a receiver opened
// on a fixed address over every live backbone session, redeeming CLAIM
// messages into new MemberSite rows and blocking the reply until the cert
// reconciler finalizes the new member's credential. Grounded on
// internal/transport's Session/Receiver primitives and internal/protocol's
// wire types.
package claim

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fabricpilot/vanctl/internal/apperr"
	"github.com/fabricpilot/vanctl/internal/cluster"
	"github.com/fabricpilot/vanctl/internal/protocol"
	"github.com/fabricpilot/vanctl/internal/store"
	"github.com/fabricpilot/vanctl/internal/store/models"
	"github.com/fabricpilot/vanctl/internal/transport"
	"github.com/fabricpilot/vanctl/pkg/logging"
)

const subsystem = "ClaimServer"

// DefaultCompletionTimeout bounds how long a CLAIM handler blocks waiting
// for the cert reconciler to finalize the new member's credential before
// replying with a timeout failure.
const DefaultCompletionTimeout = 30 * time.Second

// Server redeems CLAIM messages on every backbone session it is attached
// to. One Server serves every live session; completion slots are keyed by
// the new member site's id so the race in §4.8 resolves regardless of
// which session's goroutine installed the wait first.
type Server struct {
	st         *store.Store
	cluster    cluster.Collaborator
	namespace  string
	address    string
	completion time.Duration

	mu    sync.Mutex
	slots map[string]*completionSlot
}

// New constructs a Server listening on address (the invitation-scoped claim
// access point's configured claim address, §6 default "skx/claim").
func New(st *store.Store, coll cluster.Collaborator, namespace, address string) *Server {
	return &Server{
		st:         st,
		cluster:    coll,
		namespace:  namespace,
		address:    address,
		completion: DefaultCompletionTimeout,
		slots:      make(map[string]*completionSlot),
	}
}

// AttachToSession opens the claim receiver on sess, replying with a
// protocol.ClaimReply or protocol.ClaimFailure on sess's reply address for
// every inbound CLAIM (§4.8). Call this once per session the
// backbonelink.Manager reports via OnLinkAdded.
func (s *Server) AttachToSession(sess *transport.Session) *transport.Receiver {
	return sess.OpenReceiver(s.address, func(msg transport.Message) {
		s.handleMessage(context.Background(), sess, msg)
	}, nil)
}

func (s *Server) handleMessage(ctx context.Context, sess *transport.Session, msg transport.Message) {
	result, err := protocol.DispatchMessage(msg.Body, nil, nil, s.handleClaim)

	var body []byte
	if err != nil {
		body, _ = json.Marshal(protocol.ClaimFailure{StatusCode: failureStatus(err), Description: err.Error()})
	} else {
		body, _ = json.Marshal(result)
	}

	if msg.ReplyTo == "" || msg.Correlation == "" {
		return
	}
	if err := sess.Reply(ctx, msg.ReplyTo, msg.Correlation, body, nil); err != nil {
		logging.Error(subsystem, err, "replying to claim from %s", msg.Address)
	}
}

func failureStatus(err error) int {
	if ae, ok := err.(*apperr.Error); ok {
		return ae.Kind.HTTPStatus()
	}
	return 500
}

// handleClaim implements §4.8 steps 1-3: redeem the invitation inside one
// transaction, register the completion slot, commit, then block for the
// cert reconciler's finalization before replying.
func (s *Server) handleClaim(c protocol.Claim) (protocol.ClaimReply, error) {
	ctx := context.Background()

	var member *models.MemberSite
	var slot *completionSlot

	txErr := s.st.WithTx(ctx, func(tx *store.Tx) error {
		q := tx.Queryer()

		invitation, err := store.GetMemberInvitation(ctx, q, c.Claim)
		if err != nil {
			return err
		}
		if invitation.Lifecycle == models.LifecycleExpired || invitation.Lifecycle == models.LifecycleFailed {
			return apperr.Conflict("invitation %s is no longer valid", c.Claim)
		}
		if invitation.Deadline != nil && invitation.Deadline.Before(time.Now()) {
			return apperr.Conflict("invitation %s has passed its deadline", c.Claim)
		}

		ok, err := store.IncrementInvitationInstanceCount(ctx, q, invitation.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("invitation %s is over its instance limit", c.Claim)
		}

		m, err := store.InsertMemberSite(ctx, q, invitation.ID, c.Name, invitation.Classes)
		if err != nil {
			return err
		}
		member = m

		slot = s.registerSlot(member.ID)
		return nil
	})
	if txErr != nil {
		return protocol.ClaimReply{}, txErr
	}

	completionCtx, cancel := context.WithTimeout(ctx, s.completion)
	defer cancel()

	result, err := slot.block(completionCtx)
	s.removeSlot(member.ID)
	if err != nil {
		return protocol.ClaimReply{}, apperr.Timeout("claim %s: waiting for member %s to finalize: %v", c.Claim, member.ID, err)
	}
	if result.err != nil {
		return protocol.ClaimReply{}, result.err
	}

	return protocol.ClaimReply{
		StatusCode:    200,
		SiteID:        member.ID,
		OutgoingLinks: result.outgoingLinks,
		SiteClient:    result.siteClient,
	}, nil
}

func (s *Server) registerSlot(memberID string) *completionSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := newCompletionSlot()
	s.slots[memberID] = slot
	return slot
}

func (s *Server) removeSlot(memberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, memberID)
}

func (s *Server) slotFor(memberID string) (*completionSlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[memberID]
	if !ok {
		// CompleteMember may legitimately race ahead of handleClaim
		// installing the slot's consumer; the slot itself always exists by
		// the time the row is visible outside the transaction, so this
		// means memberID was never claimed through this Server instance.
		return nil, false
	}
	return slot, true
}

// CompleteMember signals the completion slot for memberID with a built
// reply, unblocking the CLAIM handler. Called by the cert reconciler once
// the member site's credential secret is ready.
func (s *Server) CompleteMember(ctx context.Context, memberID string) {
	slot, ok := s.slotFor(memberID)
	if !ok {
		logging.Warn(subsystem, "CompleteMember for untracked member %s", memberID)
		return
	}

	q := s.st.Queryer()
	member, err := store.GetMemberSite(ctx, q, memberID)
	if err != nil {
		slot.complete(claimCompletion{err: err})
		return
	}
	outgoing, siteClient, err := buildCompletion(ctx, q, s.cluster, s.namespace, member)
	if err != nil {
		slot.complete(claimCompletion{err: err})
		return
	}
	slot.complete(claimCompletion{outgoingLinks: outgoing, siteClient: siteClient})
}

// CompleteMemberError signals the completion slot for memberID with a
// failure, used when finalization itself fails (e.g. certificate issuance
// error) rather than succeeding.
func (s *Server) CompleteMemberError(memberID string, err error) {
	slot, ok := s.slotFor(memberID)
	if !ok {
		logging.Warn(subsystem, "CompleteMemberError for untracked member %s", memberID)
		return
	}
	slot.complete(claimCompletion{err: err})
}
