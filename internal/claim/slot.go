package claim

import (
	"context"
	"sync"

	"github.com/fabricpilot/vanctl/internal/protocol"
)

// claimCompletion is what CompleteMember hands back to the request that
// installed the blocking read: either a fully-built claim reply or the
// error that should be reported as a ClaimFailure instead.
type claimCompletion struct {
	outgoingLinks []protocol.OutgoingLink
	siteClient    map[string]interface{}
	err           error
}

// completionSlot is the race-safe rendezvous of §4.8: CompleteMember may run
// before blockForCompletion starts waiting (the cert reconciler's
// finalization goroutine and the blocked CLAIM handler are unordered with
// respect to each other). A sync.Once-guarded channel makes both orderings
// safe without a callback-registration dance: the channel is always created
// up front, complete() always succeeds (closing it at most once), and
// block() always observes the close whether it arrives before or after.
type completionSlot struct {
	once   sync.Once
	ready  chan struct{}
	result claimCompletion
}

func newCompletionSlot() *completionSlot {
	return &completionSlot{ready: make(chan struct{})}
}

func (s *completionSlot) complete(result claimCompletion) {
	s.once.Do(func() {
		s.result = result
		close(s.ready)
	})
}

func (s *completionSlot) block(ctx context.Context) (claimCompletion, error) {
	select {
	case <-s.ready:
		return s.result, nil
	case <-ctx.Done():
		return claimCompletion{}, ctx.Err()
	}
}
