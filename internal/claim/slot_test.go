package claim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionSlotCompleteThenBlock(t *testing.T) {
	slot := newCompletionSlot()
	slot.complete(claimCompletion{siteClient: map[string]interface{}{"stateKey": "tls-site-1"}})

	result, err := slot.block(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tls-site-1", result.siteClient["stateKey"])
}

func TestCompletionSlotBlockThenComplete(t *testing.T) {
	slot := newCompletionSlot()
	done := make(chan struct{})

	var result claimCompletion
	go func() {
		result, _ = slot.block(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // give block() a head start
	slot.complete(claimCompletion{siteClient: map[string]interface{}{"stateKey": "tls-site-2"}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("block() never returned")
	}
	assert.Equal(t, "tls-site-2", result.siteClient["stateKey"])
}

func TestCompletionSlotCompleteOnlyFiresOnce(t *testing.T) {
	slot := newCompletionSlot()
	slot.complete(claimCompletion{siteClient: map[string]interface{}{"stateKey": "first"}})
	slot.complete(claimCompletion{siteClient: map[string]interface{}{"stateKey": "second"}})

	result, err := slot.block(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", result.siteClient["stateKey"])
}

func TestCompletionSlotBlockTimesOutWithoutComplete(t *testing.T) {
	slot := newCompletionSlot()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := slot.block(ctx)
	assert.Error(t, err)
}
