package queue

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/robocompute/go-robocompute/internal/models"
)

type fakeProcessor struct {
	mu   sync.Mutex
	seen map[string]error
}

func (f *fakeProcessor) ProcessPayout(id string, transferErr error) (*models.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "payout_missing" {
		return nil, models.ErrNotFound("payout", id)
	}
	f.seen[id] = transferErr
	status := models.PayoutCompleted
	if transferErr != nil {
		status = models.PayoutFailed
	}
	return &models.Payout{Id: id, Status: status}, nil
}

func TestInlineDispatch(t *testing.T) {
	proc := &fakeProcessor{seen: map[string]error{}}
	d := NewInline(proc)
	boom := errors.New("transfer rejected")
	d.Transfer = func(id string) error {
		if id == "payout_bad" {
			return boom
		}
		return nil
	}

	for _, id := range []string{"payout_a", "payout_b", "payout_bad", "payout_missing"} {
		assert.NoError(t, d.Dispatch(id))
	}
	d.Wait()

	assert.Len(t, proc.seen, 3)
	assert.NoError(t, proc.seen["payout_a"])
	assert.ErrorIs(t, proc.seen["payout_bad"], boom)
}
