package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mietcheck/mietcheck/pkg/models"
)

func testInput() *models.PendingInput {
	return &models.PendingInput{
		Files: []models.UploadedFile{
			{Name: "abrechnung.pdf", MediaType: "application/pdf", Size: 4, Data: []byte("%PDF")},
		},
		Email:     "mieter@example.com",
		CreatedAt: time.Now(),
	}
}

func TestPendingRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	got, err := s.GetPending(ctx, "cs_missing")
	require.NoError(t, err)
	assert.Nil(t, got, "absent pending input is nil, not an error")

	require.NoError(t, s.PutPending(ctx, "cs_1", testInput()))

	got, err = s.GetPending(ctx, "cs_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "mieter@example.com", got.Email)

	// Re-upload replaces wholesale.
	replacement := testInput()
	replacement.Email = "neu@example.com"
	require.NoError(t, s.PutPending(ctx, "cs_1", replacement))

	got, err = s.GetPending(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "neu@example.com", got.Email)

	require.NoError(t, s.DeletePending(ctx, "cs_1"))
	got, err = s.GetPending(ctx, "cs_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTryActivateIsExclusive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.TryActivate(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryActivate(ctx, "cs_1")
	require.NoError(t, err)
	assert.False(t, ok, "second activation must lose")

	require.NoError(t, s.Deactivate(ctx, "cs_1"))
	ok, err = s.TryActivate(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, ok, "activation is possible again after deactivate")
}

func TestTryActivateConcurrent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TryActivate(ctx, "cs_race")
			assert.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent activation may win")
}

func TestTryActivateRefusedAfterSettle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutPending(ctx, "cs_1", testInput()))
	ok, err := s.TryActivate(ctx, "cs_1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Settle(ctx, "cs_1", &models.CompletedRecord{
		Result: &models.AnalysisResult{Validation: models.ValidationOK},
	}))

	ok, err = s.TryActivate(ctx, "cs_1")
	require.NoError(t, err)
	assert.False(t, ok, "settled session must not re-activate")
}

func TestSettleClearsActiveAndPending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.PutPending(ctx, "cs_1", testInput()))
	ok, err := s.TryActivate(ctx, "cs_1")
	require.NoError(t, err)
	require.True(t, ok)

	rec := &models.CompletedRecord{ErrMessage: "kaputt", ErrKind: models.ErrKindGeneric}
	require.NoError(t, s.Settle(ctx, "cs_1", rec))

	active, err := s.IsActive(ctx, "cs_1")
	require.NoError(t, err)
	assert.False(t, active)

	pending, err := s.GetPending(ctx, "cs_1")
	require.NoError(t, err)
	assert.Nil(t, pending, "pending input is deleted on settle")

	got, err := s.GetCompleted(ctx, "cs_1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Failed())
	assert.False(t, got.CompletedAt.IsZero(), "settle stamps the completion time")
}

func TestMarkRefundedOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.MarkRefunded(ctx, "cs_1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := s.MarkRefunded(ctx, "cs_1")
	require.NoError(t, err)
	assert.False(t, second, "refund marker is set at most once")
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	fresh := testInput()
	fresh.CreatedAt = now.Add(-5 * time.Minute)
	require.NoError(t, s.PutPending(ctx, "cs_fresh", fresh))

	stale := testInput()
	stale.CreatedAt = now.Add(-PendingTTL - time.Minute)
	require.NoError(t, s.PutPending(ctx, "cs_stale", stale))

	require.NoError(t, s.Settle(ctx, "cs_done_old", &models.CompletedRecord{
		Result:      &models.AnalysisResult{Validation: models.ValidationOK},
		CompletedAt: now.Add(-CompletedTTL - time.Minute),
	}))
	require.NoError(t, s.Settle(ctx, "cs_done_new", &models.CompletedRecord{
		Result:      &models.AnalysisResult{Validation: models.ValidationOK},
		CompletedAt: now.Add(-time.Minute),
	}))

	evicted, err := s.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 2, evicted)

	pending, err := s.GetPending(ctx, "cs_fresh")
	require.NoError(t, err)
	assert.NotNil(t, pending)

	pending, err = s.GetPending(ctx, "cs_stale")
	require.NoError(t, err)
	assert.Nil(t, pending)

	rec, err := s.GetCompleted(ctx, "cs_done_old")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = s.GetCompleted(ctx, "cs_done_new")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestSweepSparesActiveSessions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	stale := testInput()
	stale.CreatedAt = now.Add(-PendingTTL - time.Minute)
	require.NoError(t, s.PutPending(ctx, "cs_running", stale))

	ok, err := s.TryActivate(ctx, "cs_running")
	require.NoError(t, err)
	require.True(t, ok)

	evicted, err := s.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, evicted)

	pending, err := s.GetPending(ctx, "cs_running")
	require.NoError(t, err)
	assert.NotNil(t, pending, "sweep never removes input of an active session")
}
