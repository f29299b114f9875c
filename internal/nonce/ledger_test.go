package nonce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorgate/internal/nonce/models"
	"mirrorgate/internal/nonce/store"
	"mirrorgate/internal/platform/config"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/requestcontext"
)

func newLedger() *Ledger {
	return NewLedger(config.NonceConfig{TTL: 30 * time.Second, SweepInterval: time.Second}, store.NewMemory())
}

func TestLedger_IssueAndConsume(t *testing.T) {
	ledger := newLedger()
	subject := id.NewSubjectID()

	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)

	nonce, err := ledger.Issue(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, nonce.Status)
	assert.Equal(t, now.Add(30*time.Second), nonce.ExpiresAt)

	result, err := ledger.Consume(ctx, nonce.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConsumeSuccess, result)

	result, err = ledger.Consume(ctx, nonce.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConsumeAlreadyConsumed, result)
}

func TestLedger_ExpiryWindow(t *testing.T) {
	ledger := newLedger()
	subject := id.NewSubjectID()

	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)
	nonce, err := ledger.Issue(ctx, subject)
	require.NoError(t, err)

	t.Run("inside the window", func(t *testing.T) {
		at := requestcontext.WithTime(context.Background(), now.Add(29*time.Second))
		result, err := ledger.Consume(at, nonce.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ConsumeSuccess, result)
	})

	t.Run("past the window", func(t *testing.T) {
		late, err := ledger.Issue(ctx, subject)
		require.NoError(t, err)

		at := requestcontext.WithTime(context.Background(), now.Add(31*time.Second))
		result, err := ledger.Consume(at, late.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ConsumeExpired, result)
	})
}

func TestLedger_InputValidation(t *testing.T) {
	ledger := newLedger()
	ctx := context.Background()

	_, err := ledger.Issue(ctx, id.SubjectID{})
	require.Error(t, err)

	_, err = ledger.Consume(ctx, id.NonceID{})
	require.Error(t, err)
}
