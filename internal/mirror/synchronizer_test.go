package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bmodels "mirrorgate/internal/bridge/models"
	bridgestore "mirrorgate/internal/bridge/store"
	"mirrorgate/internal/mirror/models"
	"mirrorgate/internal/mirror/store"
	"mirrorgate/internal/nonce"
	nstore "mirrorgate/internal/nonce/store"
	"mirrorgate/internal/platform/config"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/requestcontext"
)

// faultyMirror wraps a mirror and fails after a set number of writes.
type faultyMirror struct {
	Mirror
	failAfter int
	writes    int
}

func (f *faultyMirror) Set(ctx context.Context, key, value string) error {
	f.writes++
	if f.writes > f.failAfter {
		return errors.New("disk full")
	}
	return f.Mirror.Set(ctx, key, value)
}

type syncFixture struct {
	sync     *Synchronizer
	mirrorA  Mirror
	mirrorB  Mirror
	ledger   *nonce.Ledger
	sessions *bridgestore.InMemorySessionStore
}

func newSyncFixture(t *testing.T, policy string, mirrorA, mirrorB Mirror) *syncFixture {
	t.Helper()
	ledger := nonce.NewLedger(config.NonceConfig{TTL: 30 * time.Second, SweepInterval: time.Second}, nstore.NewMemory())
	sessions := bridgestore.NewMemory()
	sync := NewSynchronizer(config.SyncConfig{ConflictPolicy: policy}, mirrorA, mirrorB, ledger, sessions, store.NewMemory())
	return &syncFixture{sync: sync, mirrorA: mirrorA, mirrorB: mirrorB, ledger: ledger, sessions: sessions}
}

// verifiedSession mints a verified session backed by a live nonce.
func (f *syncFixture) verifiedSession(t *testing.T, ctx context.Context) *bmodels.Session {
	t.Helper()
	subject := id.NewSubjectID()
	issued, err := f.ledger.Issue(ctx, subject)
	require.NoError(t, err)
	session := &bmodels.Session{
		ID:        id.NewSessionID(),
		SubjectID: subject,
		NonceID:   issued.ID,
		Status:    bmodels.StatusVerified,
		CreatedAt: issued.IssuedAt,
		ExpiresAt: issued.IssuedAt.Add(2 * time.Minute),
	}
	require.NoError(t, f.sessions.Create(ctx, session))
	return session
}

func snapshot(t *testing.T, m Mirror) map[string]string {
	t.Helper()
	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestSynchronizer_ComputeDiff(t *testing.T) {
	ctx := context.Background()

	t.Run("agreeing mirrors produce an empty diff", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictManual,
			NewMemoryMirror("a", map[string]string{"k": "v"}),
			NewMemoryMirror("b", map[string]string{"k": "v"}),
		)
		diff, err := f.sync.ComputeDiff(ctx, id.NewSessionID())
		require.NoError(t, err)
		assert.Empty(t, diff.Entries)
	})

	t.Run("entries come out in stable key order", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictPreferA,
			NewMemoryMirror("a", map[string]string{"z": "1", "a": "1", "m": "1"}),
			NewMemoryMirror("b", nil),
		)
		diff, err := f.sync.ComputeDiff(ctx, id.NewSessionID())
		require.NoError(t, err)
		require.Len(t, diff.Entries, 3)
		assert.Equal(t, "a", diff.Entries[0].Key)
		assert.Equal(t, "m", diff.Entries[1].Key)
		assert.Equal(t, "z", diff.Entries[2].Key)
	})

	t.Run("one-sided drift resolves toward the holding side", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictManual,
			NewMemoryMirror("a", map[string]string{"only_a": "va"}),
			NewMemoryMirror("b", map[string]string{"only_b": "vb"}),
		)
		diff, err := f.sync.ComputeDiff(ctx, id.NewSessionID())
		require.NoError(t, err)
		require.Len(t, diff.Entries, 2)
		assert.Equal(t, models.ResolutionUseA, diff.Entries[0].Resolution)
		assert.Equal(t, models.ResolutionUseB, diff.Entries[1].Resolution)
	})

	t.Run("two-sided conflict stays unresolved under manual", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictManual,
			NewMemoryMirror("a", map[string]string{"k": "from_a"}),
			NewMemoryMirror("b", map[string]string{"k": "from_b"}),
		)
		diff, err := f.sync.ComputeDiff(ctx, id.NewSessionID())
		require.NoError(t, err)
		require.Len(t, diff.Entries, 1)
		assert.True(t, diff.Entries[0].Conflict())
		assert.Empty(t, diff.Entries[0].Resolution)
	})

	t.Run("prefer policies resolve conflicts automatically", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictPreferB,
			NewMemoryMirror("a", map[string]string{"k": "from_a"}),
			NewMemoryMirror("b", map[string]string{"k": "from_b"}),
		)
		diff, err := f.sync.ComputeDiff(ctx, id.NewSessionID())
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionUseB, diff.Entries[0].Resolution)
	})
}

func TestSynchronizer_ApplyDiff(t *testing.T) {
	ctx := context.Background()

	t.Run("apply converges both mirrors", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictPreferA,
			NewMemoryMirror("a", map[string]string{"k": "from_a", "only_a": "x"}),
			NewMemoryMirror("b", map[string]string{"k": "from_b", "only_b": "y"}),
		)
		session := f.verifiedSession(t, ctx)
		diff, err := f.sync.ComputeDiff(ctx, session.ID)
		require.NoError(t, err)

		result, err := f.sync.ApplyDiff(ctx, session, diff)
		require.NoError(t, err)
		assert.Equal(t, 3, result.Applied)
		assert.False(t, result.Replayed)

		want := map[string]string{"k": "from_a", "only_a": "x", "only_b": "y"}
		assert.Equal(t, want, snapshot(t, f.mirrorA))
		assert.Equal(t, want, snapshot(t, f.mirrorB))
		assert.Equal(t, result.Digest, session.MirrorDiffRef)
	})

	t.Run("second apply with the same session fails session invalid", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictPreferA,
			NewMemoryMirror("a", map[string]string{"k": "from_a"}),
			NewMemoryMirror("b", map[string]string{"k": "from_b"}),
		)
		session := f.verifiedSession(t, ctx)
		diff, err := f.sync.ComputeDiff(ctx, session.ID)
		require.NoError(t, err)
		_, err = f.sync.ApplyDiff(ctx, session, diff)
		require.NoError(t, err)

		// New content, same session: the nonce is spent.
		require.NoError(t, f.mirrorA.Set(ctx, "k2", "drift"))
		diff2, err := f.sync.ComputeDiff(ctx, session.ID)
		require.NoError(t, err)
		_, err = f.sync.ApplyDiff(ctx, session, diff2)
		require.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("expired nonce fails session invalid regardless of proofs", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictPreferA,
			NewMemoryMirror("a", map[string]string{"k": "from_a"}),
			NewMemoryMirror("b", map[string]string{"k": "from_b"}),
		)
		now := time.Now()
		created := requestcontext.WithTime(ctx, now)
		session := f.verifiedSession(t, created)
		diff, err := f.sync.ComputeDiff(ctx, session.ID)
		require.NoError(t, err)

		late := requestcontext.WithTime(ctx, now.Add(time.Minute))
		_, err = f.sync.ApplyDiff(late, session, diff)
		require.ErrorIs(t, err, ErrSessionInvalid)
		assert.Equal(t, map[string]string{"k": "from_a"}, snapshot(t, f.mirrorA))
		assert.Equal(t, map[string]string{"k": "from_b"}, snapshot(t, f.mirrorB))
	})

	t.Run("unverified session fails session invalid", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictPreferA,
			NewMemoryMirror("a", map[string]string{"k": "1"}),
			NewMemoryMirror("b", nil),
		)
		session := f.verifiedSession(t, ctx)
		session.Status = bmodels.StatusPending
		diff, err := f.sync.ComputeDiff(ctx, session.ID)
		require.NoError(t, err)
		_, err = f.sync.ApplyDiff(ctx, session, diff)
		require.ErrorIs(t, err, ErrSessionInvalid)
	})

	t.Run("mid-apply failure rolls both mirrors back", func(t *testing.T) {
		a := NewMemoryMirror("a", map[string]string{"k1": "a1", "k2": "a2", "k3": "a3"})
		b := &faultyMirror{Mirror: NewMemoryMirror("b", nil), failAfter: 2}
		f := newSyncFixture(t, config.ConflictPreferA, a, b)

		preA := snapshot(t, a)
		preB := snapshot(t, b)

		session := f.verifiedSession(t, ctx)
		diff, err := f.sync.ComputeDiff(ctx, session.ID)
		require.NoError(t, err)
		require.Len(t, diff.Entries, 3)

		_, err = f.sync.ApplyDiff(ctx, session, diff)
		require.ErrorIs(t, err, ErrSyncFailed)
		assert.Equal(t, preA, snapshot(t, a), "mirror a is back at its pre-apply state")
		assert.Equal(t, preB, snapshot(t, b), "mirror b is back at its pre-apply state")
	})

	t.Run("replaying applied content is a no-op", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictPreferA,
			NewMemoryMirror("a", map[string]string{"k": "from_a"}),
			NewMemoryMirror("b", map[string]string{"k": "from_b"}),
		)
		session := f.verifiedSession(t, ctx)
		diff, err := f.sync.ComputeDiff(ctx, session.ID)
		require.NoError(t, err)
		_, err = f.sync.ApplyDiff(ctx, session, diff)
		require.NoError(t, err)

		// A fresh verified session replays the identical diff content.
		replaySession := f.verifiedSession(t, ctx)
		replay := &models.Diff{SessionID: replaySession.ID, Entries: diff.Entries}
		result, err := f.sync.ApplyDiff(ctx, replaySession, replay)
		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Zero(t, result.Applied)
	})

	t.Run("reject_on_conflict refuses to touch either mirror", func(t *testing.T) {
		a := NewMemoryMirror("a", map[string]string{"k": "from_a", "drift": "x"})
		b := NewMemoryMirror("b", map[string]string{"k": "from_b"})
		f := newSyncFixture(t, config.ConflictRejectOnConflict, a, b)

		preA := snapshot(t, a)
		preB := snapshot(t, b)
		session := f.verifiedSession(t, ctx)
		diff, err := f.sync.ComputeDiff(ctx, session.ID)
		require.NoError(t, err)

		_, err = f.sync.ApplyDiff(ctx, session, diff)
		require.ErrorIs(t, err, ErrConflictRejected)
		assert.Equal(t, preA, snapshot(t, a))
		assert.Equal(t, preB, snapshot(t, b))
	})

	t.Run("manual policy blocks unresolved conflicts", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictManual,
			NewMemoryMirror("a", map[string]string{"k": "from_a"}),
			NewMemoryMirror("b", map[string]string{"k": "from_b"}),
		)
		session := f.verifiedSession(t, ctx)
		diff, err := f.sync.ComputeDiff(ctx, session.ID)
		require.NoError(t, err)

		_, err = f.sync.ApplyDiff(ctx, session, diff)
		require.ErrorIs(t, err, ErrManualResolutionRequired)
	})

	t.Run("manual policy applies operator-resolved conflicts", func(t *testing.T) {
		f := newSyncFixture(t, config.ConflictManual,
			NewMemoryMirror("a", map[string]string{"k": "from_a"}),
			NewMemoryMirror("b", map[string]string{"k": "from_b"}),
		)
		session := f.verifiedSession(t, ctx)
		diff, err := f.sync.ComputeDiff(ctx, session.ID)
		require.NoError(t, err)
		diff.Entries[0].Resolution = models.ResolutionUseB

		result, err := f.sync.ApplyDiff(ctx, session, diff)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Applied)
		assert.Equal(t, map[string]string{"k": "from_b"}, snapshot(t, f.mirrorA))
	})
}
