package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorgate/internal/audit"
	bmodels "mirrorgate/internal/bridge/models"
	"mirrorgate/internal/mirror"
	"mirrorgate/internal/mirror/store"
	"mirrorgate/internal/nonce"
	noncestore "mirrorgate/internal/nonce/store"
	"mirrorgate/internal/platform/config"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/requestcontext"
	"mirrorgate/pkg/testutil"
)

// sessionMap serves sessions and records updates, standing in for the bridge
// session store.
type sessionMap struct {
	sessions map[id.SessionID]*bmodels.Session
}

func (s *sessionMap) Session(_ context.Context, sessionID id.SessionID) (*bmodels.Session, error) {
	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}
	return nil, mirror.ErrSessionInvalid
}

func (s *sessionMap) Update(_ context.Context, session *bmodels.Session) error {
	s.sessions[session.ID] = session
	return nil
}

type captureAudit struct {
	events []audit.Event
}

func (c *captureAudit) Emit(_ context.Context, event audit.Event) {
	c.events = append(c.events, event)
}

type syncFixture struct {
	router   chi.Router
	mirrorA  *mirror.InMemoryMirror
	mirrorB  *mirror.InMemoryMirror
	sessions *sessionMap
	ledger   *nonce.Ledger
	auditor  *captureAudit
}

func newSyncFixture(t *testing.T, policy string, a, b map[string]string) *syncFixture {
	t.Helper()
	mirrorA := mirror.NewMemoryMirror("primary", a)
	mirrorB := mirror.NewMemoryMirror("companion", b)
	ledger := nonce.NewLedger(
		config.NonceConfig{TTL: 30 * time.Second, SweepInterval: time.Second},
		noncestore.NewMemory(),
	)
	sessions := &sessionMap{sessions: map[id.SessionID]*bmodels.Session{}}
	sync := mirror.NewSynchronizer(
		config.SyncConfig{ConflictPolicy: policy},
		mirrorA, mirrorB, ledger, sessions, store.NewMemory(),
	)
	auditor := &captureAudit{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	router := chi.NewRouter()
	New(sync, sessions, auditor, logger).Register(router)
	return &syncFixture{
		router:   router,
		mirrorA:  mirrorA,
		mirrorB:  mirrorB,
		sessions: sessions,
		ledger:   ledger,
		auditor:  auditor,
	}
}

// verifiedSession registers a verified session with a live nonce and returns
// its id.
func (f *syncFixture) verifiedSession(t *testing.T) id.SessionID {
	t.Helper()
	n, err := f.ledger.Issue(context.Background(), id.NewSubjectID())
	require.NoError(t, err)
	session := &bmodels.Session{
		ID:        id.NewSessionID(),
		SubjectID: id.NewSubjectID(),
		NonceID:   n.ID,
		Status:    bmodels.StatusVerified,
		ExpiresAt: requestcontext.Now(context.Background()).Add(time.Minute),
	}
	f.sessions.sessions[session.ID] = session
	return session.ID
}

func TestHandleDiff(t *testing.T) {
	f := newSyncFixture(t, config.ConflictManual,
		map[string]string{"name": "Ada", "city": "Kaunas"},
		map[string]string{"name": "Ada", "phone": "+370"},
	)
	sessionID := f.verifiedSession(t)

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t,
		http.MethodGet, "/sync/sessions/"+sessionID.String()+"/diff"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := testutil.DecodeJSON[*DiffResponse](t, rr)
	assert.NotEmpty(t, resp.Digest)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "city", resp.Entries[0].Key)
	assert.False(t, resp.Entries[0].Conflict)
	assert.Equal(t, "use_a", resp.Entries[0].Resolution)
	assert.Equal(t, "phone", resp.Entries[1].Key)
	assert.Equal(t, "use_b", resp.Entries[1].Resolution)
}

func TestHandleDiff_UnverifiedSession(t *testing.T) {
	f := newSyncFixture(t, config.ConflictManual, nil, nil)
	session := &bmodels.Session{ID: id.NewSessionID(), Status: bmodels.StatusPending}
	f.sessions.sessions[session.ID] = session

	rr := testutil.DoRequest(f.router, testutil.NewRequest(t,
		http.MethodGet, "/sync/sessions/"+session.ID.String()+"/diff"))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandleApply_Drift(t *testing.T) {
	f := newSyncFixture(t, config.ConflictManual,
		map[string]string{"city": "Kaunas"},
		map[string]string{},
	)
	sessionID := f.verifiedSession(t)

	rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t,
		http.MethodPost, "/sync/sessions/"+sessionID.String()+"/apply", map[string]any{}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := testutil.DecodeJSON[*ApplyResponse](t, rr)
	assert.Equal(t, 1, resp.Applied)
	assert.False(t, resp.Replayed)

	value, ok, err := f.mirrorB.Get(context.Background(), "city")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Kaunas", value)

	require.NotEmpty(t, f.auditor.events)
	assert.Equal(t, audit.CategorySync, f.auditor.events[0].Category)
	assert.Equal(t, "accept", f.auditor.events[0].Decision)
}

func TestHandleApply_ManualConflictNeedsOperator(t *testing.T) {
	f := newSyncFixture(t, config.ConflictManual,
		map[string]string{"name": "Ada"},
		map[string]string{"name": "Eda"},
	)
	sessionID := f.verifiedSession(t)

	t.Run("unresolved conflict blocks", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t,
			http.MethodPost, "/sync/sessions/"+sessionID.String()+"/apply", map[string]any{}))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("resolution without operator is forbidden", func(t *testing.T) {
		rr := testutil.DoRequest(f.router, testutil.NewJSONRequest(t,
			http.MethodPost, "/sync/sessions/"+sessionID.String()+"/apply",
			map[string]any{"resolutions": map[string]string{"name": "use_a"}}))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestHandleApply_Validation(t *testing.T) {
	f := newSyncFixture(t, config.ConflictManual,
		map[string]string{"name": "Ada"},
		map[string]string{"name": "Eda"},
	)
	sessionID := f.verifiedSession(t)
	ctxRouter := operatorRouter(f.router)

	t.Run("bad resolution value", func(t *testing.T) {
		rr := testutil.DoRequest(ctxRouter, testutil.NewJSONRequest(t,
			http.MethodPost, "/sync/sessions/"+sessionID.String()+"/apply",
			map[string]any{"resolutions": map[string]string{"name": "use_c"}}))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("stale resolution key", func(t *testing.T) {
		rr := testutil.DoRequest(ctxRouter, testutil.NewJSONRequest(t,
			http.MethodPost, "/sync/sessions/"+sessionID.String()+"/apply",
			map[string]any{"resolutions": map[string]string{"vanished": "use_a"}}))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestHandleApply_OperatorResolvesConflict(t *testing.T) {
	f := newSyncFixture(t, config.ConflictManual,
		map[string]string{"name": "Ada"},
		map[string]string{"name": "Eda"},
	)
	sessionID := f.verifiedSession(t)

	rr := testutil.DoRequest(operatorRouter(f.router), testutil.NewJSONRequest(t,
		http.MethodPost, "/sync/sessions/"+sessionID.String()+"/apply",
		map[string]any{"resolutions": map[string]string{"name": "use_b"}}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	value, ok, err := f.mirrorA.Get(context.Background(), "name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Eda", value)
}

func TestHandleApply_SecondApplyNeedsFreshSession(t *testing.T) {
	f := newSyncFixture(t, config.ConflictPreferA,
		map[string]string{"a": "1"},
		map[string]string{},
	)
	sessionID := f.verifiedSession(t)

	first := testutil.DoRequest(f.router, testutil.NewJSONRequest(t,
		http.MethodPost, "/sync/sessions/"+sessionID.String()+"/apply", map[string]any{}))
	require.Equal(t, http.StatusOK, first.Code)

	// Same session again: nonce already consumed, mirrors already agree, so
	// the recomputed diff is empty and applies as a no-op... unless content
	// changed, in which case the burned nonce refuses.
	require.NoError(t, f.mirrorA.Set(context.Background(), "b", "2"))
	second := testutil.DoRequest(f.router, testutil.NewJSONRequest(t,
		http.MethodPost, "/sync/sessions/"+sessionID.String()+"/apply", map[string]any{}))
	assert.Equal(t, http.StatusForbidden, second.Code)
}

// operatorRouter wraps the fixture router with the operator flag the real
// middleware would set from the operator token.
func operatorRouter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(requestcontext.WithOperator(r.Context(), true)))
	})
}
