//go:build integration

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirrorgate/internal/platform/postgres"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/testutil/containers"
)

func TestPostgresAuditStore_Integration(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	ctx := context.Background()
	require.NoError(t, postgres.Migrate(ctx, pc.DB))
	store := NewPostgresStore(pc.DB)

	subject := id.NewSubjectID()
	sessionID := id.NewSessionID()
	base := time.Now().UTC().Truncate(time.Microsecond)

	events := []Event{
		{Timestamp: base, SubjectID: subject, Category: CategoryEnrollment, Action: "enroll", Decision: "accept"},
		{Timestamp: base.Add(time.Second), SubjectID: subject, SessionID: sessionID, Category: CategoryVerification, Action: "proof", Decision: "deny", Reason: "verification_failed"},
		{Timestamp: base.Add(2 * time.Second), SubjectID: id.NewSubjectID(), Category: CategorySession, Action: "create"},
	}
	for _, event := range events {
		require.NoError(t, store.Append(ctx, event))
	}

	trail, err := store.ListBySubject(ctx, subject)
	require.NoError(t, err)
	require.Len(t, trail, 2)

	assert.Equal(t, CategoryEnrollment, trail[0].Category)
	assert.True(t, trail[0].SessionID.IsNil())
	assert.Equal(t, CategoryVerification, trail[1].Category)
	assert.Equal(t, sessionID, trail[1].SessionID)
	assert.Equal(t, "verification_failed", trail[1].Reason)
}
