package inkwell_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-cms/inkwell/pkg/inkwell"
)

func TestLockByUID(t *testing.T) {
	ctx := context.Background()

	t.Run("acquire free lock", func(t *testing.T) {
		svc := setupService(t)
		head := createDraft(t, svc, "lockable")

		locked, err := svc.LockByUID(ctx, head.UID, "editor-1")
		require.NoError(t, err)
		require.NotNil(t, locked.LockedBy)
		assert.Equal(t, "editor-1", *locked.LockedBy)
		assert.NotNil(t, locked.LockedAt)
	})

	t.Run("lock does not bump version", func(t *testing.T) {
		svc := setupService(t)
		head := createDraft(t, svc, "version-stable")

		locked, err := svc.LockByUID(ctx, head.UID, "editor-1")
		require.NoError(t, err)
		assert.Equal(t, head.VersionNumber, locked.VersionNumber)
		assert.Equal(t, head.ETag, locked.ETag)
	})

	t.Run("holder can renew", func(t *testing.T) {
		svc := setupService(t)
		head := createDraft(t, svc, "renewable")

		_, err := svc.LockByUID(ctx, head.UID, "editor-1")
		require.NoError(t, err)
		_, err = svc.LockByUID(ctx, head.UID, "editor-1")
		assert.NoError(t, err)
	})

	t.Run("live lock blocks another actor", func(t *testing.T) {
		svc := setupService(t)
		head := createDraft(t, svc, "contested")

		_, err := svc.LockByUID(ctx, head.UID, "editor-1")
		require.NoError(t, err)

		_, err = svc.LockByUID(ctx, head.UID, "editor-2")
		var locked *inkwell.LockedError
		require.ErrorAs(t, err, &locked)
		assert.Equal(t, "editor-1", locked.HeldBy)
	})

	t.Run("expired lock is silently taken over", func(t *testing.T) {
		now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		svc := setupService(t,
			inkwell.WithClock(clock),
			inkwell.WithLockTTL(5*time.Minute))
		head := createDraft(t, svc, "stale-lock")

		_, err := svc.LockByUID(ctx, head.UID, "editor-1")
		require.NoError(t, err)

		now = now.Add(6 * time.Minute)
		taken, err := svc.LockByUID(ctx, head.UID, "editor-2")
		require.NoError(t, err)
		assert.Equal(t, "editor-2", *taken.LockedBy)
	})
}

func TestUnlockByUID(t *testing.T) {
	ctx := context.Background()

	t.Run("holder unlocks", func(t *testing.T) {
		svc := setupService(t)
		head := createDraft(t, svc, "unlockable")
		_, err := svc.LockByUID(ctx, head.UID, "editor-1")
		require.NoError(t, err)

		unlocked, err := svc.UnlockByUID(ctx, head.UID, "editor-1", false)
		require.NoError(t, err)
		assert.Nil(t, unlocked.LockedBy)
		assert.Nil(t, unlocked.LockedAt)
	})

	t.Run("non-holder is rejected without force", func(t *testing.T) {
		svc := setupService(t)
		head := createDraft(t, svc, "held")
		_, err := svc.LockByUID(ctx, head.UID, "editor-1")
		require.NoError(t, err)

		_, err = svc.UnlockByUID(ctx, head.UID, "editor-2", false)
		var locked *inkwell.LockedError
		assert.ErrorAs(t, err, &locked)
	})

	t.Run("force releases any lock", func(t *testing.T) {
		svc := setupService(t)
		head := createDraft(t, svc, "forced")
		_, err := svc.LockByUID(ctx, head.UID, "editor-1")
		require.NoError(t, err)

		unlocked, err := svc.UnlockByUID(ctx, head.UID, "admin-1", true)
		require.NoError(t, err)
		assert.Nil(t, unlocked.LockedBy)
	})

	t.Run("unlocking an unlocked head is a no-op", func(t *testing.T) {
		svc := setupService(t)
		head := createDraft(t, svc, "already-open")

		unlocked, err := svc.UnlockByUID(ctx, head.UID, "editor-1", false)
		require.NoError(t, err)
		assert.Nil(t, unlocked.LockedBy)
	})
}
