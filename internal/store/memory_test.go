package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "avion/internal/errors"
	"avion/internal/license"
	"avion/internal/profile"
)

var memNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func insertKey(t *testing.T, mem *Memory, key string) license.LicenseKey {
	t.Helper()
	rec, err := mem.Insert(context.Background(), license.LicenseKey{
		ID:        "lic-" + key,
		Key:       key,
		Kind:      license.KindWeekly,
		CreatedAt: memNow,
		IsActive:  true,
	})
	require.NoError(t, err)
	return rec
}

func TestMemoryFindByKey(t *testing.T) {
	mem := NewMemory()
	insertKey(t, mem, "AVION-AB12-CD34-EF56")

	rec, err := mem.FindByKey(context.Background(), "AVION-AB12-CD34-EF56")
	require.NoError(t, err)
	assert.Equal(t, "lic-AVION-AB12-CD34-EF56", rec.ID)

	_, err = mem.FindByKey(context.Background(), "AVION-ZZZZ-ZZZZ-ZZZZ")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}

func TestMemoryClaim(t *testing.T) {
	mem := NewMemory()
	insertKey(t, mem, "AVION-AB12-CD34-EF56")

	expires := memNow.Add(7 * 24 * time.Hour)
	rec, err := mem.Claim(context.Background(), license.ClaimRequest{
		Key:         "AVION-AB12-CD34-EF56",
		OwnerID:     "owner-1",
		HWID:        "AVION-AAAA-BBBB-CCCC-DDDD",
		ActivatedAt: memNow,
		ExpiresAt:   &expires,
	})
	require.NoError(t, err)
	require.NotNil(t, rec.OwnerID)
	assert.Equal(t, "owner-1", *rec.OwnerID)
	assert.True(t, rec.IsActive)

	// A second claim finds the row no longer unclaimed.
	_, err = mem.Claim(context.Background(), license.ClaimRequest{
		Key:         "AVION-AB12-CD34-EF56",
		OwnerID:     "owner-2",
		HWID:        "AVION-EEEE-FFFF-GGGG-HHHH",
		ActivatedAt: memNow,
	})
	assert.ErrorIs(t, err, apperrors.ErrClaimConflict)
}

func TestMemoryClaimUnknownKey(t *testing.T) {
	mem := NewMemory()
	_, err := mem.Claim(context.Background(), license.ClaimRequest{
		Key:         "AVION-AB12-CD34-EF56",
		OwnerID:     "owner-1",
		HWID:        "AVION-AAAA-BBBB-CCCC-DDDD",
		ActivatedAt: memNow,
	})
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}

func TestMemoryFindActiveByOwner(t *testing.T) {
	mem := NewMemory()
	insertKey(t, mem, "AVION-1111-1111-1111")
	insertKey(t, mem, "AVION-2222-2222-2222")

	_, err := mem.Claim(context.Background(), license.ClaimRequest{
		Key:         "AVION-1111-1111-1111",
		OwnerID:     "owner-1",
		HWID:        "AVION-AAAA-BBBB-CCCC-DDDD",
		ActivatedAt: memNow,
	})
	require.NoError(t, err)

	records, err := mem.FindActiveByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "AVION-1111-1111-1111", records[0].Key)

	// Deactivated licenses drop out of the active set.
	_, err = mem.Deactivate(context.Background(), records[0].ID)
	require.NoError(t, err)

	records, err = mem.FindActiveByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryRelock(t *testing.T) {
	mem := NewMemory()
	rec := insertKey(t, mem, "AVION-AB12-CD34-EF56")

	updated, err := mem.Relock(context.Background(), rec.ID, "AVION-EEEE-FFFF-GGGG-HHHH")
	require.NoError(t, err)
	require.NotNil(t, updated.HWIDLock)
	assert.Equal(t, "AVION-EEEE-FFFF-GGGG-HHHH", *updated.HWIDLock)

	_, err = mem.Relock(context.Background(), "missing", "AVION-EEEE-FFFF-GGGG-HHHH")
	assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
}

func TestMemoryHonorsContextCancellation(t *testing.T) {
	mem := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mem.FindByKey(ctx, "AVION-AB12-CD34-EF56")
	assert.ErrorIs(t, err, context.Canceled)

	_, err = mem.Claim(ctx, license.ClaimRequest{Key: "AVION-AB12-CD34-EF56"})
	assert.ErrorIs(t, err, context.Canceled)

	assert.ErrorIs(t, mem.Ping(ctx), context.Canceled)
}

func TestMemoryProfiles(t *testing.T) {
	mem := NewMemory()

	_, err := mem.GetProfile(context.Background(), "owner-1")
	assert.ErrorIs(t, err, apperrors.ErrProfileNotFound)

	p := profile.Profile{OwnerID: "owner-1", HWID: "AVION-AAAA-BBBB-CCCC-DDDD", UpdatedAt: memNow}
	require.NoError(t, mem.SaveProfile(context.Background(), p))

	got, err := mem.GetProfile(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, p.HWID, got.HWID)

	require.NoError(t, mem.LogReset(context.Background(), profile.ResetLog{
		ID:        "reset-1",
		OwnerID:   "owner-1",
		OldHWID:   p.HWID,
		NewHWID:   "AVION-EEEE-FFFF-GGGG-HHHH",
		CreatedAt: memNow,
	}))

	logs := mem.ResetLogsFor("owner-1")
	require.Len(t, logs, 1)
	assert.Equal(t, "reset-1", logs[0].ID)
	assert.Empty(t, mem.ResetLogsFor("owner-2"))
}
