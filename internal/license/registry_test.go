package license_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "avion/internal/errors"
	"avion/internal/license"
	"avion/internal/store"
)

const (
	testKey   = "AVION-AB12-CD34-EF56"
	testHWID  = "AVION-AAAA-BBBB-CCCC-DDDD"
	otherHWID = "AVION-EEEE-FFFF-GGGG-HHHH"
)

var testNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func seedKey(t *testing.T, mem *store.Memory, key string, kind license.Kind) license.LicenseKey {
	t.Helper()
	rec, err := mem.Insert(context.Background(), license.LicenseKey{
		ID:        "lic-" + key,
		Key:       key,
		Kind:      kind,
		CreatedAt: testNow,
		IsActive:  true,
	})
	require.NoError(t, err)
	return rec
}

func TestLookupByKey(t *testing.T) {
	mem := store.NewMemory()
	seedKey(t, mem, testKey, license.KindWeekly)
	registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

	t.Run("raw input is normalized before lookup", func(t *testing.T) {
		rec, err := registry.LookupByKey(context.Background(), " avion-ab12-cd34-ef56 ")
		require.NoError(t, err)
		assert.Equal(t, testKey, rec.Key)
	})

	t.Run("malformed key", func(t *testing.T) {
		_, err := registry.LookupByKey(context.Background(), "AVION-AB12")
		assert.ErrorIs(t, err, apperrors.ErrInvalidKeyFormat)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := registry.LookupByKey(context.Background(), "AVION-ZZZZ-ZZZZ-ZZZZ")
		assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
	})
}

func TestActivate(t *testing.T) {
	t.Run("weekly key gets owner, lock and expiry", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, testKey, license.KindWeekly)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		rec, err := registry.Activate(context.Background(), " avion-ab12-cd34-ef56 ", "owner-1", testHWID)
		require.NoError(t, err)

		require.NotNil(t, rec.OwnerID)
		assert.Equal(t, "owner-1", *rec.OwnerID)
		require.NotNil(t, rec.HWIDLock)
		assert.Equal(t, testHWID, *rec.HWIDLock)
		require.NotNil(t, rec.ActivatedAt)
		assert.True(t, rec.ActivatedAt.Equal(testNow))
		require.NotNil(t, rec.ExpiresAt)
		assert.True(t, rec.ExpiresAt.Equal(testNow.Add(7*24*time.Hour)))
		assert.True(t, rec.IsActive)
	})

	t.Run("lifetime key has no expiry", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, testKey, license.KindLifetime)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		rec, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
		require.NoError(t, err)
		assert.Nil(t, rec.ExpiresAt)
	})

	t.Run("malformed key fails before any store call", func(t *testing.T) {
		registry := license.NewRegistry(store.NewMemory())
		_, err := registry.Activate(context.Background(), "not-a-key", "owner-1", testHWID)
		assert.ErrorIs(t, err, apperrors.ErrInvalidKeyFormat)
	})

	t.Run("unknown key", func(t *testing.T) {
		registry := license.NewRegistry(store.NewMemory())
		_, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
		assert.ErrorIs(t, err, apperrors.ErrKeyNotFound)
	})

	t.Run("key claimed by another account", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, testKey, license.KindWeekly)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		_, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
		require.NoError(t, err)

		_, err = registry.Activate(context.Background(), testKey, "owner-2", testHWID)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyClaimed)
	})

	t.Run("ownership is checked before the hardware lock", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, testKey, license.KindWeekly)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		_, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
		require.NoError(t, err)

		// Both checks would fail here; ownership wins.
		_, err = registry.Activate(context.Background(), testKey, "owner-2", otherHWID)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyClaimed)
	})

	t.Run("same owner on a different device", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, testKey, license.KindWeekly)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		_, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
		require.NoError(t, err)

		_, err = registry.Activate(context.Background(), testKey, "owner-1", otherHWID)
		assert.ErrorIs(t, err, apperrors.ErrHardwareMismatch)
	})

	t.Run("re-activation is idempotent and never renews", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, testKey, license.KindWeekly)

		now := testNow
		registry := license.NewRegistry(mem, license.WithClock(func() time.Time { return now }))

		first, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
		require.NoError(t, err)

		// Three days later the same owner re-activates on the same
		// device; the stored expiry must not move.
		now = testNow.Add(3 * 24 * time.Hour)
		second, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
		require.NoError(t, err)

		require.NotNil(t, second.ExpiresAt)
		assert.True(t, second.ExpiresAt.Equal(*first.ExpiresAt), "repeat activation must not extend the expiry")
		assert.True(t, second.ActivatedAt.Equal(*first.ActivatedAt))
	})

	t.Run("two racing claimants, exactly one wins", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, testKey, license.KindWeekly)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, owner := range []string{"owner-1", "owner-2"} {
			wg.Add(1)
			go func(i int, owner string) {
				defer wg.Done()
				_, errs[i] = registry.Activate(context.Background(), testKey, owner, testHWID)
			}(i, owner)
		}
		wg.Wait()

		var wins, rejections int
		for _, err := range errs {
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, apperrors.ErrAlreadyClaimed):
				rejections++
			}
		}
		assert.Equal(t, 1, wins)
		assert.Equal(t, 1, rejections)

		rec, err := mem.FindByKey(context.Background(), testKey)
		require.NoError(t, err)
		require.NotNil(t, rec.OwnerID)
	})
}

// slowRepo wraps the in-memory store and stalls reads until the caller's
// deadline fires.
type slowRepo struct {
	*store.Memory
}

func (s *slowRepo) FindByKey(ctx context.Context, key string) (license.LicenseKey, error) {
	<-ctx.Done()
	return license.LicenseKey{}, ctx.Err()
}

func TestActivateStoreTimeout(t *testing.T) {
	mem := store.NewMemory()
	seedKey(t, mem, testKey, license.KindWeekly)
	registry := license.NewRegistry(&slowRepo{mem},
		license.WithClock(fixedClock(testNow)),
		license.WithTimeout(10*time.Millisecond),
	)

	_, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
	assert.ErrorIs(t, err, apperrors.ErrStoreTimeout)
	assert.NotErrorIs(t, err, apperrors.ErrKeyNotFound, "a timeout must never masquerade as a missing key")
}

func TestSweepExpired(t *testing.T) {
	t.Run("expired active license is deactivated", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, testKey, license.KindWeekly)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		rec, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
		require.NoError(t, err)

		late := license.NewRegistry(mem, license.WithClock(fixedClock(testNow.Add(8*24*time.Hour))))
		swept, err := late.SweepExpired(context.Background(), rec)
		require.NoError(t, err)
		assert.False(t, swept.IsActive)

		stored, err := mem.FindByKey(context.Background(), testKey)
		require.NoError(t, err)
		assert.False(t, stored.IsActive, "deactivation must be persisted")
	})

	t.Run("live license passes through untouched", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, testKey, license.KindWeekly)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		rec, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
		require.NoError(t, err)

		swept, err := registry.SweepExpired(context.Background(), rec)
		require.NoError(t, err)
		assert.True(t, swept.IsActive)
	})

	t.Run("already inactive license is not re-written", func(t *testing.T) {
		mem := store.NewMemory()
		rec := seedKey(t, mem, testKey, license.KindWeekly)
		rec.IsActive = false

		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))
		swept, err := registry.SweepExpired(context.Background(), rec)
		require.NoError(t, err)
		assert.False(t, swept.IsActive)
	})
}

func TestCurrentLicenseFor(t *testing.T) {
	t.Run("no licenses", func(t *testing.T) {
		registry := license.NewRegistry(store.NewMemory(), license.WithClock(fixedClock(testNow)))
		current, err := registry.CurrentLicenseFor(context.Background(), "owner-1")
		require.NoError(t, err)
		assert.Nil(t, current)
	})

	t.Run("latest expiry wins", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, "AVION-1111-1111-1111", license.KindWeekly)
		seedKey(t, mem, "AVION-2222-2222-2222", license.KindMonthly)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		_, err := registry.Activate(context.Background(), "AVION-1111-1111-1111", "owner-1", testHWID)
		require.NoError(t, err)
		_, err = registry.Activate(context.Background(), "AVION-2222-2222-2222", "owner-1", testHWID)
		require.NoError(t, err)

		current, err := registry.CurrentLicenseFor(context.Background(), "owner-1")
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, "AVION-2222-2222-2222", current.Key)
	})

	t.Run("lifetime outranks any dated expiry", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, "AVION-1111-1111-1111", license.KindMonthly)
		seedKey(t, mem, "AVION-2222-2222-2222", license.KindLifetime)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		_, err := registry.Activate(context.Background(), "AVION-1111-1111-1111", "owner-1", testHWID)
		require.NoError(t, err)
		_, err = registry.Activate(context.Background(), "AVION-2222-2222-2222", "owner-1", testHWID)
		require.NoError(t, err)

		current, err := registry.CurrentLicenseFor(context.Background(), "owner-1")
		require.NoError(t, err)
		require.NotNil(t, current)
		assert.Equal(t, "AVION-2222-2222-2222", current.Key)
	})
}

func TestRelock(t *testing.T) {
	t.Run("no active license", func(t *testing.T) {
		registry := license.NewRegistry(store.NewMemory(), license.WithClock(fixedClock(testNow)))
		rec, err := registry.Relock(context.Background(), "owner-1", otherHWID)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("moves the hardware lock", func(t *testing.T) {
		mem := store.NewMemory()
		seedKey(t, mem, testKey, license.KindWeekly)
		registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

		_, err := registry.Activate(context.Background(), testKey, "owner-1", testHWID)
		require.NoError(t, err)

		rec, err := registry.Relock(context.Background(), "owner-1", otherHWID)
		require.NoError(t, err)
		require.NotNil(t, rec)
		require.NotNil(t, rec.HWIDLock)
		assert.Equal(t, otherHWID, *rec.HWIDLock)
	})
}

func TestIssue(t *testing.T) {
	mem := store.NewMemory()
	registry := license.NewRegistry(mem, license.WithClock(fixedClock(testNow)))

	rec, err := registry.Issue(context.Background(), license.KindMonthly)
	require.NoError(t, err)
	assert.True(t, license.ValidKeyFormat(rec.Key))
	assert.True(t, rec.IsActive)
	assert.Nil(t, rec.OwnerID)
	assert.Nil(t, rec.ExpiresAt)

	stored, err := mem.FindByKey(context.Background(), rec.Key)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, stored.ID)

	_, err = registry.Issue(context.Background(), license.Kind("yearly"))
	assert.Error(t, err)
}
