package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/hwclaim/internal/device"
	"github.com/mrz1836/hwclaim/internal/discovery"
	"github.com/mrz1836/hwclaim/internal/explorer"
	hwerr "github.com/mrz1836/hwclaim/pkg/errors"
)

func sampleState() *State {
	s := New()
	s.Vendor = device.Ledger
	s.IsFirstRun = false
	s.TipTime = 1_700_000_000
	s.ExplorerEndpoint = "alt1"
	s.Accounts = []discovery.Account{{
		Index:   0,
		Xpub:    "xpub-test",
		Balance: 2_000_000_000,
		UTXOs: []explorer.UTXO{{
			TxID: "aa", Vout: 1, Satoshis: 2_000_000_000, Address: "RAddr", Height: 3_000_000,
		}},
		Rewards:         262_390,
		ClaimableAmount: 262_390,
	}}
	s.Claims[0] = ClaimState{IsClaimed: true, ClaimTxID: "bb"}
	return s
}

func TestStore_LoadMissingReturnsInitialState(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	state, err := store.Load()
	require.NoError(t, err)
	assert.True(t, state.IsFirstRun)
	assert.False(t, state.HasVendor())
	assert.NotNil(t, state.Claims)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "home")
	store := NewStore(dir)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	in := sampleState()
	require.NoError(t, store.Save(in))
	assert.True(t, in.UpdatedAt.IsZero(), "caller's value must not be stamped")

	info, err := os.Stat(store.SessionPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePermissions), info.Mode().Perm())

	out, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, device.Ledger, out.Vendor)
	assert.Equal(t, fixed, out.UpdatedAt)
	assert.Equal(t, "alt1", out.ExplorerEndpoint)
	require.Len(t, out.Accounts, 1)
	assert.Equal(t, uint64(2_000_000_000), out.Accounts[0].Balance)
	assert.Equal(t, ClaimState{IsClaimed: true, ClaimTxID: "bb"}, out.ClaimFor(0))
	assert.False(t, out.IsFirstRun)
}

func TestStore_CorruptSessionIsMovedAside(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewStore(dir)
	require.NoError(t, os.WriteFile(store.SessionPath(), []byte("{not json"), 0o600))

	state, err := store.Load()
	require.ErrorIs(t, err, ErrCorrupted)
	assert.True(t, state.IsFirstRun)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), SessionFile+".corrupt."))
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	require.NoError(t, store.Clear(), "clearing a missing file is fine")

	require.NoError(t, store.Save(sampleState()))
	require.NoError(t, store.Clear())
	_, err := os.Stat(store.SessionPath())
	assert.True(t, os.IsNotExist(err))
}

func TestStore_Settings(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())

	settings, err := store.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, settings.Theme)

	require.NoError(t, store.SaveSettings(&Settings{Theme: ThemeLight}))
	settings, err = store.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, settings.Theme)

	require.NoError(t, store.Clear())
	settings, err = store.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, ThemeLight, settings.Theme, "reset does not touch settings")
}

func TestStore_SettingsWithUnknownTheme(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	require.NoError(t, os.WriteFile(store.SettingsPath(), []byte(`{"theme":"neon"}`), 0o600))

	settings, err := store.LoadSettings()
	require.ErrorIs(t, err, ErrCorrupted)
	assert.Equal(t, ThemeDark, settings.Theme)
}

func TestStore_SaveNil(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir())
	require.Error(t, store.Save(nil))
	require.Error(t, store.SaveSettings(nil))
}

func TestStore_LockIsExclusive(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "home")
	first, second := NewStore(dir), NewStore(dir)

	unlock, err := first.Lock()
	require.NoError(t, err)
	assert.FileExists(t, first.LockPath())

	_, err = second.Lock()
	require.ErrorIs(t, err, hwerr.ErrClaimInProgress)
	assert.True(t, hwerr.IsRecoverable(err))

	require.NoError(t, unlock())
	require.NoError(t, unlock())

	again, err := second.Lock()
	require.NoError(t, err)
	require.NoError(t, again())
}

func TestStore_ClearKeepsLock(t *testing.T) {
	t.Parallel()
	s := NewStore(t.TempDir())

	unlock, err := s.Lock()
	require.NoError(t, err)
	defer func() { require.NoError(t, unlock()) }()

	require.NoError(t, s.Save(New()))
	require.NoError(t, s.Clear())
	assert.NoFileExists(t, s.SessionPath())
	assert.FileExists(t, s.LockPath())
}
