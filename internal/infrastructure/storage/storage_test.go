package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"safe-eye-console/internal/domain/entity"
)

func TestMemoryOperatorRepository_GetCreatesAndSaves(t *testing.T) {
	repo := NewMemoryOperatorRepository()
	ctx := context.Background()

	operator, err := repo.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, operator.State)

	operator.SetState(entity.StateAwaitingPhoto)
	stored, err := repo.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, stored.State, "unsaved changes must not leak")

	require.NoError(t, repo.Save(ctx, operator))
	require.NoError(t, repo.UpdateState(ctx, 1, entity.StateProcessing))

	stored, err = repo.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateProcessing, stored.State)
}

func TestYAMLTokenStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "tokens.yaml")
	store := NewYAMLTokenStore(path)

	tokens, err := store.Load()
	require.NoError(t, err)
	require.False(t, tokens.Valid())

	require.NoError(t, store.Save(entity.Tokens{Access: "a", Refresh: "r"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tokens, err = NewYAMLTokenStore(path).Load()
	require.NoError(t, err)
	require.Equal(t, entity.Tokens{Access: "a", Refresh: "r"}, tokens)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestYAMLSettingsStore_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("system:\n  detection_sensitivity: 50\n"), 0o644))

	settings, err := NewYAMLSettingsStore(path).Load()
	require.NoError(t, err)
	require.Equal(t, 50, settings.System.DetectionSensitivity)
	require.Equal(t, entity.DefaultAlertTemplate, settings.Notifications.Template)
}

func TestYAMLSettingsStore_SaveAndLoad(t *testing.T) {
	store := NewYAMLSettingsStore(filepath.Join(t.TempDir(), "settings.yaml"))

	want := entity.DefaultSettings()
	want.System.DetectionSensitivity = 85
	want.Notifications.Contacts = []string{"ops@example.com"}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestYAMLSettingsStore_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("system: [oops"), 0o644))

	settings, err := NewYAMLSettingsStore(path).Load()
	require.Error(t, err)
	require.Equal(t, entity.DefaultSettings(), settings)
}
