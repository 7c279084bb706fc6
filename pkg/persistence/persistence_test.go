package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registration struct {
	UserID    uint64 `json:"user_id"`
	PublicKey string `json:"public_key"`
}

func testServices(t *testing.T) map[string]Service {
	return map[string]Service{
		"file":   NewJSONFileService(filepath.Join(t.TempDir(), "cache")),
		"memory": NewMemoryService(),
	}
}

func TestStore_SaveLoadDelete(t *testing.T) {
	for name, svc := range testServices(t) {
		t.Run(name, func(t *testing.T) {
			store := svc.NewStore("registration", "testnet", "02abc")

			var got registration
			assert.ErrorIs(t, store.Load(&got), ErrNotExists)

			want := registration{UserID: 42, PublicKey: "02abc"}
			require.NoError(t, store.Save(want))
			require.NoError(t, store.Load(&got))
			assert.Equal(t, want, got)

			other := svc.NewStore("registration", "mainnet", "02abc")
			assert.ErrorIs(t, other.Load(&got), ErrNotExists)

			require.NoError(t, store.Delete())
			assert.ErrorIs(t, store.Load(&got), ErrNotExists)
			require.NoError(t, store.Delete())
		})
	}
}

func TestJSONFileStore_SanitizesKey(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONFileService(dir).NewStore("registration", "test/net", "a b")
	require.NoError(t, store.Save(registration{UserID: 1}))

	_, err := os.Stat(filepath.Join(dir, "registration_test_net_a_b.json"))
	assert.NoError(t, err)
}

func TestJSONFileStore_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONFileService(dir).NewStore("p", "i", "t")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p_i_t.json"), nil, 0o600))
	var r registration
	assert.ErrorIs(t, store.Load(&r), ErrNotExists)
}
