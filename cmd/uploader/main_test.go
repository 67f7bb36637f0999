package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"

	"nidb-uploader/internal/identity"
	"nidb-uploader/internal/profiles"
)

func TestConnectionsAddPromptsForPassword(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "connections.txt")
	t.Setenv("NIDB_CONNECTIONS_FILE", store)
	t.Setenv("NIDB_LOG_FILE", filepath.Join(dir, "output.log"))

	readPassword = func(int) ([]byte, error) { return []byte("secret"), nil }
	t.Cleanup(func() {
		readPassword = term.ReadPassword
		if env != nil {
			_ = env.Close()
			env = nil
		}
	})

	rootCmd.SetArgs([]string{"connections", "add", "https://nidb.example.org/", "admin"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	saved, err := profiles.NewStore(store).Load()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "https://nidb.example.org", saved[0].Server)
	assert.Equal(t, "admin", saved[0].Username)
	assert.Equal(t, identity.PasswordHash("secret"), saved[0].PasswordHash)
}

func TestCancelOnSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	sig <- os.Interrupt

	var warned []string
	cancelOnSignal(sig, cancel, func(msg string) { warned = append(warned, msg) })

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	require.Len(t, warned, 1)
	assert.Contains(t, warned[0], "cancelling")
	assert.NotContains(t, warned[0], "finishing")
}
