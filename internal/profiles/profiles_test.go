package profiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "conf", "connections.txt"))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	a, err := NewProfile("https://nidb.example.org/", "alice", "secret")
	require.NoError(t, err)
	b, err := NewProfile("http://localhost:8080", "bob", "pw")
	require.NoError(t, err)
	require.NoError(t, s.Append(a))
	require.NoError(t, s.Append(b))

	got, err = s.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://nidb.example.org", got[0].Server)
	assert.Equal(t, "E5E9FA1BA31ECD1AE84F75CAAA474F3A663F05F4", got[0].PasswordHash)
	assert.Equal(t, "https://nidb.example.org,alice,E5E9FA1BA31ECD1AE84F75CAAA474F3A663F05F4", got[0].Display())

	removed, err := s.Remove(0)
	require.NoError(t, err)
	assert.Equal(t, "alice", removed.Username)

	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, []Profile{b}, got)

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = s.Remove(5)
	assert.Error(t, err)
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.txt")
	content := "\nhttp://a\tu\tH1\nbroken line\nhttp://b\tv\n\thalf\tX\r\nhttp://c\tw\tH3\r\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	got, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, []Profile{
		{Server: "http://a", Username: "u", PasswordHash: "H1"},
		{Server: "http://c", Username: "w", PasswordHash: "H3"},
	}, got)
}

func TestNewProfileRequiresFields(t *testing.T) {
	_, err := NewProfile(" ", "alice", "x")
	assert.Error(t, err)
	_, err = NewProfile("http://a", "", "x")
	assert.Error(t, err)
	_, err = NewProfile("http://a", "al\tice", "x")
	assert.Error(t, err)
}
