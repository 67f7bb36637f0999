package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nidb-uploader/internal/config"
	"nidb-uploader/internal/dicom/dicomtest"
	"nidb-uploader/internal/identity"
	"nidb-uploader/internal/mockarchive"
	"nidb-uploader/internal/profiles"
)

func testEnv(t *testing.T) (*Env, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.Load(config.New())
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.ConnectionsFile = filepath.Join(dir, "connections.txt")
	cfg.TempDir = filepath.Join(dir, "tmp")
	cfg.Log.File = filepath.Join(dir, "output.log")
	cfg.Log.AuditFile = filepath.Join(dir, "idmap.txt")
	cfg.Log.LedgerFile = filepath.Join(dir, "uploads.db")

	var out bytes.Buffer
	env, err := Open(cfg, &out, nil)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env, &out
}

func TestConnectionResolution(t *testing.T) {
	env, _ := testEnv(t)

	_, err := env.Connection()
	assert.Error(t, err, "nothing configured")

	env.Cfg.Connection.Server = "http://direct"
	p, err := env.Connection()
	require.NoError(t, err)
	assert.Equal(t, "http://direct", p.Server)

	saved, err := profiles.NewProfile("http://saved", "bob", "pw")
	require.NoError(t, err)
	require.NoError(t, env.Profiles().Append(saved))
	env.Cfg.Connection.Profile = 0
	p, err = env.Connection()
	require.NoError(t, err)
	assert.Equal(t, saved, p)

	env.Cfg.Connection.Profile = 3
	_, err = env.Connection()
	assert.Error(t, err)
}

func TestUploadEndToEnd(t *testing.T) {
	mock := mockarchive.New(mockarchive.Options{Username: "alice", PasswordHash: identity.PasswordHash("pw"), Log: zerolog.Nop()})
	srv := httptest.NewServer(mock.Echo())
	defer srv.Close()

	env, out := testEnv(t)
	env.Cfg.Connection = config.Connection{Server: srv.URL, Username: "alice", PasswordHash: identity.PasswordHash("pw"), Profile: -1}
	env.Cfg.Upload.InstanceID = "1"
	env.Cfg.Upload.ProjectID = "100"
	env.Cfg.Upload.SiteID = "10"
	env.Cfg.Anonymize.ReplacePatientID = true

	data := t.TempDir()
	dicomtest.Write(t, filepath.Join(data, "a", "1.dcm"), dicomtest.Patient("DOE^JOHN", "P1", "19850313", "MR"))
	dicomtest.Write(t, filepath.Join(data, "b", "2.dcm"), dicomtest.Patient("ROE^JANE", "P2", "19700101", "CT"))

	require.NoError(t, Upload(context.Background(), env, data, "DICOM"))

	batches := mock.Batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Files, 2)
	assert.Equal(t, []int64{1}, mock.Ended())
	assert.Contains(t, out.String(), "Complete! 2 succeeded, 0 failed")

	require.NoError(t, History(context.Background(), env, 10))
	assert.Equal(t, 2, strings.Count(out.String(), "Upload success"))
	assert.Equal(t, 2, env.audit.Entries())
}

func TestListsAndTestConnection(t *testing.T) {
	mock := mockarchive.New(mockarchive.Options{Log: zerolog.Nop()})
	mock.SetList("getEquipmentList", "")
	srv := httptest.NewServer(mock.Echo())
	defer srv.Close()

	env, out := testEnv(t)
	env.Cfg.Connection.Server = srv.URL
	env.Cfg.Connection.Username = "alice"

	require.NoError(t, Lists(context.Background(), env))
	assert.Contains(t, out.String(), "1 - Main instance")
	assert.Contains(t, out.String(), "No equipment available")

	require.NoError(t, TestConnection(context.Background(), env))
	assert.Contains(t, out.String(), "Welcome")
}
