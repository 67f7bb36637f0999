package archive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nidb-uploader/internal/mockarchive"
)

func newTestClient(t *testing.T) (*Client, *mockarchive.Server) {
	t.Helper()
	mock := mockarchive.New(mockarchive.Options{Username: "alice", PasswordHash: "HASH", Log: zerolog.Nop()})
	srv := httptest.NewServer(mock.Echo())
	t.Cleanup(srv.Close)

	c, err := New(Options{Server: srv.URL + "/", Username: "alice", PasswordHash: "HASH"}, zerolog.Nop())
	require.NoError(t, err)
	return c, mock
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []ListItem
	}{
		{"empty", "  \n", nil},
		{"labelled", "1|Main,2|Other", []ListItem{{"1", "Main"}, {"2", "Other"}}},
		{"bare ids", "A,B", []ListItem{{ID: "A"}, {ID: "B"}}},
		{"trailing comma", "1|Main,", []ListItem{{"1", "Main"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseList(tt.body))
		})
	}

	assert.Equal(t, "1 - Main", ListItem{"1", "Main"}.Display())
	assert.Equal(t, "A", ListItem{ID: "A"}.Display())
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "No instances available", Placeholder(ListInstances))
	assert.Equal(t, "No projects within this instance", Placeholder(ListProjects))
	assert.Equal(t, "No sites available", Placeholder(ListSites))
	assert.Equal(t, "No equipment available", Placeholder(ListEquipment))
}

func TestActionAndDataFormat(t *testing.T) {
	tests := []struct {
		modality, action, format string
	}{
		{"DICOM", ActionUploadDICOM, "dicom"},
		{"MR", ActionUploadDICOM, ""},
		{"PARREC", ActionUploadNonDICOM, "parrec"},
		{"EEG", ActionUploadNonDICOM, "eeg"},
		{"NIFTI", ActionUploadDICOM, "nifti"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.action, ActionFor(tt.modality), tt.modality)
		assert.Equal(t, tt.format, DataFormatFor(tt.modality), tt.modality)
	}
}

func TestLists(t *testing.T) {
	c, mock := newTestClient(t)
	ctx := context.Background()

	items, err := c.Instances(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ListItem{{"1", "Main instance"}, {"2", "Research"}}, items)

	mock.SetList(ActionProjectList, "")
	items, err = c.Projects(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = c.Equipment(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ListItem{{ID: "3T Scanner"}}, items)
}

func TestTransactions(t *testing.T) {
	c, mock := newTestClient(t)
	ctx := context.Background()

	n, err := c.StartTransaction(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mock.SetTransactionReply(" \n")
	n, err = c.StartTransaction(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.SetTransactionReply("oops")
	n, err = c.StartTransaction(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = c.EndTransaction(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, mock.Ended())
}

func TestTestConnection(t *testing.T) {
	c, _ := newTestClient(t)
	reply, ok, err := c.TestConnection(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, reply)

	bad, err := New(Options{Server: c.Server(), Username: "alice", PasswordHash: "WRONG"}, zerolog.Nop())
	require.NoError(t, err)
	_, ok, err = bad.TestConnection(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubmitBatch(t *testing.T) {
	c, mock := newTestClient(t)
	dir := t.TempDir()
	a := filepath.Join(dir, "a.dcm")
	b := filepath.Join(dir, "b.dcm")
	require.NoError(t, os.WriteFile(a, []byte("first file"), 0o644))
	require.NoError(t, os.WriteFile(b, make([]byte, 70000), 0o644))

	var lastSent, lastTotal int64
	req := UploadRequest{
		Action:        ActionUploadDICOM,
		InstanceID:    "1",
		ProjectID:     "100",
		SiteID:        "10",
		EquipmentID:   "3T",
		TransactionID: 5,
		MatchIDOnly:   true,
		DataFormat:    "dicom",
		Files:         []string{a, b},
	}
	_, err := c.SubmitBatch(context.Background(), req, func(sent, total int64) {
		lastSent, lastTotal = sent, total
	})
	require.NoError(t, err)

	assert.Equal(t, lastTotal, lastSent, "progress must end at the announced size")
	assert.Greater(t, lastTotal, int64(70010))

	batches := mock.Batches()
	require.Len(t, batches, 1)
	got := batches[0]
	assert.Equal(t, []string{
		"u", "p", "action", "instanceid", "projectid", "siteid", "equipmentid",
		"transactionid", "matchidonly", "dataformat", "files[]", "files[]",
	}, got.FieldOrder)
	assert.Equal(t, int64(5), got.TransactionID)
	assert.Equal(t, "3T", got.EquipmentID)
	assert.True(t, got.MatchIDOnly)
	require.Len(t, got.Files, 2)
	assert.Equal(t, "a.dcm", got.Files[0].Name)
	assert.Equal(t, "first file", string(got.Files[0].Data))
	assert.Equal(t, int64(70000), got.Files[1].Size)
}

func TestSubmitBatchFailure(t *testing.T) {
	c, mock := newTestClient(t)
	mock.FailNextUploads(1)
	f := filepath.Join(t.TempDir(), "x.cnt")
	require.NoError(t, os.WriteFile(f, []byte("eeg"), 0o644))

	_, err := c.SubmitBatch(context.Background(), UploadRequest{Action: ActionUploadNonDICOM, Files: []string{f}}, nil)
	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)

	_, err = c.SubmitBatch(context.Background(), UploadRequest{Action: ActionUploadNonDICOM, Files: []string{filepath.Join(t.TempDir(), "gone")}}, nil)
	assert.ErrorAs(t, err, &te)
}

func TestSubmitBatchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Options{Server: url}, zerolog.Nop())
	require.NoError(t, err)
	f := filepath.Join(t.TempDir(), "a.dcm")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	_, err = c.SubmitBatch(context.Background(), UploadRequest{Action: ActionUploadDICOM, Files: []string{f}}, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
}

func TestProxyTransport(t *testing.T) {
	for _, p := range []Proxy{
		{},
		{Type: ProxyNone},
		{Type: ProxyDefault},
		{Type: ProxyHTTP, Host: "proxy.local", Port: 3128, User: "u", Password: "p"},
		{Type: ProxyHTTPCaching, Host: "proxy.local", Port: 3128},
		{Type: ProxySOCKS5, Host: "127.0.0.1", Port: 1080},
	} {
		tr, err := p.Transport()
		require.NoError(t, err, p.Type)
		assert.NotNil(t, tr)
	}

	_, err := Proxy{Type: ProxyFTPCaching, Host: "x", Port: 21}.Transport()
	assert.Error(t, err)
	_, err = Proxy{Type: ProxyHTTP}.Transport()
	assert.Error(t, err)
	_, err = Proxy{Type: "gopher"}.Transport()
	assert.Error(t, err)
}
