// Package mockarchive serves an in-memory imitation of the archive's api.php
// endpoint. It backs the tests and the mock-archive command.
package mockarchive

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// File is one received files[] part.
type File struct {
	Name string
	Size int64
	SHA1 string
	// Data holds the content when the server is not writing to disk.
	Data []byte
}

// Batch is one received upload request.
type Batch struct {
	Action        string
	InstanceID    string
	ProjectID     string
	SiteID        string
	EquipmentID   string
	TransactionID int64
	MatchIDOnly   bool
	DataFormat    string
	Files         []File
	// FieldOrder lists the part names in the order they arrived.
	FieldOrder []string
}

// Options configures a Server.
type Options struct {
	// Username and PasswordHash, when set, are required on every request.
	Username     string
	PasswordHash string
	// Dir, when set, receives uploaded files under <Dir>/<transaction>/.
	Dir string
	Log zerolog.Logger
}

// Server records everything it receives.
type Server struct {
	opts Options

	mu          sync.Mutex
	nextTxn     int64
	txnReply    *string
	failUploads int
	delay       time.Duration
	lists       map[string]string
	batches     []Batch
	ended       []int64
	inFlight    int
	maxInFlight int
}

// New returns a server with a few default list entries.
func New(opts Options) *Server {
	return &Server{
		opts:    opts,
		nextTxn: 1,
		lists: map[string]string{
			"getInstanceList":  "1|Main instance,2|Research",
			"getProjectList":   "100|Default project",
			"getSiteList":      "10|Site A,11|Site B",
			"getEquipmentList": "3T Scanner",
		},
	}
}

// Echo builds the HTTP handler.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.POST("/api.php", s.handle)
	return e
}

// SetList sets the reply body of a list action, e.g. "getSiteList".
func (s *Server) SetList(action, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[action] = body
}

// SetTransactionReply makes startTransaction answer with body verbatim.
func (s *Server) SetTransactionReply(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txnReply = &body
}

// FailNextUploads makes the next n uploads answer 500.
func (s *Server) FailNextUploads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads = n
}

// SetDelay holds every upload reply for d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Batches returns the uploads received so far, failed ones included.
func (s *Server) Batches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Batch(nil), s.batches...)
}

// Ended returns the transaction numbers that were closed.
func (s *Server) Ended() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.ended...)
}

// MaxConcurrentUploads returns the highest number of uploads seen in flight.
func (s *Server) MaxConcurrentUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

func (s *Server) authorized(u, p string) bool {
	if s.opts.Username == "" && s.opts.PasswordHash == "" {
		return true
	}
	return u == s.opts.Username && strings.EqualFold(p, s.opts.PasswordHash)
}

func (s *Server) handle(c echo.Context) error {
	mediaType, _, _ := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if mediaType != echo.MIMEMultipartForm {
		return s.handleLogin(c)
	}

	batch, err := s.readMultipart(c)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if !s.authorized(batch.fields["u"], batch.fields["p"]) {
		return c.String(http.StatusUnauthorized, "Invalid username or password")
	}

	action := batch.fields["action"]
	s.opts.Log.Debug().Str("action", action).Msg("Request received")

	switch action {
	case "startTransaction":
		return c.String(http.StatusOK, s.startTransaction())
	case "endTransaction":
		n, _ := strconv.ParseInt(batch.fields["transactionid"], 10, 64)
		s.mu.Lock()
		s.ended = append(s.ended, n)
		s.mu.Unlock()
		return c.String(http.StatusOK, fmt.Sprintf("Transaction %d ended", n))
	case "getInstanceList", "getProjectList", "getSiteList", "getEquipmentList":
		s.mu.Lock()
		body := s.lists[action]
		s.mu.Unlock()
		return c.String(http.StatusOK, body)
	case "UploadDICOM", "UploadNonDICOM":
		return s.handleUpload(c, batch)
	default:
		return c.String(http.StatusBadRequest, "Unknown action ["+action+"]")
	}
}

func (s *Server) handleLogin(c echo.Context) error {
	u, p := c.FormValue("u"), c.FormValue("p")
	if !s.authorized(u, p) {
		return c.String(http.StatusOK, "Invalid username or password")
	}
	return c.String(http.StatusOK, "Welcome to the archive, "+u)
}

func (s *Server) startTransaction() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txnReply != nil {
		return *s.txnReply
	}
	n := s.nextTxn
	s.nextTxn++
	return strconv.FormatInt(n, 10)
}

func (s *Server) handleUpload(c echo.Context, in *incoming) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	delay := s.delay
	fail := s.failUploads > 0
	if fail {
		s.failUploads--
	}
	s.batches = append(s.batches, in.batch())
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	if fail {
		return c.String(http.StatusInternalServerError, "Upload failed")
	}
	s.opts.Log.Info().
		Str("action", in.fields["action"]).
		Str("transaction", in.fields["transactionid"]).
		Int("files", len(in.files)).
		Msg("Batch received")
	return c.String(http.StatusOK, fmt.Sprintf("Received %d files", len(in.files)))
}

type incoming struct {
	fields map[string]string
	order  []string
	files  []File
}

func (in *incoming) batch() Batch {
	txn, _ := strconv.ParseInt(in.fields["transactionid"], 10, 64)
	return Batch{
		Action:        in.fields["action"],
		InstanceID:    in.fields["instanceid"],
		ProjectID:     in.fields["projectid"],
		SiteID:        in.fields["siteid"],
		EquipmentID:   in.fields["equipmentid"],
		TransactionID: txn,
		MatchIDOnly:   in.fields["matchidonly"] == "1",
		DataFormat:    in.fields["dataformat"],
		Files:         in.files,
		FieldOrder:    in.order,
	}
}

// readMultipart walks the parts in arrival order so field order is kept.
func (s *Server) readMultipart(c echo.Context) (*incoming, error) {
	mr, err := c.Request().MultipartReader()
	if err != nil {
		return nil, err
	}

	in := &incoming{fields: make(map[string]string)}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return in, nil
		}
		if err != nil {
			return nil, err
		}
		name := part.FormName()
		in.order = append(in.order, name)

		if part.FileName() == "" {
			v, err := io.ReadAll(part)
			if err != nil {
				return nil, err
			}
			in.fields[name] = string(v)
			continue
		}

		f, err := s.receiveFile(part, part.FileName(), in.fields["transactionid"])
		if err != nil {
			return nil, err
		}
		in.files = append(in.files, f)
	}
}

func (s *Server) receiveFile(r io.Reader, name, txn string) (File, error) {
	h := sha1.New()
	f := File{Name: name}

	if s.opts.Dir == "" {
		data, err := io.ReadAll(io.TeeReader(r, h))
		if err != nil {
			return f, err
		}
		f.Data, f.Size = data, int64(len(data))
	} else {
		dir := filepath.Join(s.opts.Dir, txn)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return f, err
		}
		out, err := os.Create(filepath.Join(dir, filepath.Base(name)))
		if err != nil {
			return f, err
		}
		n, err := io.Copy(io.MultiWriter(out, h), r)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return f, err
		}
		f.Size = n
	}
	f.SHA1 = strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
	return f, nil
}
