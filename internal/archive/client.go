// Package archive talks to the remote imaging archive through its api.php
// endpoint.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Endpoint is appended to the server URL for every request.
const Endpoint = "/api.php"

// Actions understood by the archive.
const (
	ActionStartTransaction = "startTransaction"
	ActionEndTransaction   = "endTransaction"
	ActionInstanceList     = "getInstanceList"
	ActionProjectList      = "getProjectList"
	ActionSiteList         = "getSiteList"
	ActionEquipmentList    = "getEquipmentList"
	ActionUploadDICOM      = "UploadDICOM"
	ActionUploadNonDICOM   = "UploadNonDICOM"
)

// TransportError reports a failed exchange: either the request never
// completed (Err set) or the archive answered with a non-2xx status.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Options configures a Client.
type Options struct {
	Server       string
	Username     string
	PasswordHash string
	Proxy        Proxy
	// Timeout bounds the short control requests. Uploads are bounded only by
	// their context.
	Timeout time.Duration
}

// Client sends requests to one archive server.
type Client struct {
	opts Options
	http *http.Client
	log  zerolog.Logger
}

// New builds a client for opts.
func New(opts Options, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(opts.Server) == "" {
		return nil, errors.New("archive server is not set")
	}
	tr, err := opts.Proxy.Transport()
	if err != nil {
		return nil, err
	}
	opts.Server = strings.TrimRight(strings.TrimSpace(opts.Server), "/")
	return &Client{
		opts: opts,
		http: &http.Client{Transport: tr},
		log:  log.With().Str("server", opts.Server).Logger(),
	}, nil
}

// Server returns the normalized server URL.
func (c *Client) Server() string {
	return c.opts.Server
}

func (c *Client) url() string {
	return c.opts.Server + Endpoint
}

type field struct {
	name, value string
}

// credentials returns the leading u and p fields every request carries.
func (c *Client) credentials() []field {
	return []field{{"u", c.opts.Username}, {"p", c.opts.PasswordHash}}
}

// postForm sends an in-memory multipart form and returns the response body.
func (c *Client) postForm(ctx context.Context, op string, fields []field) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return "", &TransportError{Op: op, Err: err}
		}
	}
	if err := mw.Close(); err != nil {
		return "", &TransportError{Op: op, Err: err}
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), &buf)
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, op)
}

func (c *Client) do(req *http.Request, op string) (string, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Int("bytes", len(body)).
		Msg("Archive replied")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return string(body), &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return string(body), nil
}
