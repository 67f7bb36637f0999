package archive

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// UploadRequest is one batch submission.
type UploadRequest struct {
	Action        string
	InstanceID    string
	ProjectID     string
	SiteID        string
	EquipmentID   string
	TransactionID int64
	MatchIDOnly   bool
	DataFormat    string
	// Files are sent in order, each under its base name.
	Files []string
}

// ProgressFunc receives the bytes written so far and the request size.
type ProgressFunc func(sent, total int64)

// ActionFor returns the upload action for a modality.
func ActionFor(modality string) string {
	switch strings.ToUpper(modality) {
	case "PARREC", "EEG":
		return ActionUploadNonDICOM
	default:
		return ActionUploadDICOM
	}
}

// DataFormatFor returns the dataformat field for a modality.
func DataFormatFor(modality string) string {
	switch strings.ToUpper(modality) {
	case "DICOM":
		return "dicom"
	case "PARREC":
		return "parrec"
	case "EEG":
		return "eeg"
	case "NIFTI":
		return "nifti"
	default:
		return ""
	}
}

func (r UploadRequest) fields(creds []field) []field {
	matchOnly := "0"
	if r.MatchIDOnly {
		matchOnly = "1"
	}
	return append(creds,
		field{"action", r.Action},
		field{"instanceid", r.InstanceID},
		field{"projectid", r.ProjectID},
		field{"siteid", r.SiteID},
		field{"equipmentid", r.EquipmentID},
		field{"transactionid", fmt.Sprint(r.TransactionID)},
		field{"matchidonly", matchOnly},
		field{"dataformat", r.DataFormat},
	)
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

// writeForm writes the whole multipart body to w. When sizes is non-nil the
// file contents are skipped and their sizes counted instead.
func writeForm(w io.Writer, boundary string, fields []field, files []string, sizes []int64, count *countingWriter) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return err
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	for i, path := range files {
		part, err := mw.CreateFormFile("files[]", filepath.Base(path))
		if err != nil {
			return err
		}
		if count != nil {
			count.n += sizes[i]
			continue
		}
		if err := copyFile(part, path, sizes[i]); err != nil {
			return err
		}
	}
	return mw.Close()
}

func copyFile(w io.Writer, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	n, err := io.CopyN(w, f, size)
	if err != nil {
		return fmt.Errorf("%s: wrote %d of %d bytes: %w", filepath.Base(path), n, size, err)
	}
	return nil
}

type progressReader struct {
	r          io.Reader
	sent, size int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.sent, p.size)
		}
	}
	return n, err
}

// SubmitBatch streams the batch as a multipart form and returns the
// archive's reply. It does not retry.
func (c *Client) SubmitBatch(ctx context.Context, req UploadRequest, onProgress ProgressFunc) (string, error) {
	op := req.Action
	if len(req.Files) == 0 {
		return "", &TransportError{Op: op, Err: fmt.Errorf("batch has no files")}
	}

	sizes := make([]int64, len(req.Files))
	for i, path := range req.Files {
		info, err := os.Stat(path)
		if err != nil {
			return "", &TransportError{Op: op, Err: err}
		}
		sizes[i] = info.Size()
	}

	fields := req.fields(c.credentials())
	boundary := multipart.NewWriter(io.Discard).Boundary()

	count := &countingWriter{}
	if err := writeForm(count, boundary, fields, req.Files, sizes, count); err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	total := count.n

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeForm(pw, boundary, fields, req.Files, sizes, nil))
	}()
	defer pr.Close()

	body := &progressReader{r: pr, size: total, onProgress: onProgress}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), body)
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	httpReq.ContentLength = total
	httpReq.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	c.log.Info().
		Str("action", req.Action).
		Int64("transaction", req.TransactionID).
		Int("files", len(req.Files)).
		Int64("bytes", total).
		Msg("Submitting batch")
	return c.do(httpReq, op)
}
