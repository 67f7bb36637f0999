package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nidb-uploader/internal/anonymizer"
	"nidb-uploader/internal/archive"
	"nidb-uploader/internal/batch"
	"nidb-uploader/internal/catalog"
	"nidb-uploader/internal/classify"
	"nidb-uploader/internal/progress"
	"nidb-uploader/internal/staging"
)

var (
	ErrValidation     = errors.New("upload settings are incomplete")
	ErrBadTransaction = errors.New("archive returned an invalid transaction number")
)

// ValidationError names the first missing upload setting.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " is not set"
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Archive is the part of the archive client the coordinator needs.
type Archive interface {
	StartTransaction(ctx context.Context) (int64, error)
	EndTransaction(ctx context.Context, number int64) (string, error)
	SubmitBatch(ctx context.Context, req archive.UploadRequest, onProgress archive.ProgressFunc) (string, error)
}

// Anonymizer rewrites one file.
type Anonymizer interface {
	AnonymizeOne(src, dst string, spec anonymizer.Spec) error
}

// Recorder stores the outcome of every reconciled file.
type Recorder interface {
	Record(ctx context.Context, e progress.Entry) error
}

// EventType identifies a progress event.
type EventType int

const (
	EventTransactionStarted EventType = iota
	EventFileStatus
	EventBatchProgress
	EventBatchDone
	EventTransactionEnded
)

// Event reports coordinator progress. Index is a catalog index for
// EventFileStatus; Batch is 1-based.
type Event struct {
	Type        EventType
	Index       int
	Status      catalog.Status
	Batch       int
	Batches     int
	BytesSent   int64
	BytesTotal  int64
	Transaction int64
	Err         error
}

// ProgressFunc receives events. It may be called from several goroutines.
type ProgressFunc func(Event)

// Options are the upload settings chosen by the operator.
type Options struct {
	Server      string
	Username    string
	InstanceID  string
	ProjectID   string
	SiteID      string
	EquipmentID string
	MatchIDOnly bool
	// Modality is the scan filter; it selects the upload action and format.
	Modality string

	Spec    anonymizer.Spec
	TempDir string

	MaxBatchBytes         uint64
	MaxBatchFiles         int
	Workers               int
	AbortOnBadTransaction bool
}

// Coordinator runs uploads for one session.
type Coordinator struct {
	Archive  Archive
	Engine   Anonymizer
	Session  *UploadSession
	Recorder Recorder
	Progress ProgressFunc
	Log      zerolog.Logger
	Opts     Options
}

// NewCoordinator wires a coordinator with a fresh session.
func NewCoordinator(a Archive, engine Anonymizer, opts Options, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		Archive: a,
		Engine:  engine,
		Session: NewUploadSession(),
		Log:     log,
		Opts:    opts,
	}
}

// Validate checks the settings without touching the network.
func (c *Coordinator) Validate() error {
	o := c.Opts
	switch {
	case strings.TrimSpace(o.Server) == "" || strings.TrimSpace(o.Username) == "":
		return &ValidationError{Field: "connection"}
	case strings.TrimSpace(o.InstanceID) == "":
		return &ValidationError{Field: "instance ID"}
	case strings.TrimSpace(o.ProjectID) == "":
		return &ValidationError{Field: "project ID"}
	case strings.TrimSpace(o.SiteID) == "":
		return &ValidationError{Field: "site ID"}
	case !o.Spec.IsEmpty() && strings.TrimSpace(o.TempDir) == "":
		return &ValidationError{Field: "temp directory"}
	}
	return nil
}

func (c *Coordinator) emit(e Event) {
	if c.Progress != nil {
		c.Progress(e)
	}
}

func (c *Coordinator) setStatus(cat *catalog.Catalog, indices []int, s catalog.Status) {
	cat.SetStatuses(indices, s)
	for _, i := range indices {
		c.emit(Event{Type: EventFileStatus, Index: i, Status: s})
	}
}

// UploadAll uploads the given catalog indices in one transaction. At most one
// batch is on the wire at a time; the next batch is staged meanwhile.
// Per-batch failures are reflected in file statuses and counters, not in the
// returned error.
func (c *Coordinator) UploadAll(ctx context.Context, cat *catalog.Catalog, indices []int) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(indices) == 0 {
		c.Log.Info().Msg("No files selected")
		return nil
	}

	c.Session.set(Starting, TxnRequested)
	c.Session.set(WaitingForNumber, TxnRequested)
	number, err := c.Archive.StartTransaction(ctx)
	if err != nil {
		c.Session.set(Idle, TxnNotStarted)
		c.Log.Error().Err(err).Msg("Could not start transaction")
		return fmt.Errorf("start transaction: %w", err)
	}
	c.Session.setNumber(number)
	if number <= 0 {
		c.Log.Warn().Int64("transaction", number).Msg("Transaction number was not positive")
		if c.Opts.AbortOnBadTransaction {
			c.Session.set(Idle, TxnNotStarted)
			return fmt.Errorf("%w: %d", ErrBadTransaction, number)
		}
	}
	c.Session.set(Active, TxnActive)
	c.emit(Event{Type: EventTransactionStarted, Transaction: number})

	batches := batch.Plan(indices, cat.Size, c.Opts.MaxBatchBytes, c.Opts.MaxBatchFiles)
	c.Log.Info().
		Int64("transaction", number).
		Int("files", len(indices)).
		Int("batches", len(batches)).
		Msg("Upload started")

	inFlight := make(chan struct{}, 1)
	var wg sync.WaitGroup

	for bi, b := range batches {
		if ctx.Err() != nil {
			break
		}
		sub := c.stage(ctx, cat, b)
		sub.number, sub.batch, sub.batches = number, bi+1, len(batches)

		if len(sub.indices) == 0 {
			c.cleanup(sub)
			continue
		}

		select {
		case inFlight <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			c.cleanup(sub)
			break
		}

		c.setStatus(cat, sub.indices, catalog.StatusUploadPending)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-inFlight }()
			c.submit(ctx, cat, sub)
		}()
	}
	wg.Wait()

	c.endTransaction(ctx, number)

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// submission is one staged batch ready to send.
type submission struct {
	number  int64
	batch   int
	batches int
	indices []int
	files   []string
	bytes   uint64
	area    *staging.Area
}

// stage prepares the files of one batch. Files that fail anonymization are
// left out of the submission.
func (c *Coordinator) stage(ctx context.Context, cat *catalog.Catalog, b batch.Batch) submission {
	var sub submission
	anonymize := !c.Opts.Spec.IsEmpty()

	files := make([]catalog.FoundFile, len(b.Indices))
	needArea := false
	for i, idx := range b.Indices {
		files[i], _ = cat.At(idx)
		if anonymize && (files[i].Kind == catalog.KindDICOM || files[i].Kind == catalog.KindPARREC) {
			needArea = true
		}
	}

	if needArea {
		area, err := staging.New(c.Opts.TempDir)
		if err != nil {
			c.Log.Error().Err(err).Msg("Could not create staging area")
			c.Session.anonymizeErrors.Add(int64(len(b.Indices)))
			c.setStatus(cat, b.Indices, catalog.StatusAnonymizeError)
			return sub
		}
		sub.area = area
	}

	// paths[i] holds the files to send for b.Indices[i]; nil drops the file.
	paths := make([][]string, len(b.Indices))

	g, gctx := errgroup.WithContext(ctx)
	workers := c.Opts.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, f := range files {
		idx := b.Indices[i]
		if ctx.Err() != nil {
			break
		}
		switch {
		case anonymize && f.Kind == catalog.KindDICOM:
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				dst := sub.area.DICOMPath()
				if err := c.Engine.AnonymizeOne(f.Path, dst, c.Opts.Spec); err != nil {
					_ = os.Remove(dst)
					c.Session.anonymizeErrors.Add(1)
					c.Log.Error().Err(err).Str("file", f.Path).Msg("Error anonymizing")
					c.setStatus(cat, []int{idx}, catalog.StatusAnonymizeError)
					return nil
				}
				c.setStatus(cat, []int{idx}, catalog.StatusAnonymized)
				paths[i] = []string{dst}
				return nil
			})
		case anonymize && f.Kind == catalog.KindPARREC:
			staged, err := c.stagePARREC(sub.area, f.Path)
			if err != nil {
				c.Session.anonymizeErrors.Add(1)
				c.Log.Error().Err(err).Str("file", f.Path).Msg("Could not stage PARREC")
				c.setStatus(cat, []int{idx}, catalog.StatusAnonymizeError)
				continue
			}
			paths[i] = staged
		default:
			paths[i] = withCompanion(f)
		}
	}
	_ = g.Wait()

	for i, p := range paths {
		if p == nil {
			continue
		}
		sub.indices = append(sub.indices, b.Indices[i])
		sub.files = append(sub.files, p...)
		sub.bytes += files[i].Size
	}
	return sub
}

// withCompanion returns the file and, for PARREC, its .rec if present.
func withCompanion(f catalog.FoundFile) []string {
	if f.Kind != catalog.KindPARREC {
		return []string{f.Path}
	}
	out := []string{f.Path}
	if rec := classify.CompanionREC(f.Path); fileExists(rec) {
		out = append(out, rec)
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// stagePARREC copies the .par/.rec pair into the area and logs where the
// patient name sits in the header.
func (c *Coordinator) stagePARREC(area *staging.Area, par string) ([]string, error) {
	if line, _, ok := classify.LocatePatientLine(par); ok {
		c.Log.Info().Str("file", par).Int("line", line).Msg("Found patient name line in PAR header")
	} else {
		c.Log.Warn().Str("file", par).Msg("No patient name line in PAR header")
	}

	rec := classify.CompanionREC(par)
	if !fileExists(rec) {
		rec = ""
	}
	return area.CopyPair(par, rec)
}

func (c *Coordinator) submit(ctx context.Context, cat *catalog.Catalog, sub submission) {
	defer c.cleanup(sub)

	req := archive.UploadRequest{
		Action:        archive.ActionFor(c.Opts.Modality),
		InstanceID:    c.Opts.InstanceID,
		ProjectID:     c.Opts.ProjectID,
		SiteID:        c.Opts.SiteID,
		EquipmentID:   c.Opts.EquipmentID,
		TransactionID: sub.number,
		MatchIDOnly:   c.Opts.MatchIDOnly,
		DataFormat:    archive.DataFormatFor(c.Opts.Modality),
		Files:         sub.files,
	}

	c.Session.filesSent.Add(int64(len(sub.indices)))
	start := time.Now()
	reply, err := c.Archive.SubmitBatch(ctx, req, func(sent, total int64) {
		c.emit(Event{Type: EventBatchProgress, Batch: sub.batch, Batches: sub.batches, BytesSent: sent, BytesTotal: total})
	})

	ok := err == nil
	status := catalog.StatusUploadSuccess
	message := strings.TrimSpace(reply)
	if !ok {
		status = catalog.StatusUploadFail
		message = err.Error()
		c.Log.Error().Err(err).Int("batch", sub.batch).Int("files", len(sub.indices)).Msg("Upload fail")
	} else {
		c.Log.Info().
			Int("batch", sub.batch).
			Int("files", len(sub.indices)).
			Str("size", catalog.HumanReadableSize(sub.bytes)).
			Str("speed", catalog.FormatSpeed(int64(sub.bytes), time.Since(start))).
			Str("reply", message).
			Msg("Upload success")
	}

	c.Session.reconcile(ok, int64(len(sub.indices)), int64(sub.bytes))
	c.setStatus(cat, sub.indices, status)
	c.record(ctx, cat, sub, status, message)
	c.emit(Event{Type: EventBatchDone, Batch: sub.batch, Batches: sub.batches, Transaction: sub.number, Err: err})
}

func (c *Coordinator) record(ctx context.Context, cat *catalog.Catalog, sub submission, status catalog.Status, message string) {
	if c.Recorder == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	now := time.Now()
	for _, idx := range sub.indices {
		f, _ := cat.At(idx)
		err := c.Recorder.Record(ctx, progress.Entry{
			Transaction: sub.number,
			Batch:       sub.batch,
			Path:        f.Path,
			Kind:        f.Kind.String(),
			Size:        f.Size,
			Status:      status.String(),
			Message:     message,
			At:          now,
		})
		if err != nil {
			c.Log.Warn().Err(err).Msg("Could not record upload outcome")
		}
	}
}

func (c *Coordinator) cleanup(sub submission) {
	if sub.area == nil {
		return
	}
	if err := sub.area.Remove(); err != nil {
		c.Log.Warn().Err(err).Msg("Could not remove staging area")
	}
}

// endTransaction closes the transaction even when ctx was cancelled.
func (c *Coordinator) endTransaction(ctx context.Context, number int64) {
	c.Session.set(Ending, TxnEnding)
	reply, err := c.Archive.EndTransaction(context.WithoutCancel(ctx), number)
	if err != nil {
		c.Log.Error().Err(err).Int64("transaction", number).Msg("Could not end transaction")
	} else {
		c.Log.Info().Int64("transaction", number).Str("reply", strings.TrimSpace(reply)).Msg("Transaction ended")
	}
	c.Session.set(Idle, TxnEnded)

	counters := c.Session.Snapshot()
	c.Log.Info().
		Int64("sent", counters.FilesSent).
		Int64("success", counters.FilesSuccess).
		Int64("fail", counters.FilesFail).
		Str("bytes_success", catalog.HumanReadableSize(uint64(counters.BytesSuccess))).
		Str("bytes_fail", catalog.HumanReadableSize(uint64(counters.BytesFail))).
		Msg("Upload finished")
	c.emit(Event{Type: EventTransactionEnded, Transaction: number, Err: err})
}
