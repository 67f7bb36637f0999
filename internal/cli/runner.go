package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"nidb-uploader/internal/anonymizer"
	"nidb-uploader/internal/archive"
	"nidb-uploader/internal/catalog"
	"nidb-uploader/internal/scan"
	"nidb-uploader/internal/session"
)

// Scan walks dir for files matching modality and prints what was found.
func Scan(ctx context.Context, env *Env, dir, modality string) (*catalog.Catalog, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("data directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data path is not a directory: %s", dir)
	}

	out := env.Out
	fmt.Fprintln(out, "NiDB Uploader")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Data:      %s\n", dir)
	fmt.Fprintf(out, "Modality:  %s\n", modality)

	spinner := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Searching..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	scanner := &scan.Scanner{
		Log: env.Log.Logger,
		Progress: func(found, scanned int, _ string) {
			spinner.Describe(fmt.Sprintf("Searching... found %d of %d", found, scanned))
			_ = spinner.Set(scanned)
		},
	}

	cat := catalog.New()
	start := time.Now()
	summary, err := scanner.Scan(ctx, dir, modality, cat)
	_ = spinner.Finish()
	if err != nil {
		return cat, fmt.Errorf("scan failed: %w", err)
	}

	fmt.Fprintln(out)
	PrintCatalog(out, cat)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Found %d of %d files (%s) in %s\n",
		summary.Found, summary.Scanned, catalog.HumanReadableSize(summary.Bytes), catalog.FormatElapsed(time.Since(start)))
	if summary.InvalidNames > 0 {
		fmt.Fprintf(out, "Warning:   %d files have invalid names and will not be uploaded\n", summary.InvalidNames)
	}
	return cat, nil
}

// PrintCatalog lists the catalog one file per line.
func PrintCatalog(w io.Writer, cat *catalog.Catalog) {
	for i, f := range cat.Files() {
		fmt.Fprintf(w, "%4d  %-7s %-8s %-16s %10s  %-18s %s\n",
			i, f.Kind, f.Modality, f.PatientID, catalog.HumanReadableSize(f.Size), f.Status, filepath.Base(f.Path))
		if f.Note != "" {
			fmt.Fprintf(w, "      %s\n", f.Note)
		}
	}
}

// Uploadable returns the indices of files that may be sent.
func Uploadable(cat *catalog.Catalog) []int {
	var out []int
	for i, f := range cat.Files() {
		if f.Status != catalog.StatusInvalidName {
			out = append(out, i)
		}
	}
	return out
}

// Upload scans dir and uploads every valid file found.
func Upload(ctx context.Context, env *Env, dir, modality string) error {
	profile, err := env.Connection()
	if err != nil {
		return err
	}
	client, err := env.Client(profile)
	if err != nil {
		return err
	}

	cat, err := Scan(ctx, env, dir, modality)
	if err != nil {
		return err
	}
	indices := Uploadable(cat)
	if len(indices) == 0 {
		fmt.Fprintln(env.Out, "Nothing to upload.")
		return nil
	}

	anon := env.AnonymizeOptions()
	opts := env.SessionOptions(profile, modality, anon)
	coord, err := env.Coordinator(client, opts)
	if err != nil {
		return err
	}
	coord.Session.SetFilesFound(cat.Len())

	printUploadHeader(env.Out, profile.Server, opts, anon, len(indices), cat.TotalSize(indices))

	bars := &batchBars{out: env.Out}
	coord.Progress = bars.handle

	start := time.Now()
	err = coord.UploadAll(ctx, cat, indices)
	bars.finish()
	if err != nil {
		return err
	}

	printUploadSummary(env, coord.Session, time.Since(start))
	if coord.Session.Snapshot().FilesFail > 0 {
		return fmt.Errorf("%d files failed to upload", coord.Session.Snapshot().FilesFail)
	}
	return nil
}

// batchBars draws one progress bar per batch.
type batchBars struct {
	mu    sync.Mutex
	out   io.Writer
	bar   *progressbar.ProgressBar
	batch int
}

func (b *batchBars) handle(e session.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch e.Type {
	case session.EventBatchProgress:
		if b.bar == nil || e.Batch != b.batch {
			b.finishLocked()
			b.batch = e.Batch
			b.bar = progressbar.NewOptions64(e.BytesTotal,
				progressbar.OptionSetWriter(b.out),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionSetDescription(fmt.Sprintf("Batch %d/%d", e.Batch, e.Batches)),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "=",
					SaucerHead:    ">",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(b.out)
				}),
			)
		}
		_ = b.bar.Set64(e.BytesSent)
	case session.EventBatchDone:
		if e.Err != nil {
			b.finishLocked()
			fmt.Fprintf(b.out, "Batch %d/%d failed: %v\n", e.Batch, e.Batches, e.Err)
			return
		}
		b.finishLocked()
	}
}

func (b *batchBars) finishLocked() {
	if b.bar != nil {
		_ = b.bar.Finish()
		b.bar = nil
	}
}

func (b *batchBars) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishLocked()
}

func printUploadHeader(w io.Writer, server string, opts session.Options, anon anonymizer.Options, files int, bytes uint64) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Server:    %s\n", server)
	fmt.Fprintf(w, "Target:    instance %s, project %s, site %s", opts.InstanceID, opts.ProjectID, opts.SiteID)
	if opts.EquipmentID != "" {
		fmt.Fprintf(w, ", equipment %s", opts.EquipmentID)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Action:    %s (%s)\n", archive.ActionFor(opts.Modality), opts.Modality)

	var ops []string
	if anon.ReplacePatientName {
		ops = append(ops, "Patient name")
	}
	if anon.ReplacePatientID {
		ops = append(ops, "Patient ID")
	}
	switch {
	case anon.RemoveBirthDate:
		ops = append(ops, "Birth date removed")
	case anon.ReplaceBirthDate:
		ops = append(ops, "Birth date year only")
	}
	if len(ops) == 0 {
		ops = append(ops, "None")
	}
	fmt.Fprintf(w, "Anonymize: %s\n", strings.Join(ops, ", "))

	var options []string
	if opts.MatchIDOnly {
		options = append(options, "Match by ID only")
	}
	if opts.AbortOnBadTransaction {
		options = append(options, "Abort on bad transaction")
	}
	if len(options) > 0 {
		fmt.Fprintf(w, "Options:   %s\n", strings.Join(options, ", "))
	}
	fmt.Fprintf(w, "Upload:    %d files, %s\n", files, catalog.HumanReadableSize(bytes))
	fmt.Fprintln(w)
}

func printUploadSummary(env *Env, s *session.UploadSession, elapsed time.Duration) {
	c := s.Snapshot()
	w := env.Out
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "Complete! %d succeeded, %d failed, %d not anonymized\n", c.FilesSuccess, c.FilesFail, c.AnonymizeErrors)
	fmt.Fprintf(w, "Transaction: %d\n", s.Transaction().Number)
	fmt.Fprintf(w, "Sent:      %s in %s (%s)\n",
		catalog.HumanReadableSize(uint64(c.BytesSuccess)),
		catalog.FormatElapsed(elapsed),
		catalog.FormatSpeed(c.BytesSuccess, elapsed))
	if c.BytesFail > 0 {
		fmt.Fprintf(w, "Failed:    %s\n", catalog.HumanReadableSize(uint64(c.BytesFail)))
	}
	fmt.Fprintf(w, "Log:       %s\n", env.Log.Summary())
	if env.audit != nil && env.audit.Entries() > 0 {
		fmt.Fprintf(w, "ID map:    %s\n", env.audit.Path())
	}
}

// Lists prints the instance, project, site and equipment lists.
func Lists(ctx context.Context, env *Env) error {
	profile, err := env.Connection()
	if err != nil {
		return err
	}
	client, err := env.Client(profile)
	if err != nil {
		return err
	}

	instance := env.Cfg.Upload.InstanceID
	for _, kind := range []archive.ListKind{archive.ListInstances, archive.ListProjects, archive.ListSites, archive.ListEquipment} {
		items, err := client.List(ctx, kind, instance)
		if err != nil {
			return fmt.Errorf("could not load %s: %w", kind, err)
		}
		fmt.Fprintf(env.Out, "%s:\n", strings.ToUpper(kind.String()[:1])+kind.String()[1:])
		if len(items) == 0 {
			fmt.Fprintf(env.Out, "  %s\n", archive.Placeholder(kind))
		}
		for _, it := range items {
			fmt.Fprintf(env.Out, "  %s\n", it.Display())
		}
		if kind == archive.ListInstances && instance == "" && len(items) > 0 {
			instance = items[0].ID
		}
	}
	return nil
}

// TestConnection checks the credentials against the archive.
func TestConnection(ctx context.Context, env *Env) error {
	profile, err := env.Connection()
	if err != nil {
		return err
	}
	client, err := env.Client(profile)
	if err != nil {
		return err
	}
	reply, ok, err := client.TestConnection(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Out, reply)
	if !ok {
		return fmt.Errorf("login to %s failed", profile.Server)
	}
	return nil
}

// History prints the most recent upload outcomes.
func History(ctx context.Context, env *Env, limit int) error {
	ledger, err := env.Ledger()
	if err != nil {
		return err
	}
	entries, err := ledger.History(ctx, limit)
	if err != nil {
		return fmt.Errorf("could not read history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(env.Out, "No uploads recorded.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(env.Out, "%s  txn %-6d batch %-3d %-16s %10s  %s\n",
			e.At.Local().Format("2006-01-02 15:04:05"), e.Transaction, e.Batch, e.Status,
			catalog.HumanReadableSize(e.Size), e.Path)
	}
	return nil
}
