package gui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"nidb-uploader/internal/anonymizer"
	"nidb-uploader/internal/archive"
	"nidb-uploader/internal/catalog"
	"nidb-uploader/internal/cli"
	"nidb-uploader/internal/session"
)

// AnonymizePage holds the anonymization and matching choices.
func (s *StepBuilder) AnonymizePage() Page {
	anon := s.env.AnonymizeOptions()

	s.nameCheck = widget.NewCheck("Replace PatientName with its SHA-1 pseudonym", nil)
	s.nameCheck.SetChecked(anon.ReplacePatientName)
	s.idCheck = widget.NewCheck("Replace PatientID with its SHA-1 pseudonym", nil)
	s.idCheck.SetChecked(anon.ReplacePatientID)
	s.yearCheck = widget.NewCheck("Keep only the year of PatientBirthDate", nil)
	s.yearCheck.SetChecked(anon.ReplaceBirthDate)
	s.removeDOBCheck = widget.NewCheck("Remove PatientBirthDate (0000-00-00)", func(on bool) {
		if on {
			s.yearCheck.Disable()
		} else {
			s.yearCheck.Enable()
		}
	})
	s.removeDOBCheck.SetChecked(anon.RemoveBirthDate)

	s.matchIDCheck = widget.NewCheck("Match existing subjects by ID only", nil)
	s.matchIDCheck.SetChecked(s.env.Cfg.Upload.MatchIDOnly)

	s.tempDirEntry = widget.NewEntry()
	s.tempDirEntry.SetText(s.env.Cfg.TempDir)

	note := widget.NewLabel("Only DICOM files are anonymized. Other formats are sent unchanged.")
	note.Wrapping = fyne.TextWrapWord

	content := container.NewVBox(
		pageTitle("Anonymize"),
		widget.NewSeparator(),
		section("Anonymization", s.nameCheck, s.idCheck, s.yearCheck, s.removeDOBCheck, note),
		widget.NewSeparator(),
		section("Matching", s.matchIDCheck),
		widget.NewSeparator(),
		section("Temporary directory", s.tempDirEntry),
	)

	return Page{
		Content:  container.NewVScroll(container.NewPadded(content)),
		NextText: "Upload",
	}
}

func (s *StepBuilder) anonymizeOptions() anonymizer.Options {
	return anonymizer.Options{
		ReplacePatientName: s.nameCheck.Checked,
		ReplacePatientID:   s.idCheck.Checked,
		ReplaceBirthDate:   s.yearCheck.Checked,
		RemoveBirthDate:    s.removeDOBCheck.Checked,
	}
}

// UploadPage shows progress of the running upload. Entering it starts the upload.
func (s *StepBuilder) UploadPage() Page {
	s.uploadStatus = widget.NewLabel("")
	s.uploadStatus.Wrapping = fyne.TextWrapWord
	s.batchLabel = widget.NewLabel("")
	s.batchProgress = widget.NewProgressBar()
	s.fileProgress = widget.NewProgressBar()
	s.countersLabel = widget.NewLabel("")
	s.cancelButton = widget.NewButton("Cancel upload", s.Cancel)

	content := container.NewVBox(
		pageTitle("Upload"),
		widget.NewSeparator(),
		s.uploadStatus,
		section("Files", s.fileProgress, s.countersLabel),
		section("Current batch", s.batchLabel, s.batchProgress),
		container.NewHBox(s.cancelButton),
	)

	return Page{
		Content:  container.NewPadded(content),
		OnEnter:  s.startUpload,
		NextText: "Done",
	}
}

// IsUploading reports whether an upload is running.
func (s *StepBuilder) IsUploading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploading
}

// Cancel stops the running upload after the batch in flight.
func (s *StepBuilder) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadCancel != nil {
		s.uploadCancel()
	}
}

// Wait blocks until the running upload, if any, has ended its transaction.
func (s *StepBuilder) Wait() {
	s.uploads.Wait()
}

func (s *StepBuilder) sessionOptions() session.Options {
	opts := s.env.SessionOptions(s.profile, s.modalitySelect.Selected, s.anonymizeOptions())
	opts.MatchIDOnly = s.matchIDCheck.Checked
	opts.TempDir = strings.TrimSpace(s.tempDirEntry.Text)
	opts.InstanceID, opts.ProjectID, opts.SiteID, opts.EquipmentID = "", "", "", ""
	if it, ok := s.selected(archive.ListInstances); ok {
		opts.InstanceID = it.ID
	}
	if it, ok := s.selected(archive.ListProjects); ok {
		opts.ProjectID = it.ID
	}
	if it, ok := s.selected(archive.ListSites); ok {
		opts.SiteID = it.ID
	}
	if it, ok := s.selected(archive.ListEquipment); ok {
		opts.EquipmentID = it.ID
	}
	return opts
}

func (s *StepBuilder) startUpload() {
	s.mu.Lock()
	if s.uploading {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.uploading = true
	s.uploadCancel = cancel
	s.uploads.Add(1)
	s.mu.Unlock()

	s.wizard.SetBackEnabled(false)
	s.wizard.SetNextEnabled(false)
	s.cancelButton.Enable()
	s.batchProgress.SetValue(0)
	s.fileProgress.SetValue(0)
	s.batchLabel.SetText("")
	s.countersLabel.SetText("")

	indices := pending(s.cat)
	if len(indices) == 0 {
		s.finishUpload(cancel, "Nothing left to upload.")
		return
	}
	opts := s.sessionOptions()

	coord, err := s.env.Coordinator(s.client, opts)
	if err != nil {
		s.finishUpload(cancel, "Error: "+err.Error())
		return
	}
	coord.Session.SetFilesFound(s.cat.Len())
	if err := coord.Validate(); err != nil {
		s.finishUpload(cancel, "Error: "+err.Error())
		return
	}

	total := len(indices)
	s.uploadStatus.SetText(fmt.Sprintf("Uploading %d files (%s) to %s",
		total, catalog.HumanReadableSize(s.cat.TotalSize(indices)), s.profile.Server))

	coord.Progress = func(e session.Event) {
		switch e.Type {
		case session.EventTransactionStarted:
			s.uploadStatus.SetText(fmt.Sprintf("Transaction %d started", e.Transaction))
		case session.EventBatchProgress:
			s.batchLabel.SetText(fmt.Sprintf("Batch %d/%d  %s of %s", e.Batch, e.Batches,
				catalog.HumanReadableSize(uint64(e.BytesSent)), catalog.HumanReadableSize(uint64(e.BytesTotal))))
			if e.BytesTotal > 0 {
				s.batchProgress.SetValue(float64(e.BytesSent) / float64(e.BytesTotal))
			}
		case session.EventBatchDone:
			c := coord.Session.Snapshot()
			s.countersLabel.SetText(countersText(c))
			if total > 0 {
				s.fileProgress.SetValue(float64(c.FilesSuccess+c.FilesFail) / float64(total))
			}
			if e.Err != nil {
				s.batchLabel.SetText(fmt.Sprintf("Batch %d/%d failed: %v", e.Batch, e.Batches, e.Err))
			}
		case session.EventFileStatus:
			s.fileList.RefreshItem(e.Index)
		}
	}

	go func() {
		start := time.Now()
		err := coord.UploadAll(ctx, s.cat, indices)
		c := coord.Session.Snapshot()

		var msg string
		switch {
		case errors.Is(err, context.Canceled):
			msg = "Upload cancelled. " + countersText(c)
		case err != nil:
			msg = "Error: " + err.Error()
		default:
			msg = completionText(c, time.Since(start))
		}
		s.countersLabel.SetText(countersText(c))
		s.finishUpload(cancel, msg)
	}()
}

func (s *StepBuilder) finishUpload(cancel context.CancelFunc, msg string) {
	cancel()
	s.mu.Lock()
	s.uploading = false
	s.uploadCancel = nil
	s.mu.Unlock()
	defer s.uploads.Done()

	s.uploadStatus.SetText(msg)
	s.cancelButton.Disable()
	s.fileList.Refresh()
	s.wizard.SetBackEnabled(true)
	s.wizard.SetNextEnabled(true)
}

// pending returns the uploadable files that have not been sent successfully.
func pending(cat *catalog.Catalog) []int {
	var out []int
	for _, i := range cli.Uploadable(cat) {
		if f, ok := cat.At(i); ok && f.Status != catalog.StatusUploadSuccess {
			out = append(out, i)
		}
	}
	return out
}

func countersText(c session.Counters) string {
	return fmt.Sprintf("Success: %d (%s) | Failed: %d (%s) | Not anonymized: %d",
		c.FilesSuccess, catalog.HumanReadableSize(uint64(c.BytesSuccess)),
		c.FilesFail, catalog.HumanReadableSize(uint64(c.BytesFail)),
		c.AnonymizeErrors)
}

func completionText(c session.Counters, elapsed time.Duration) string {
	return fmt.Sprintf("Complete! %d succeeded, %d failed, %d not anonymized in %s",
		c.FilesSuccess, c.FilesFail, c.AnonymizeErrors, catalog.FormatElapsed(elapsed))
}
