package gui

import (
	"strings"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/widget"

	"nidb-uploader/internal/archive"
	"nidb-uploader/internal/catalog"
	"nidb-uploader/internal/session"
)

func TestWizardNavigation(t *testing.T) {
	test.NewApp()

	w := NewWizard()
	allow := false
	entered := map[WizardStep]int{}
	finished := false
	for step := StepConnection; step <= StepUpload; step++ {
		w.SetPage(step, Page{
			Content:  widget.NewLabel(step.String()),
			CanLeave: func() bool { return step != StepData || allow },
			OnEnter:  func() { entered[step]++ },
		})
	}
	w.SetOnFinish(func() { finished = true })
	w.Build()

	if w.Current() != StepConnection || entered[StepConnection] != 1 {
		t.Fatalf("start = %v entered %d times, want Connection once", w.Current(), entered[StepConnection])
	}

	w.Next()
	w.Next()
	if w.Current() != StepData {
		t.Fatalf("blocked page left: current = %v", w.Current())
	}

	allow = true
	w.Next()
	w.Next()
	if w.Current() != StepUpload {
		t.Fatalf("current = %v, want Upload", w.Current())
	}
	w.Next()
	if !finished {
		t.Error("Next on the last page did not finish")
	}

	w.Previous()
	if w.Current() != StepAnonymize || entered[StepAnonymize] != 2 {
		t.Errorf("Previous: current = %v, Anonymize entered %d times", w.Current(), entered[StepAnonymize])
	}
}

func TestItemLookup(t *testing.T) {
	items := archive.ParseList("1|Main,2|Research,3")

	if it, ok := itemByDisplay(items, "2 - Research"); !ok || it.ID != "2" {
		t.Errorf("itemByDisplay(2 - Research) = %+v, %v", it, ok)
	}
	if it, ok := itemByDisplay(items, "3"); !ok || it.ID != "3" {
		t.Errorf("itemByDisplay(3) = %+v, %v", it, ok)
	}
	if _, ok := itemByDisplay(items, ""); ok {
		t.Error("itemByDisplay(empty) ok = true")
	}
	if got := indexOfID(items, "3"); got != 2 {
		t.Errorf("indexOfID(3) = %d, want 2", got)
	}
	if got := indexOfID(items, "9"); got != -1 {
		t.Errorf("indexOfID(9) = %d, want -1", got)
	}
	if got := displays(items); strings.Join(got, ",") != "1 - Main,2 - Research,3" {
		t.Errorf("displays = %v", got)
	}
}

func TestPendingSkipsSentAndInvalid(t *testing.T) {
	cat := catalog.New()
	cat.Add(catalog.FoundFile{Path: "/a.dcm", Status: catalog.StatusReadable})
	cat.Add(catalog.FoundFile{Path: "/b.dcm", Status: catalog.StatusUploadSuccess})
	cat.Add(catalog.FoundFile{Path: "/c.cnt", Status: catalog.StatusInvalidName})
	cat.Add(catalog.FoundFile{Path: "/d.dcm", Status: catalog.StatusUploadFail})

	got := pending(cat)
	if len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Errorf("pending() = %v, want [0 3]", got)
	}
}

func TestTexts(t *testing.T) {
	c := session.Counters{FilesSuccess: 3, FilesFail: 1, BytesSuccess: 2048, AnonymizeErrors: 2}

	if got := completionText(c, 90*time.Second); !strings.HasPrefix(got, "Complete! 3 succeeded, 1 failed, 2 not anonymized") {
		t.Errorf("completionText = %q", got)
	}
	if got := countersText(c); !strings.Contains(got, "Success: 3") || !strings.Contains(got, "Not anonymized: 2") {
		t.Errorf("countersText = %q", got)
	}

	row := fileRow(catalog.FoundFile{Path: "/data/x/img.dcm", Kind: catalog.KindDICOM, Modality: "MR", PatientID: "S1", Size: 10})
	if !strings.HasSuffix(row, "img.dcm") || !strings.Contains(row, "DICOM") {
		t.Errorf("fileRow = %q", row)
	}
}

func TestStatusColor(t *testing.T) {
	tests := []struct {
		status catalog.Status
		want   any
	}{
		{catalog.StatusUploadSuccess, ColorSuccess},
		{catalog.StatusUploadFail, ColorError},
		{catalog.StatusAnonymizeError, ColorError},
		{catalog.StatusInvalidName, ColorWarning},
		{catalog.StatusReadable, ColorTextPrimary},
	}
	for _, tt := range tests {
		if got := StatusColor(tt.status); got != tt.want {
			t.Errorf("StatusColor(%v) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
