package dicom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom/pkg/tag"

	"nidb-uploader/internal/dicom/dicomtest"
)

func TestReadDicomMetadataOnly(t *testing.T) {
	path := dicomtest.Write(t, filepath.Join(t.TempDir(), "a.dcm"),
		dicomtest.Patient("DOE^JANE", "P001", "19850313", "MR"))

	ds, err := ReadDicomMetadataOnly(path)
	if err != nil {
		t.Fatalf("ReadDicomMetadataOnly() error = %v", err)
	}
	if got := ds.GetPatientID(); got != "P001" {
		t.Errorf("GetPatientID() = %q, want %q", got, "P001")
	}
	if got := ds.GetModality(); got != "MR" {
		t.Errorf("GetModality() = %q, want %q", got, "MR")
	}
	if got := ds.GetPatientBirthDate(); got != "19850313" {
		t.Errorf("GetPatientBirthDate() = %q, want %q", got, "19850313")
	}
}

func TestSetStringRemoveAndSave(t *testing.T) {
	dir := t.TempDir()
	src := dicomtest.Write(t, filepath.Join(dir, "src.dcm"), dicomtest.Fields{
		tag.PatientName: "DOE^JANE",
		tag.Modality:    "CT",
	})

	ds, err := ReadDicom(src)
	if err != nil {
		t.Fatalf("ReadDicom() error = %v", err)
	}
	if err := ds.SetString(tag.PatientName, "ANON"); err != nil {
		t.Fatalf("SetString(existing) error = %v", err)
	}
	if err := ds.SetString(tag.PatientID, "NEWID"); err != nil {
		t.Fatalf("SetString(missing) error = %v", err)
	}
	if !ds.RemoveTag(tag.Modality) {
		t.Error("RemoveTag(Modality) = false, want true")
	}
	if ds.RemoveTag(tag.PatientBirthDate) {
		t.Error("RemoveTag(absent) = true, want false")
	}

	dst := filepath.Join(dir, "out", "dst.dcm")
	if err := ds.Save(dst); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, err := ReadDicomMetadataOnly(dst)
	if err != nil {
		t.Fatalf("re-read error = %v", err)
	}
	if got := out.GetPatientName(); got != "ANON" {
		t.Errorf("PatientName = %q, want ANON", got)
	}
	if got := out.GetPatientID(); got != "NEWID" {
		t.Errorf("PatientID = %q, want NEWID", got)
	}
	if out.Has(tag.Modality) {
		t.Error("Modality still present after RemoveTag")
	}

	entries, _ := os.ReadDir(filepath.Dir(dst))
	if len(entries) != 1 {
		t.Errorf("output dir has %d entries, want only the saved file", len(entries))
	}
}

func TestHasMagicBytes(t *testing.T) {
	dir := t.TempDir()
	real := dicomtest.Write(t, filepath.Join(dir, "real.eeg.cnt"), dicomtest.Patient("X", "Y", "", "EEG"))
	fake := dicomtest.WriteSignatureOnly(t, filepath.Join(dir, "sig.bin"))
	short := filepath.Join(dir, "short.dcm")
	if err := os.WriteFile(short, []byte("DICM"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"written file", real, true},
		{"signature only", fake, true},
		{"too short", short, false},
		{"missing", filepath.Join(dir, "nope"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasMagicBytes(tt.path); got != tt.want {
				t.Errorf("HasMagicBytes(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}
