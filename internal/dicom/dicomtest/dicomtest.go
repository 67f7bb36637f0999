// Package dicomtest writes small Part 10 files for tests.
package dicomtest

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	mrImageStorage         = "1.2.840.10008.5.1.4.1.1.4"
	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
)

// Fields maps a tag to its single string value.
type Fields map[tag.Tag]string

// Patient returns the usual identifying fields for a test file.
func Patient(name, id, birthDate, modality string) Fields {
	return Fields{
		tag.PatientName:      name,
		tag.PatientID:        id,
		tag.PatientBirthDate: birthDate,
		tag.Modality:         modality,
	}
}

// Write creates a DICOM file at path holding the given fields and returns path.
func Write(t testing.TB, path string, fields Fields) string {
	t.Helper()

	elems := []*dicom.Element{
		mustElement(t, tag.MediaStorageSOPClassUID, mrImageStorage),
		mustElement(t, tag.MediaStorageSOPInstanceUID, "1.2.826.0.1.3680043.2.1125.1"),
		mustElement(t, tag.TransferSyntaxUID, explicitVRLittleEndian),
	}

	tags := make([]tag.Tag, 0, len(fields))
	for tg := range fields {
		tags = append(tags, tg)
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Group != tags[j].Group {
			return tags[i].Group < tags[j].Group
		}
		return tags[i].Element < tags[j].Element
	})
	for _, tg := range tags {
		elems = append(elems, mustElement(t, tg, fields[tg]))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	ds := dicom.Dataset{Elements: elems}
	if err := dicom.Write(f, ds, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification()); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteSignatureOnly creates a file with a valid preamble and "DICM" magic but
// no parseable elements.
func WriteSignatureOnly(t testing.TB, path string) string {
	t.Helper()
	data := make([]byte, 128, 160)
	data = append(data, []byte("DICM")...)
	data = append(data, []byte("not really a dataset")...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func mustElement(t testing.TB, tg tag.Tag, value string) *dicom.Element {
	t.Helper()
	e, err := dicom.NewElement(tg, []string{value})
	if err != nil {
		t.Fatalf("element %s: %v", tg, err)
	}
	return e
}
