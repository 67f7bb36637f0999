package anonymizer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dcm "nidb-uploader/internal/dicom"
	"nidb-uploader/internal/dicom/dicomtest"
	"nidb-uploader/internal/identity"
)

func newTestEngine(audit *bytes.Buffer) *Engine {
	return NewEngine(identity.NewAuditLog(audit), zerolog.Nop())
}

func TestAnonymizeOnePseudonymizesFields(t *testing.T) {
	dir := t.TempDir()
	src := dicomtest.Write(t, filepath.Join(dir, "src.dcm"),
		dicomtest.Patient("Smith^John", "John Smith", "19850313", "MR"))
	dst := filepath.Join(dir, "out", "dst.dcm")

	var audit bytes.Buffer
	e := newTestEngine(&audit)
	spec := SpecFromOptions(Options{ReplacePatientName: true, ReplacePatientID: true, ReplaceBirthDate: true})

	require.NoError(t, e.AnonymizeOne(src, dst, spec))

	out, err := dcm.ReadDicomMetadataOnly(dst)
	require.NoError(t, err)
	assert.Equal(t, "33DCC325919D5068923739854FCA70E9BC3C5A98", out.GetPatientID())
	assert.Equal(t, identity.Pseudonymize("Smith^John"), out.GetPatientName())
	assert.Equal(t, "1985-00-00", out.GetPatientBirthDate())
	assert.Equal(t, "MR", out.GetModality())

	assert.Equal(t, "Orig ID: [John Smith]  New ID: [33DCC325919D5068923739854FCA70E9BC3C5A98]\n", audit.String())
	assert.Zero(t, e.Errors())

	// Source is untouched.
	in, err := dcm.ReadDicomMetadataOnly(src)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", in.GetPatientID())
}

func TestAnonymizeOneRemoveBirthDateWins(t *testing.T) {
	dir := t.TempDir()
	src := dicomtest.Write(t, filepath.Join(dir, "a.dcm"), dicomtest.Patient("X", "P1", "19700101", "CT"))

	e := newTestEngine(&bytes.Buffer{})
	spec := SpecFromOptions(Options{ReplaceBirthDate: true, RemoveBirthDate: true})
	require.NoError(t, e.AnonymizeOne(src, src, spec))

	out, err := dcm.ReadDicomMetadataOnly(src)
	require.NoError(t, err)
	assert.Equal(t, identity.RemovedBirthDate, out.GetPatientBirthDate())
	assert.Equal(t, "P1", out.GetPatientID())
}

func TestAnonymizeOneEmptyAndRemove(t *testing.T) {
	dir := t.TempDir()
	src := dicomtest.Write(t, filepath.Join(dir, "a.dcm"), dicomtest.Patient("X", "P1", "19700101", "CT"))
	dst := filepath.Join(dir, "b.dcm")

	e := newTestEngine(&bytes.Buffer{})
	spec := Spec{
		Empty:   []Field{FieldPatientName},
		Remove:  []Field{FieldPatientBirthDate},
		Replace: map[Field]Rule{FieldModality: Constant("OT")},
	}
	require.NoError(t, e.AnonymizeOne(src, dst, spec))

	out, err := dcm.ReadDicomMetadataOnly(dst)
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out.GetPatientName()))
	assert.False(t, out.Has(FieldPatientBirthDate.Tag()))
	assert.Equal(t, "OT", out.GetModality())
}

func TestAnonymizeOneNoOperation(t *testing.T) {
	e := newTestEngine(&bytes.Buffer{})
	err := e.AnonymizeOne("unused", "unused", Spec{})
	assert.ErrorIs(t, err, ErrNoOperation)
	assert.Zero(t, e.Errors())
}

func TestAnonymizeOneReadFailed(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "junk.dcm")
	require.NoError(t, os.WriteFile(src, []byte("not dicom at all"), 0644))
	dst := filepath.Join(dir, "dst.dcm")

	var audit bytes.Buffer
	e := newTestEngine(&audit)
	err := e.AnonymizeOne(src, dst, SpecFromOptions(Options{ReplacePatientID: true}))

	assert.True(t, errors.Is(err, ErrReadFailed), "got %v", err)
	assert.EqualValues(t, 1, e.Errors())
	assert.NoFileExists(t, dst)
	assert.Empty(t, audit.String())

	data, readErr := os.ReadFile(src)
	require.NoError(t, readErr)
	assert.Equal(t, "not dicom at all", string(data))
}

func TestAnonymizeOneWriteFailed(t *testing.T) {
	dir := t.TempDir()
	src := dicomtest.Write(t, filepath.Join(dir, "a.dcm"), dicomtest.Patient("X", "P1", "", "MR"))
	// A regular file where the output directory should be.
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	var audit bytes.Buffer
	e := newTestEngine(&audit)
	err := e.AnonymizeOne(src, filepath.Join(blocker, "dst.dcm"), SpecFromOptions(Options{ReplacePatientName: true, ReplacePatientID: true}))

	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.EqualValues(t, 1, e.Errors())
	assert.Empty(t, audit.String(), "no audit line for a file that was not written")
}

func TestSpecFromOptions(t *testing.T) {
	assert.True(t, SpecFromOptions(Options{}).IsEmpty())
	assert.False(t, Options{}.Any())

	s := SpecFromOptions(Options{ReplacePatientName: true, ReplacePatientID: true})
	assert.Len(t, s.Replace, 2)
	assert.Equal(t, RulePseudonymize, s.Replace[FieldPatientName].Kind)
	assert.Equal(t, []Field{FieldPatientName, FieldPatientID}, s.replaceOrder())
}

func TestRuleApply(t *testing.T) {
	tests := []struct {
		rule Rule
		in   string
		want string
	}{
		{Rule{Kind: RulePseudonymize}, "John Smith", "33DCC325919D5068923739854FCA70E9BC3C5A98"},
		{Rule{Kind: RuleYearOnly}, "20011231", "2001-00-00"},
		{Rule{Kind: RuleRemovedBirthDate}, "20011231", "0000-00-00"},
		{Constant("ANON"), "anything", "ANON"},
	}
	for _, tt := range tests {
		if got := tt.rule.Apply(tt.in); got != tt.want {
			t.Errorf("%+v.Apply(%q) = %q, want %q", tt.rule, tt.in, got, tt.want)
		}
	}
}
