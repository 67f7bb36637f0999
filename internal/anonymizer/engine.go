// Package anonymizer rewrites the identifying fields of DICOM files.
package anonymizer

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	dcm "nidb-uploader/internal/dicom"
	"nidb-uploader/internal/identity"
)

var (
	ErrReadFailed     = errors.New("could not read DICOM file")
	ErrWriteFailed    = errors.New("could not write DICOM file")
	ErrNoOperation    = errors.New("no anonymization operation requested")
	ErrFieldOperation = errors.New("anonymization field operation failed")
)

// Engine applies a Spec to files. It is safe for concurrent use.
type Engine struct {
	Audit *identity.AuditLog
	Log   zerolog.Logger

	errors atomic.Int64
}

// NewEngine returns an engine that records pseudonymized IDs to audit.
func NewEngine(audit *identity.AuditLog, log zerolog.Logger) *Engine {
	return &Engine{Audit: audit, Log: log}
}

// Errors returns the number of files that could not be read or written.
func (e *Engine) Errors() int64 {
	return e.errors.Load()
}

// AnonymizeOne reads src, applies spec and writes the result to dst.
// dst may equal src. The write is atomic, so a failure never leaves a
// truncated file at dst.
func (e *Engine) AnonymizeOne(src, dst string, spec Spec) error {
	if spec.IsEmpty() {
		return ErrNoOperation
	}

	ds, err := dcm.ReadDicom(src)
	if err != nil {
		e.errors.Add(1)
		e.Log.Error().Err(err).Str("file", src).Msg("Could not read file")
		return fmt.Errorf("%w: %s: %v", ErrReadFailed, src, err)
	}

	var failed []string
	// Audit pairs are recorded only once the output exists.
	var pairs [][2]string

	for _, f := range spec.Empty {
		if err := ds.ClearTag(f.Tag()); err != nil {
			failed = append(failed, fmt.Sprintf("empty %s: %v", f, err))
		}
	}
	for _, f := range spec.Remove {
		ds.RemoveTag(f.Tag())
	}
	for _, f := range spec.replaceOrder() {
		rule := spec.Replace[f]
		current := ds.GetString(f.Tag())
		if f == FieldPatientID && identity.IsPlaceholder(current) {
			e.Log.Warn().Str("file", src).Str("value", current).Msg("PatientID looks like a placeholder")
		}

		value := rule.Apply(current)
		if err := ds.SetString(f.Tag(), value); err != nil {
			failed = append(failed, fmt.Sprintf("replace %s: %v", f, err))
			continue
		}
		e.Log.Debug().Str("file", src).Stringer("field", f).Str("value", value).Msg("Replaced field")

		if f == FieldPatientID && rule.Kind == RulePseudonymize {
			pairs = append(pairs, [2]string{current, value})
		}
	}

	if err := ds.Save(dst); err != nil {
		e.errors.Add(1)
		e.Log.Error().Err(err).Str("file", dst).Msg("Could not write file")
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, dst, err)
	}

	for _, p := range pairs {
		if err := e.Audit.Record(p[0], p[1]); err != nil {
			failed = append(failed, fmt.Sprintf("audit %s: %v", FieldPatientID, err))
		}
	}

	if len(failed) > 0 {
		e.Log.Warn().Str("file", src).Strs("failures", failed).Msg("Some fields were not anonymized")
		return fmt.Errorf("%w: %s: %v", ErrFieldOperation, src, failed)
	}
	return nil
}
