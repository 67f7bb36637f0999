package anonymizer

import (
	"fmt"
	"sort"

	"github.com/suyashkumar/dicom/pkg/tag"

	"nidb-uploader/internal/identity"
)

// Field is one of the identifying fields the engine can touch.
type Field int

const (
	FieldPatientName Field = iota
	FieldPatientID
	FieldPatientBirthDate
	FieldModality
)

var fieldTags = map[Field]tag.Tag{
	FieldPatientName:      tag.PatientName,      // (0010,0010)
	FieldPatientID:        tag.PatientID,        // (0010,0020)
	FieldPatientBirthDate: tag.PatientBirthDate, // (0010,0030)
	FieldModality:         tag.Modality,         // (0008,0060)
}

// Tag returns the DICOM tag backing the field.
func (f Field) Tag() tag.Tag {
	return fieldTags[f]
}

func (f Field) String() string {
	switch f {
	case FieldPatientName:
		return "PatientName"
	case FieldPatientID:
		return "PatientID"
	case FieldPatientBirthDate:
		return "PatientBirthDate"
	case FieldModality:
		return "Modality"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// RuleKind selects how a replacement value is computed.
type RuleKind int

const (
	// RulePseudonymize hashes the normalized current value.
	RulePseudonymize RuleKind = iota
	// RuleYearOnly keeps only the year of a date, as YYYY-00-00.
	RuleYearOnly
	// RuleRemovedBirthDate writes the 0000-00-00 sentinel.
	RuleRemovedBirthDate
	// RuleConstant writes Rule.Value verbatim.
	RuleConstant
)

// Rule describes the new value of a replaced field.
type Rule struct {
	Kind  RuleKind
	Value string
}

// Constant returns a rule that writes v.
func Constant(v string) Rule {
	return Rule{Kind: RuleConstant, Value: v}
}

// Apply computes the replacement for the current value.
func (r Rule) Apply(current string) string {
	switch r.Kind {
	case RulePseudonymize:
		return identity.Pseudonymize(current)
	case RuleYearOnly:
		return identity.YearOnly(current)
	case RuleRemovedBirthDate:
		return identity.RemovedBirthDate
	default:
		return r.Value
	}
}

// Spec lists the operations applied to each file.
type Spec struct {
	Empty   []Field
	Remove  []Field
	Replace map[Field]Rule
}

// IsEmpty reports whether s would leave a file untouched.
func (s Spec) IsEmpty() bool {
	return len(s.Empty) == 0 && len(s.Remove) == 0 && len(s.Replace) == 0
}

// replaceOrder returns the replaced fields in a stable order.
func (s Spec) replaceOrder() []Field {
	fields := make([]Field, 0, len(s.Replace))
	for f := range s.Replace {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// Options mirrors the anonymization checkboxes offered to the operator.
type Options struct {
	ReplacePatientName bool
	ReplacePatientID   bool
	ReplaceBirthDate   bool
	RemoveBirthDate    bool
}

// Any reports whether at least one option is set.
func (o Options) Any() bool {
	return o.ReplacePatientName || o.ReplacePatientID || o.ReplaceBirthDate || o.RemoveBirthDate
}

// SpecFromOptions builds a Spec for the selected options. Removing the birth
// date takes precedence over reducing it to the year.
func SpecFromOptions(o Options) Spec {
	s := Spec{Replace: make(map[Field]Rule)}
	if o.ReplacePatientName {
		s.Replace[FieldPatientName] = Rule{Kind: RulePseudonymize}
	}
	if o.ReplacePatientID {
		s.Replace[FieldPatientID] = Rule{Kind: RulePseudonymize}
	}
	if o.ReplaceBirthDate {
		s.Replace[FieldPatientBirthDate] = Rule{Kind: RuleYearOnly}
	}
	if o.RemoveBirthDate {
		s.Replace[FieldPatientBirthDate] = Rule{Kind: RuleRemovedBirthDate}
	}
	return s
}
