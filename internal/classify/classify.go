package classify

import (
	"path/filepath"
	"strings"

	"nidb-uploader/internal/catalog"
	dcm "nidb-uploader/internal/dicom"
)

// Result is what a detector learned about one file.
type Result struct {
	Kind      catalog.FileKind
	Modality  string
	PatientID string
}

// Modalities are the scan filters offered to the operator, in display order.
var Modalities = []string{"DICOM", "MR", "NIFTI", "CT", "PET", "PARREC", "EEG", "ET", "VIDEO"}

// dicomFilters are filters whose files go through the DICOM anonymization path.
var dicomFilters = map[string]bool{
	"DICOM": true,
	"MR":    true,
	"CT":    true,
	"PET":   true,
	"SPECT": true,
	"US":    true,
}

// IsDICOMFilter reports whether files selected by filter are DICOM files.
func IsDICOMFilter(filter string) bool {
	return dicomFilters[filter]
}

var (
	eegExtensions   = []string{".cnt", ".dat", ".3dd"}
	niftiExtensions = []string{".nii.gz", ".nii", ".hdr", ".img"}
)

// detector inspects a file and reports whether it claimed it.
type detector func(path string) (Result, bool)

// detectors run in priority order. The signature detector comes first so a file
// carrying a DICOM signature is never classified by its extension.
var detectors = []detector{
	detectDICOM,
	detectEEG,
	detectNIFTI,
	detectPARREC,
}

// Classify determines the kind, modality and patient identifier of a file.
// It never fails: anything unrecognized or unreadable is KindUnknown.
func Classify(path string) Result {
	for _, p := range detectors {
		if r, ok := p(path); ok {
			return r
		}
	}
	return Result{Kind: catalog.KindUnknown}
}

// Matches applies the scan filter to a classified file.
func Matches(r Result, filter string) bool {
	if r.Kind == catalog.KindDICOM {
		if filter == "DICOM" {
			return true
		}
		return r.Modality == filter
	}
	return r.Kind != catalog.KindUnknown && r.Kind.String() == filter
}

func detectDICOM(path string) (Result, bool) {
	if !dcm.HasMagicBytes(path) {
		return Result{}, false
	}
	r := Result{Kind: catalog.KindDICOM}
	ds, err := dcm.ReadDicomMetadataOnly(path)
	if err != nil {
		return r, true
	}
	r.Modality = ds.GetModality()
	r.PatientID = ds.GetPatientID()
	return r, true
}

func detectEEG(path string) (Result, bool) {
	if !hasExtension(path, eegExtensions) {
		return Result{}, false
	}
	return Result{Kind: catalog.KindEEG, Modality: "EEG", PatientID: leadingToken(path)}, true
}

func detectNIFTI(path string) (Result, bool) {
	if !hasExtension(path, niftiExtensions) {
		return Result{}, false
	}
	return Result{Kind: catalog.KindNIFTI, Modality: "NIFTI", PatientID: leadingToken(path)}, true
}

func detectPARREC(path string) (Result, bool) {
	if !hasExtension(path, []string{".par"}) {
		return Result{}, false
	}
	r := Result{Kind: catalog.KindPARREC, Modality: "PARREC"}
	header, err := ReadPARHeader(path)
	if err != nil {
		return r, true
	}
	r.PatientID = header.PatientName
	if header.MRSeries {
		r.Modality = "MR"
	}
	return r, true
}

func hasExtension(path string, exts []string) bool {
	lower := strings.ToLower(path)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// BaseName returns the file name up to its first dot, so "S1_a.nii.gz" gives "S1_a".
func BaseName(path string) string {
	return strings.SplitN(filepath.Base(path), ".", 2)[0]
}

func leadingToken(path string) string {
	return strings.SplitN(BaseName(path), "_", 2)[0]
}
