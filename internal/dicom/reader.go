package dicom

import (
	"fmt"
	"os"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Dataset wraps a parsed DICOM dataset together with the file it came from.
type Dataset struct {
	Data     dicom.Dataset
	FilePath string
}

// ReadDicom parses the whole file, pixel data included, so it can be written back.
func ReadDicom(path string) (*Dataset, error) {
	return parseFile(path)
}

// ReadDicomMetadataOnly parses the file without loading pixel data.
func ReadDicomMetadataOnly(path string) (*Dataset, error) {
	return parseFile(path, dicom.SkipPixelData())
}

func parseFile(path string, opts ...dicom.ParseOption) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat file: %w", err)
	}

	ds, err := dicom.Parse(file, info.Size(), nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not parse DICOM: %w", err)
	}

	return &Dataset{Data: ds, FilePath: path}, nil
}

// Has reports whether the tag is present in the dataset.
func (d *Dataset) Has(t tag.Tag) bool {
	_, err := d.Data.FindElementByTag(t)
	return err == nil
}

// GetString returns the first string value of a tag, or "" if absent.
func (d *Dataset) GetString(t tag.Tag) string {
	elem, err := d.Data.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return ""
	}

	switch v := elem.Value.GetValue().(type) {
	case []string:
		if len(v) > 0 {
			return v[0]
		}
		return ""
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// GetPatientName returns (0010,0010).
func (d *Dataset) GetPatientName() string {
	return d.GetString(tag.PatientName)
}

// GetPatientID returns (0010,0020).
func (d *Dataset) GetPatientID() string {
	return d.GetString(tag.PatientID)
}

// GetPatientBirthDate returns (0010,0030).
func (d *Dataset) GetPatientBirthDate() string {
	return d.GetString(tag.PatientBirthDate)
}

// GetModality returns (0008,0060), e.g. "MR" or "CT".
func (d *Dataset) GetModality() string {
	return d.GetString(tag.Modality)
}
