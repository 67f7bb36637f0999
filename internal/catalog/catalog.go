package catalog

import (
	"sort"
	"sync"
	"time"
)

// FileKind is the detected container format of a file.
type FileKind int

const (
	KindUnknown FileKind = iota
	KindDICOM
	KindPARREC
	KindNIFTI
	KindEEG
)

// String returns the name used for the kind in filters and upload metadata.
func (k FileKind) String() string {
	switch k {
	case KindDICOM:
		return "DICOM"
	case KindPARREC:
		return "PARREC"
	case KindNIFTI:
		return "NIFTI"
	case KindEEG:
		return "EEG"
	default:
		return "Unknown"
	}
}

// Status is the processing state of a catalogued file.
type Status int

const (
	StatusReadable Status = iota
	StatusAnonymized
	StatusAnonymizeError
	StatusUploadPending
	StatusUploadSuccess
	StatusUploadFail
	StatusInvalidName
)

var statusText = map[Status]string{
	StatusReadable:       "Readable",
	StatusAnonymized:     "Anonymized",
	StatusAnonymizeError: "Error anonymizing",
	StatusUploadPending:  "Upload pending",
	StatusUploadSuccess:  "Upload success",
	StatusUploadFail:     "Upload fail",
	StatusInvalidName:    "Invalid filename",
}

// String returns the operator-facing status text.
func (s Status) String() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return "Unknown"
}

// Terminal reports whether no further processing will change the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusAnonymizeError, StatusUploadSuccess, StatusUploadFail, StatusInvalidName:
		return true
	}
	return false
}

// FoundFile is one file discovered during a scan.
type FoundFile struct {
	Path      string
	Kind      FileKind
	Modality  string
	PatientID string
	Size      uint64
	CreatedAt time.Time
	Status    Status
	Note      string
}

// Catalog is the ordered list of files found by a scan.
// Indices are stable until files are removed.
type Catalog struct {
	mu    sync.RWMutex
	files []FoundFile
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{}
}

// Add appends a file and returns its index.
func (c *Catalog) Add(f FoundFile) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = append(c.files, f)
	return len(c.files) - 1
}

// Len returns the number of files.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files)
}

// At returns a copy of the file at index i.
func (c *Catalog) At(i int) (FoundFile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.files) {
		return FoundFile{}, false
	}
	return c.files[i], true
}

// Files returns a snapshot of every file in catalog order.
func (c *Catalog) Files() []FoundFile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]FoundFile, len(c.files))
	copy(out, c.files)
	return out
}

// Indices returns 0..Len-1, the selection used by "upload all".
func (c *Catalog) Indices() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int, len(c.files))
	for i := range out {
		out[i] = i
	}
	return out
}

// Size returns the recorded size of the file at index i, or 0.
func (c *Catalog) Size(i int) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.files) {
		return 0
	}
	return c.files[i].Size
}

// SetStatus updates the status of one file.
func (c *Catalog) SetStatus(i int, s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= 0 && i < len(c.files) {
		c.files[i].Status = s
	}
}

// SetStatuses updates the status of several files at once.
func (c *Catalog) SetStatuses(indices []int, s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, i := range indices {
		if i >= 0 && i < len(c.files) {
			c.files[i].Status = s
		}
	}
}

// TotalSize sums the sizes of the given indices.
func (c *Catalog) TotalSize(indices []int) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total uint64
	for _, i := range indices {
		if i >= 0 && i < len(c.files) {
			total += c.files[i].Size
		}
	}
	return total
}

// Remove deletes the given rows. Duplicates and out-of-range indices are ignored.
// Rows after a removed one shift down.
func (c *Catalog) Remove(indices []int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(c.files) {
			rows[i] = true
		}
	}
	if len(rows) == 0 {
		return 0
	}

	sorted := make([]int, 0, len(rows))
	for i := range rows {
		sorted = append(sorted, i)
	}
	// Largest first so earlier indices stay valid while splicing.
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, i := range sorted {
		c.files = append(c.files[:i], c.files[i+1:]...)
	}
	return len(sorted)
}

// Clear removes every file.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = nil
}

// CountByStatus tallies files per status.
func (c *Catalog) CountByStatus() map[Status]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[Status]int)
	for _, f := range c.files {
		counts[f.Status]++
	}
	return counts
}
