package catalog

import (
	"testing"
	"time"
)

func newTestCatalog(sizes ...uint64) *Catalog {
	c := New()
	for i, s := range sizes {
		c.Add(FoundFile{Path: string(rune('A'+i)) + ".dcm", Kind: KindDICOM, Size: s})
	}
	return c
}

func TestCatalogPreservesDiscoveryOrder(t *testing.T) {
	c := newTestCatalog(1, 2, 3)
	files := c.Files()
	want := []string{"A.dcm", "B.dcm", "C.dcm"}
	for i, f := range files {
		if f.Path != want[i] {
			t.Errorf("Files()[%d].Path = %q, want %q", i, f.Path, want[i])
		}
	}
	if got := c.TotalSize([]int{0, 2}); got != 4 {
		t.Errorf("TotalSize([0 2]) = %d, want 4", got)
	}
}

func TestCatalogRemove(t *testing.T) {
	tests := []struct {
		name    string
		remove  []int
		removed int
		left    []string
	}{
		{"single", []int{1}, 1, []string{"A.dcm", "C.dcm", "D.dcm"}},
		{"duplicates", []int{0, 0, 3}, 2, []string{"B.dcm", "C.dcm"}},
		{"unordered", []int{3, 0, 2}, 3, []string{"B.dcm"}},
		{"out of range", []int{-1, 9}, 0, []string{"A.dcm", "B.dcm", "C.dcm", "D.dcm"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCatalog(1, 2, 3, 4)
			if got := c.Remove(tt.remove); got != tt.removed {
				t.Errorf("Remove(%v) = %d, want %d", tt.remove, got, tt.removed)
			}
			files := c.Files()
			if len(files) != len(tt.left) {
				t.Fatalf("Len = %d, want %d", len(files), len(tt.left))
			}
			for i, f := range files {
				if f.Path != tt.left[i] {
					t.Errorf("Files()[%d] = %q, want %q", i, f.Path, tt.left[i])
				}
			}
		})
	}
}

func TestCatalogStatuses(t *testing.T) {
	c := newTestCatalog(1, 2, 3)
	c.SetStatuses([]int{0, 2}, StatusUploadSuccess)
	c.SetStatus(1, StatusUploadFail)
	c.SetStatus(7, StatusUploadFail)

	counts := c.CountByStatus()
	if counts[StatusUploadSuccess] != 2 || counts[StatusUploadFail] != 1 {
		t.Errorf("CountByStatus() = %v", counts)
	}
	f, _ := c.At(1)
	if f.Status.String() != "Upload fail" {
		t.Errorf("status text = %q, want %q", f.Status.String(), "Upload fail")
	}
	if !f.Status.Terminal() || StatusUploadPending.Terminal() {
		t.Error("Terminal() mismatch")
	}
}

func TestHumanReadableSize(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "1 kB"},
		{2048, "3 kB"},
		{1536 * 1024, "2.5 MB"},
		{3 * 1024 * 1024 * 1024, "4 GB"},
	}
	for _, tt := range tests {
		if got := HumanReadableSize(tt.in); got != tt.want {
			t.Errorf("HumanReadableSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	d := 2*time.Hour + 3*time.Minute + 4*time.Second + 5*time.Millisecond
	if got := FormatElapsed(d); got != "02:03:04:005" {
		t.Errorf("FormatElapsed(%v) = %q", d, got)
	}
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		sent    int64
		elapsed time.Duration
		want    string
	}{
		{512, time.Second, "512.0 bytes/sec"},
		{2048, time.Second, "2.0 kB/s"},
		{3 * 1024 * 1024, time.Second, "3.0 MB/s"},
		{100, 0, "0.0 bytes/sec"},
	}
	for _, tt := range tests {
		if got := FormatSpeed(tt.sent, tt.elapsed); got != tt.want {
			t.Errorf("FormatSpeed(%d, %v) = %q, want %q", tt.sent, tt.elapsed, got, tt.want)
		}
	}
}
