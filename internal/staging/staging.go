// Package staging manages the per-batch temporary directories that hold
// anonymized copies until the batch has been sent.
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Area is a uniquely named directory owned by one batch.
type Area struct {
	dir string
}

// New creates a fresh area under root.
func New(root string) (*Area, error) {
	if root == "" {
		return nil, fmt.Errorf("staging root is not set")
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging area: %w", err)
	}
	return &Area{dir: dir}, nil
}

// Dir returns the area's directory.
func (a *Area) Dir() string {
	return a.dir
}

// DICOMPath returns a new unique destination for an anonymized DICOM file.
func (a *Area) DICOMPath() string {
	return filepath.Join(a.dir, uuid.NewString()+".dcm")
}

// CopyPair copies a header and its optional data file into the area under
// one fresh stem, keeping each file's extension. Files from different
// directories that share a base name never overwrite each other. rec may be
// empty.
func (a *Area) CopyPair(par, rec string) ([]string, error) {
	stem := uuid.NewString()
	var out []string
	for _, src := range []string{par, rec} {
		if src == "" {
			continue
		}
		dst := filepath.Join(a.dir, stem+filepath.Ext(src))
		if err := CopyAtomic(src, dst); err != nil {
			return nil, fmt.Errorf("stage %s: %w", filepath.Base(src), err)
		}
		out = append(out, dst)
	}
	return out, nil
}

// Remove deletes the area and everything in it.
func (a *Area) Remove() error {
	if err := os.RemoveAll(a.dir); err != nil {
		return fmt.Errorf("remove staging area %s: %w", a.dir, err)
	}
	return nil
}

// CopyAtomic copies src to dst through a temporary sibling so dst is either
// complete or absent.
func CopyAtomic(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := out.Name()

	_, copyErr := io.Copy(out, in)
	syncErr := out.Sync()
	closeErr := out.Close()

	for _, err := range []error{copyErr, syncErr, closeErr} {
		if err != nil {
			_ = os.Remove(tmp)
			return err
		}
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename tmp->final: %w", err)
	}
	return nil
}
