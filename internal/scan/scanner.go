package scan

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"nidb-uploader/internal/catalog"
	"nidb-uploader/internal/classify"
)

// EEGNameHint tells the operator how EEG recordings must be named.
const EEGNameHint = "Filename should be in the format S1234ABC_YYYYMMDDHHMISS_task_operator_series_filenum.ext"

// ExcludedNames are housekeeping files that are never imaging data.
var ExcludedNames = map[string]bool{
	"DICOMDIR":    true,
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
	".gitignore":  true,
}

// ExcludedDirs are directories skipped entirely.
var ExcludedDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	"$RECYCLE.BIN": true,
}

// ProgressFunc is called after every regular file the walk inspects.
type ProgressFunc func(found, scanned int, path string)

// Summary describes a finished scan.
type Summary struct {
	Scanned      int
	Found        int
	Bytes        uint64
	InvalidNames int
}

// Scanner walks a directory tree and catalogs files matching a modality filter.
type Scanner struct {
	Log      zerolog.Logger
	Progress ProgressFunc
}

// Scan walks root recursively and appends every file that matches filter to cat.
// Unreadable entries are skipped. ctx is checked between files.
func (s *Scanner) Scan(ctx context.Context, root, filter string, cat *catalog.Catalog) (Summary, error) {
	var sum Summary

	s.Log.Info().Str("dir", root).Str("modality", filter).Msg("Searching for files")

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && ExcludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ExcludedNames[d.Name()] {
			return nil
		}

		sum.Scanned++
		if f, ok := s.inspect(path, filter); ok {
			cat.Add(f)
			sum.Found++
			sum.Bytes += f.Size
			if f.Status == catalog.StatusInvalidName {
				sum.InvalidNames++
				s.Log.Warn().Str("file", path).Msg("Invalid filename")
			}
		}
		if s.Progress != nil {
			s.Progress(sum.Found, sum.Scanned, path)
		}
		return nil
	})
	if err != nil {
		return sum, err
	}

	s.Log.Info().Int("found", sum.Found).Int("scanned", sum.Scanned).
		Str("size", catalog.HumanReadableSize(sum.Bytes)).Msg("Search finished")
	return sum, nil
}

func (s *Scanner) inspect(path, filter string) (catalog.FoundFile, bool) {
	r := classify.Classify(path)
	if !classify.Matches(r, filter) {
		return catalog.FoundFile{}, false
	}

	info, err := os.Stat(path)
	if err != nil {
		return catalog.FoundFile{}, false
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	f := catalog.FoundFile{
		Path:      abs,
		Kind:      r.Kind,
		Modality:  r.Modality,
		PatientID: r.PatientID,
		Size:      uint64(info.Size()),
		CreatedAt: info.ModTime(),
		Status:    catalog.StatusReadable,
	}

	if r.Kind == catalog.KindPARREC {
		rec := classify.CompanionREC(path)
		if recInfo, err := os.Stat(rec); err == nil {
			f.Size += uint64(recInfo.Size())
		} else {
			s.Log.Warn().Str("file", rec).Msg("Companion .rec file not found")
		}
	}

	if filter == "EEG" && !ValidEEGName(path) {
		f.Status = catalog.StatusInvalidName
		f.Note = EEGNameHint
	}

	return f, true
}

// ValidEEGName reports whether the base name splits into 5 or 6 "_" fields.
func ValidEEGName(path string) bool {
	parts := strings.Split(classify.BaseName(path), "_")
	return len(parts) == 5 || len(parts) == 6
}
