package dicom

import (
	"io"
	"os"
)

// Magic is the signature stored at PreambleSize in every Part 10 file.
const Magic = "DICM"

// PreambleSize is the length of the preamble that precedes Magic.
const PreambleSize = 128

// HasMagicBytes checks for "DICM" at byte offset 128.
func HasMagicBytes(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	header := make([]byte, PreambleSize+len(Magic))
	if _, err := io.ReadFull(file, header); err != nil {
		return false
	}
	return string(header[PreambleSize:]) == Magic
}
