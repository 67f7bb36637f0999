package classify

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PARHeader holds what the PAR text header says about the acquisition.
type PARHeader struct {
	PatientName string
	// PatientLine is the 1-based line holding the patient name, 0 if none.
	PatientLine int
	MRSeries    bool
}

// ReadPARHeader scans a .par file line by line. The last "Patient name" line
// wins; any line mentioning MRSERIES marks the series as MR.
func ReadPARHeader(path string) (PARHeader, error) {
	var h PARHeader

	file, err := os.Open(path)
	if err != nil {
		return h, fmt.Errorf("could not open PAR file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.Contains(line, "Patient name") {
			if _, value, ok := strings.Cut(line, ":"); ok {
				h.PatientName = strings.TrimSpace(value)
				h.PatientLine = lineNo
			}
		}
		if strings.Contains(line, "MRSERIES") {
			h.MRSeries = true
		}
	}
	if err := scanner.Err(); err != nil {
		return h, fmt.Errorf("could not read PAR file: %w", err)
	}
	return h, nil
}

// LocatePatientLine finds the line carrying the patient name in a .par file.
// It only locates the identifier; the text is left unchanged.
func LocatePatientLine(path string) (line int, value string, ok bool) {
	h, err := ReadPARHeader(path)
	if err != nil || h.PatientLine == 0 {
		return 0, "", false
	}
	return h.PatientLine, h.PatientName, true
}

// CompanionREC returns the .rec file that carries the image data for a .par file.
func CompanionREC(parPath string) string {
	ext := filepath.Ext(parPath)
	rec := ".rec"
	if ext == strings.ToUpper(ext) {
		rec = ".REC"
	}
	return strings.TrimSuffix(parPath, ext) + rec
}
