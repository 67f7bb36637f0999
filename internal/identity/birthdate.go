package identity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RemovedBirthDate replaces a birth date when it is removed outright.
const RemovedBirthDate = "0000-00-00"

// genericDateLayouts are tried when a birth date has none of the known shapes.
var genericDateLayouts = []string{
	"2006/01/02",
	"01/02/2006",
	"02.01.2006",
	"01-02-2006",
	"Mon Jan 2 2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006",
}

// YearOnly reduces a birth date to its year, formatted YYYY-00-00.
// Accepted inputs are YYYYMMDD, colon- or hyphen-delimited dates starting with
// the year, and common written date formats. Anything else yields RemovedBirthDate.
func YearOnly(value string) string {
	value = strings.TrimSpace(value)

	var candidate string
	switch {
	case len(value) == 8:
		candidate = value[:4]
	case strings.Contains(value, ":"):
		candidate = strings.SplitN(value, ":", 2)[0]
	case strings.Contains(value, "-"):
		candidate = strings.SplitN(value, "-", 2)[0]
	}

	if year, ok := parseYear(candidate); ok {
		return formatYear(year)
	}
	for _, layout := range genericDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return formatYear(t.Year())
		}
	}
	return RemovedBirthDate
}

func parseYear(s string) (int, bool) {
	if len(s) != 4 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	year, err := strconv.Atoi(s)
	return year, err == nil
}

func formatYear(year int) string {
	return fmt.Sprintf("%04d-00-00", year)
}
