package identity

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPseudonymizeKnownVector(t *testing.T) {
	const want = "33DCC325919D5068923739854FCA70E9BC3C5A98" // SHA-1("john smith")
	if got := Pseudonymize("John Smith"); got != want {
		t.Errorf("Pseudonymize(%q) = %s, want %s", "John Smith", got, want)
	}
}

func TestPseudonymizeNormalizationIsIdempotent(t *testing.T) {
	variants := []string{
		"John Smith",
		"  john smith",
		"JOHN SMITH\t",
		"jOhN sMiTh\n",
	}
	for _, v := range variants {
		if Pseudonymize(v) != Pseudonymize(Normalize(v)) {
			t.Errorf("Pseudonymize(%q) != Pseudonymize(Normalize(%q))", v, v)
		}
		if Pseudonymize(v) != Pseudonymize(variants[0]) {
			t.Errorf("Pseudonymize(%q) differs from Pseudonymize(%q)", v, variants[0])
		}
	}
	if Pseudonymize("john smith") == Pseudonymize("john  smith") {
		t.Error("inner whitespace must not be collapsed")
	}
}

func TestPasswordHash(t *testing.T) {
	const want = "E5E9FA1BA31ECD1AE84F75CAAA474F3A663F05F4" // SHA-1("secret")
	if got := PasswordHash(" secret "); got != want {
		t.Errorf("PasswordHash() = %s, want %s", got, want)
	}
	if got := PasswordHash("Secret"); got == want {
		t.Error("PasswordHash must be case sensitive")
	}
}

func TestYearOnly(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"19850313", "1985-00-00"},
		{"1985:03:13", "1985-00-00"},
		{"1985-03-13", "1985-00-00"},
		{" 19850313 ", "1985-00-00"},
		{"03/13/1985", "1985-00-00"},
		{"1985/03/13", "1985-00-00"},
		{"Wed Mar 13 1985", "1985-00-00"},
		{"March 13, 1985", "1985-00-00"},
		{"03-13-1985", "1985-00-00"},
		{"1985", "1985-00-00"},
		{"", RemovedBirthDate},
		{"garbage", RemovedBirthDate},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := YearOnly(tt.in); got != tt.want {
				t.Errorf("YearOnly(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsPlaceholder(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{" Anonymous ", true},
		{"UNKNOWN", true},
		{"P001", false},
	}
	for _, tt := range tests {
		if got := IsPlaceholder(tt.in); got != tt.want {
			t.Errorf("IsPlaceholder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAuditLogFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewAuditLog(&buf)
	if err := log.Record(" P001", Pseudonymize("P001")); err != nil {
		t.Fatal(err)
	}
	want := "Orig ID: [ P001]  New ID: [" + Pseudonymize("p001") + "]\n"
	if buf.String() != want {
		t.Errorf("audit line = %q, want %q", buf.String(), want)
	}
	if log.Entries() != 1 {
		t.Errorf("Entries() = %d, want 1", log.Entries())
	}
}

func TestAuditLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "idmap.txt")
	for i := 0; i < 2; i++ {
		log, err := OpenAuditLog(path)
		if err != nil {
			t.Fatalf("OpenAuditLog() error = %v", err)
		}
		log.Record("A", "B")
		log.Close()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "Orig ID: [A]  New ID: [B]\n"); n != 2 {
		t.Errorf("found %d lines, want 2", n)
	}
}
