// Package profiles stores archive connection profiles in a tab-separated
// text file, one "server<TAB>username<TAB>HASH" line per profile.
package profiles

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nidb-uploader/internal/identity"
)

// Profile is one saved connection. The password is only kept as its hash.
type Profile struct {
	Server       string
	Username     string
	PasswordHash string
}

// NewProfile hashes password and returns the profile.
func NewProfile(server, username, password string) (Profile, error) {
	p := Profile{
		Server:       strings.TrimRight(strings.TrimSpace(server), "/"),
		Username:     strings.TrimSpace(username),
		PasswordHash: identity.PasswordHash(password),
	}
	if p.Server == "" || p.Username == "" {
		return Profile{}, errors.New("server and username are required")
	}
	if strings.ContainsAny(p.Server+p.Username, "\t\n") {
		return Profile{}, errors.New("server and username must not contain tabs or newlines")
	}
	return p, nil
}

// Display renders the profile as "server,user,hash".
func (p Profile) Display() string {
	return p.Server + "," + p.Username + "," + p.PasswordHash
}

func (p Profile) line() string {
	return p.Server + "\t" + p.Username + "\t" + p.PasswordHash
}

// Store is the profile file.
type Store struct {
	path string
}

// NewStore returns a store backed by path. The file need not exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads all profiles. Blank and malformed lines are skipped. A missing
// file yields no profiles.
func (s *Store) Load() ([]Profile, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open profiles: %w", err)
	}
	defer f.Close()

	var out []Profile
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t")
		if len(parts) < 3 || parts[0] == "" {
			continue
		}
		out = append(out, Profile{Server: parts[0], Username: parts[1], PasswordHash: parts[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return out, nil
}

// Append adds a profile at the end of the file.
func (s *Store) Append(p Profile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open profiles: %w", err)
	}
	if _, err := fmt.Fprintln(f, p.line()); err != nil {
		f.Close()
		return fmt.Errorf("write profile: %w", err)
	}
	return f.Close()
}

// Remove deletes the i-th profile and rewrites the file atomically.
func (s *Store) Remove(i int) (Profile, error) {
	all, err := s.Load()
	if err != nil {
		return Profile{}, err
	}
	if i < 0 || i >= len(all) {
		return Profile{}, fmt.Errorf("no profile at index %d", i)
	}
	removed := all[i]
	all = append(all[:i], all[i+1:]...)

	var b strings.Builder
	for _, p := range all {
		b.WriteString(p.line())
		b.WriteByte('\n')
	}
	if err := writeAtomic(s.path, []byte(b.String())); err != nil {
		return Profile{}, err
	}
	return removed, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("rewrite profiles: %w", err)
	}
	name := tmp.Name()

	_, writeErr := tmp.Write(data)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, syncErr, closeErr); err != nil {
		os.Remove(name)
		return fmt.Errorf("rewrite profiles: %w", err)
	}
	if err := os.Chmod(name, 0o600); err != nil {
		os.Remove(name)
		return fmt.Errorf("rewrite profiles: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("rewrite profiles: %w", err)
	}
	return nil
}
