// Package store reads and writes the flat-file credential store. The file
// holds one newline-delimited identity:secret record per line; the secret is
// either plaintext (exact match) or an Argon2id encoded hash. The core reads
// the store on every authentication; only the admin surface mutates it.
package store

import (
	"crypto/subtle"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Store is a flat-file identity:secret credential store.
type Store struct {
	path string
	mu   sync.RWMutex
}

// New creates a store backed by the given file. A missing file behaves as an
// empty store.
func New(path string) *Store {
	return &Store{path: path}
}

// Load parses the credential file into an identity → stored-secret map.
func (s *Store) Load() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (map[string]string, error) {
	users := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return users, nil
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, ":") {
			continue
		}
		identity, secret, _ := strings.Cut(line, ":")
		users[identity] = secret
	}
	return users, nil
}

// Save rewrites the credential file from the given map.
func (s *Store) Save(users map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	identities := make([]string, 0, len(users))
	for identity := range users {
		identities = append(identities, identity)
	}
	sort.Strings(identities)
	for _, identity := range identities {
		fmt.Fprintf(&b, "%s:%s\n", identity, users[identity])
	}

	if err := os.WriteFile(s.path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

// Verify reports whether identity/secret match a stored record. Hashed
// records are verified with Argon2id, plaintext records with a constant-time
// exact match.
func (s *Store) Verify(identity, secret string) bool {
	users, err := s.Load()
	if err != nil {
		return false
	}
	stored, ok := users[identity]
	if !ok {
		return false
	}

	if isHashedSecret(stored) {
		match, err := verifyHashedSecret(secret, stored)
		return err == nil && match
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) == 1
}

// Identities returns the sorted identity list without secrets.
func (s *Store) Identities() ([]string, error) {
	users, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(users))
	for identity := range users {
		out = append(out, identity)
	}
	sort.Strings(out)
	return out, nil
}

// AdminCreds reads the administrator credential file (username:password on a
// single line). Defaults apply when the file is absent or malformed.
func AdminCreds(path string) (string, string) {
	const defaultUser, defaultPass = "admin", "admin123"

	data, err := os.ReadFile(path)
	if err != nil {
		return defaultUser, defaultPass
	}
	line := strings.TrimSpace(string(data))
	if u, p, ok := strings.Cut(line, ":"); ok {
		return u, p
	}
	return defaultUser, defaultPass
}
