package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FilePath is the conventional location of the credential file relative
// to an edge node's work directory (spec §9 persistence layout:
// `work_dir/credential.json`).
const FilePath = "credential.json"

// Store persists one Credential as JSON at a fixed path, adapted from
// crab-cert's CredentialStorage.
type Store struct {
	path string
}

// NewStore builds a Store writing to workDir/credential.json.
func NewStore(workDir string) *Store {
	return &Store{path: filepath.Join(workDir, FilePath)}
}

// AtPath builds a Store writing to an exact file path.
func AtPath(path string) *Store {
	return &Store{path: path}
}

// Path returns the file this store reads from and writes to.
func (s *Store) Path() string {
	return s.path
}

// Save writes cred as pretty JSON, creating the parent directory if
// needed.
func (s *Store) Save(cred *Credential) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("credential: create dir %s: %w", dir, err)
		}
	}
	raw, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("credential: marshal: %w", err)
	}
	return os.WriteFile(s.path, raw, 0o600)
}

// Load reads the credential file, returning (nil, nil) if it does not
// exist or cannot be parsed — mirroring crab-cert's load() returning
// None on any failure, since a corrupt credential is treated the same as
// a missing one (needs re-activation).
func (s *Store) Load() (*Credential, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("credential: read %s: %w", s.path, err)
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, nil
	}
	return &cred, nil
}

// Exists reports whether the credential file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Delete removes the credential file, a no-op if it is already gone.
func (s *Store) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("credential: delete %s: %w", s.path, err)
	}
	return nil
}
