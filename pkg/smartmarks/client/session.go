package client

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Session is what the CLI remembers between runs.
type Session struct {
	Server string `json:"server"`
	Token  string `json:"token"`
	Email  string `json:"email,omitempty"`
}

// DefaultSessionPath is smartmarks/session.json under the user config dir.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "find config dir")
	}
	return filepath.Join(dir, "smartmarks", "session.json"), nil
}

// LoadSession reads the session at path. A missing file gives an empty
// session.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Session{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session")
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &s, nil
}

// Save writes the session readable by the owner only.
func (s *Session) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0o600), "write session")
}

func (s *Session) SignedIn() bool {
	return s.Token != ""
}

// ClearSession removes the session file if there is one.
func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove session")
	}
	return nil
}
