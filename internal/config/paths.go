package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".dialdesk"

// Paths holds resolved filesystem paths for dialdesk data.
type Paths struct {
	Base   string // ~/.dialdesk
	Config string // ~/.dialdesk/config.yaml
	Data   string // ~/.dialdesk/data
	Logs   string // ~/.dialdesk/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If DIALDESK_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("DIALDESK_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// DBPath resolves the SQLite path, preferring an explicit store path.
func (p Paths) DBPath(storePath string) string {
	if storePath != "" {
		return storePath
	}
	return filepath.Join(p.Data, "dialdesk.db")
}
