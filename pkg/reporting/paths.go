package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultPathManager implements path management functionality
type DefaultPathManager struct{}

// NewDefaultPathManager creates a new path manager
func NewDefaultPathManager() *DefaultPathManager {
	return &DefaultPathManager{}
}

// GetDefaultOutputDir returns results/<SYMBOL>_<interval>
func (p *DefaultPathManager) GetDefaultOutputDir(symbol, interval string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	i := strings.ToLower(strings.TrimSpace(interval))
	if s == "" {
		s = "UNKNOWN"
	}
	if i == "" {
		i = "unknown"
	}
	return filepath.Join("results", fmt.Sprintf("%s_%s", s, i))
}

// EnsureDirectoryExists creates the parent directory of path
func (p *DefaultPathManager) EnsureDirectoryExists(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DefaultOutputDir is the package-level form of GetDefaultOutputDir
func DefaultOutputDir(symbol, interval string) string {
	return NewDefaultPathManager().GetDefaultOutputDir(symbol, interval)
}

// RunFileName names the output of a replay started at t, e.g.
// replay_20240603_080000.xlsx
func RunFileName(t time.Time, ext string) string {
	return fmt.Sprintf("replay_%s.%s", t.UTC().Format("20060102_150405"), strings.TrimPrefix(ext, "."))
}
