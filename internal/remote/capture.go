package remote

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Capture manages per-invocation output files under the run archive
// directory. Every invocation gets a fresh pair of files, so re-running
// an identical task never contaminates earlier captures.
type Capture struct {
	dir string

	mu  sync.Mutex
	seq int
}

// NewCapture creates the archive directory if needed.
func NewCapture(dir string) (*Capture, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", dir, err)
	}
	return &Capture{dir: dir}, nil
}

// Create opens a fresh stdout/stderr file pair for one invocation. The
// caller owns closing both files.
func (c *Capture) Create(label string) (stdout, stderr *os.File, err error) {
	c.mu.Lock()
	seq := c.seq
	c.seq++
	c.mu.Unlock()

	base := fmt.Sprintf("%04d-%s", seq, sanitizeLabel(label))

	stdout, err = os.Create(filepath.Join(c.dir, base+".stdout.log"))
	if err != nil {
		return nil, nil, fmt.Errorf("create stdout capture: %w", err)
	}
	stderr, err = os.Create(filepath.Join(c.dir, base+".stderr.log"))
	if err != nil {
		stdout.Close()
		return nil, nil, fmt.Errorf("create stderr capture: %w", err)
	}
	return stdout, stderr, nil
}

// sanitizeLabel keeps capture file names filesystem-safe.
func sanitizeLabel(label string) string {
	if label == "" {
		return "cmd"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, label)
}
