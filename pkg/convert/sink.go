package convert

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/openvdata/annoconv/internal/fsutil"
)

// DirSink writes exported files under a root directory. Each file is
// written atomically, and path segments are sanitized so record names
// cannot escape the root.
type DirSink struct {
	Dir string
}

// WriteFile implements Sink.
func (s *DirSink) WriteFile(path string, data []byte) error {
	segs := strings.Split(filepath.ToSlash(path), "/")
	clean := make([]string, 0, len(segs)+1)
	clean = append(clean, s.Dir)
	for _, seg := range segs {
		if seg == "" {
			continue
		}
		clean = append(clean, fsutil.SanitizeFilename(seg))
	}
	return fsutil.AtomicWrite(filepath.Join(clean...), data)
}

// MemorySink collects exported files in memory, keyed by path. Useful in
// tests and when the caller wants to inspect output before persisting.
type MemorySink struct {
	mu    sync.Mutex
	files map[string][]byte
}

// WriteFile implements Sink.
func (s *MemorySink) WriteFile(path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.files[path] = buf
	return nil
}

// Files returns a copy of everything written so far.
func (s *MemorySink) Files() map[string][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.files))
	for k, v := range s.files {
		out[k] = v
	}
	return out
}
