package scan

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

var ErrEmptySources = errors.New("sources were empty")

// Source is one entry in a scan's source set: a filesystem path (optionally
// a glob pattern) or an already-open byte stream.
type Source struct {
	path   string
	stream io.Reader
}

// Path makes a Source from a filesystem path or glob pattern.
func Path(p string) Source {
	return Source{path: p}
}

// Paths makes a Source per path, in order.
func Paths(ps ...string) []Source {
	sources := make([]Source, len(ps))
	for i, p := range ps {
		sources[i] = Path(p)
	}
	return sources
}

// Stream makes a Source from an open byte stream. The stream is consumed by
// the scan but never closed by it; that stays with the caller.
func Stream(r io.Reader) Source {
	return Source{stream: r}
}

func (s Source) label() string {
	if s.stream != nil {
		return "<stream>"
	}
	return s.path
}

// open returns the source's byte stream and, for file sources, the handle
// to close once its rows are exhausted. Caller-owned streams return a nil
// closer.
func (s Source) open() (io.Reader, io.Closer, error) {
	if s.stream != nil {
		return s.stream, nil, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open avro source %q: %w", s.path, err)
	}
	return f, f, nil
}

// expandSources flattens the source set into the deterministic order the
// scan will open them in. With glob enabled, each path entry expands to its
// matches sorted lexicographically, so repeated scans over an unchanged
// filesystem see identical row ordering.
func expandSources(sources []Source, glob bool) ([]Source, error) {
	var out []Source
	for _, s := range sources {
		if s.stream != nil || !glob {
			out = append(out, s)
			continue
		}
		matches, err := filepath.Glob(s.path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand glob %q: %w", s.path, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			out = append(out, Path(m))
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptySources
	}
	return out, nil
}
