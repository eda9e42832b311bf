package coverage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// DefaultDataGlob matches the raw coverage data of every test run
	DefaultDataGlob = "coverage/*/coverage-final.json"

	// DefaultDataDir is where the coverage tool expects consolidated data
	DefaultDataDir = ".nyc_output"

	// DefaultReportGlob matches the lcov reports that are aggregated
	DefaultReportGlob = "coverage/*/lcov.info"
)

// ErrNoCoverageData is returned when consolidation finds nothing to copy
var ErrNoCoverageData = errors.New("no coverage data files matched")

// MatchReports resolves pattern relative to root. Matches are returned in the
// lexical order produced by the glob engine.
func MatchReports(root, pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(root, pattern)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return matches, nil
}

// Aggregate appends the raw bytes of every source to dest, in order, and returns
// the number of bytes written. dest is created if needed. With no sources dest is
// left untouched.
func Aggregate(sources []string, dest string) (int64, error) {
	if len(sources) == 0 {
		return 0, nil
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open aggregate file %s: %w", dest, err)
	}

	var total int64
	for _, src := range sources {
		n, err := appendFile(out, src)
		total += n
		if err != nil {
			_ = out.Close()
			return total, err
		}
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		return total, fmt.Errorf("failed to sync aggregate file %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return total, fmt.Errorf("failed to close aggregate file %s: %w", dest, err)
	}
	return total, nil
}

// appendFile reads src whole before writing, so a source that is also the
// destination is appended once instead of growing without end.
func appendFile(dst io.Writer, src string) (int64, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, fmt.Errorf("failed to read coverage report %s: %w", src, err)
	}

	n, err := dst.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("failed to append coverage report %s: %w", src, err)
	}
	return int64(n), nil
}

// Consolidate copies every file matching pattern (relative to root) into dataDir.
// Each copy is named after its parent directory and base name, so data from
// different runs with the same file name never overwrite each other.
// It returns the destination paths in the order they were written.
func Consolidate(root, pattern, dataDir string) ([]string, error) {
	sources, err := MatchReports(root, pattern)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCoverageData, pattern)
	}

	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(root, dataDir)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create coverage data directory %s: %w", dataDir, err)
	}

	copied := make([]string, 0, len(sources))
	for _, src := range sources {
		dst := filepath.Join(dataDir, consolidatedName(src))
		if err := copyFile(src, dst); err != nil {
			return copied, err
		}
		copied = append(copied, dst)
	}
	return copied, nil
}

func consolidatedName(src string) string {
	parent := filepath.Base(filepath.Dir(src))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(src)
	}
	return parent + "-" + filepath.Base(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open coverage data %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
