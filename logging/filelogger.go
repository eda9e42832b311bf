package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-unitgate/runner"
)

const (
	RunDirectoryPrefix = "unitgate-" // Standardized prefix for run directories
	SummaryFilename    = "summary.json"
	logFileExtension   = ".log"
)

var _ runner.OutputFactory = (*FileLogger)(nil)

// FileLogger tees the output of every invocation into a log file of its own,
// while still streaming it to the operator's terminal.
type FileLogger struct {
	runDir string
	stdout io.Writer
	stderr io.Writer

	mu    sync.Mutex
	files []string
}

// NewFileLogger creates <baseDir>/unitgate-<runID>
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if baseDir == "" {
		return nil, errors.New("log directory cannot be empty")
	}
	if runID == "" {
		return nil, errors.New("run ID cannot be empty")
	}

	runDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", runDir, err)
	}

	return &FileLogger{
		runDir: runDir,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}, nil
}

// WithEcho replaces the terminal writers output is mirrored to
func (l *FileLogger) WithEcho(stdout, stderr io.Writer) *FileLogger {
	l.stdout = stdout
	l.stderr = stderr
	return l
}

// RunDir returns the directory this run's logs are written to
func (l *FileLogger) RunDir() string {
	return l.runDir
}

// Files returns the log files created so far, in creation order
func (l *FileLogger) Files() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.files...)
}

// Output implements runner.OutputFactory. Both streams share one file with
// ANSI escape sequences removed.
func (l *FileLogger) Output(name string) (*runner.Output, error) {
	path := filepath.Join(l.runDir, name+logFileExtension)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}

	l.mu.Lock()
	l.files = append(l.files, path)
	l.mu.Unlock()

	sw := newStripWriter(file)
	closer := func() error {
		flushErr := sw.Flush()
		closeErr := file.Close()
		return errors.Join(flushErr, closeErr)
	}
	return runner.NewOutput(io.MultiWriter(l.stdout, sw), io.MultiWriter(l.stderr, sw), closer), nil
}

// WriteSummary writes v as indented JSON to summary.json in the run directory
func (l *FileLogger) WriteSummary(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	path := filepath.Join(l.runDir, SummaryFilename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary %s: %w", path, err)
	}
	return path, nil
}

// stripWriter buffers until a full line is available so escape sequences split
// across writes are still removed. It is safe for concurrent use, since exec
// copies stdout and stderr on separate goroutines.
type stripWriter struct {
	mu  sync.Mutex
	w   io.Writer
	buf bytes.Buffer
}

func newStripWriter(w io.Writer) *stripWriter {
	return &stripWriter{w: w}
}

func (s *stripWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Write(p)
	for {
		idx := bytes.IndexByte(s.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := s.buf.Next(idx + 1)
		if _, err := io.WriteString(s.w, stripansi.Strip(string(line))); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush writes any trailing partial line
func (s *stripWriter) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buf.Len() == 0 {
		return nil
	}
	_, err := io.WriteString(s.w, stripansi.Strip(s.buf.String()))
	s.buf.Reset()
	return err
}
