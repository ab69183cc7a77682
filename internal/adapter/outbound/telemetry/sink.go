// Package telemetry provides the append-only JSON-Lines sink the pipeline
// writes one decision line to (plus, under audit-only suppression, a
// second audit line), with size-based rotation and optional stdout
// mirroring.
package telemetry

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// RotatingWriter is a single-file, size-based rotating writer: when the
// file reaches maxBytes, up to keep numbered backups are shifted (.1, .2,
// ...), the oldest evicted, and — if compress is set — the freshly rotated
// ".1" backup is gzipped in place.
type RotatingWriter struct {
	path     string
	file     *os.File
	maxBytes int64
	keep     int
	compress bool
	mu       sync.Mutex
}

// OpenRotatingWriter opens (creating if necessary) the file at path for
// append.
func OpenRotatingWriter(path string, maxBytes int64, keep int, compress bool) (*RotatingWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file %s: %w", path, err)
	}
	return &RotatingWriter{path: path, file: f, maxBytes: maxBytes, keep: keep, compress: compress}, nil
}

// WriteLine appends line plus a trailing newline, rotating first if the
// file has reached maxBytes.
func (w *RotatingWriter) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxBytes > 0 {
		if size, err := w.currentSizeLocked(); err == nil && size >= w.maxBytes {
			if err := w.rotateLocked(); err != nil {
				return err
			}
		}
	}

	_, err := w.file.WriteString(line + "\n")
	return err
}

// CurrentSize returns the current on-disk size of the active file.
func (w *RotatingWriter) CurrentSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	size, err := w.currentSizeLocked()
	if err != nil {
		return 0
	}
	return size
}

func (w *RotatingWriter) currentSizeLocked() (int64, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// rotateLocked shifts numbered backups, optionally gzips the freshest one,
// and reopens the primary file truncated. Must be called with w.mu held.
func (w *RotatingWriter) rotateLocked() error {
	if w.keep == 0 {
		return w.reopenLocked()
	}
	for idx := w.keep; idx >= 1; idx-- {
		var oldPath string
		if idx == 1 {
			oldPath = w.path
		} else {
			oldPath = fmt.Sprintf("%s.%d", w.path, idx-1)
		}
		if _, err := os.Stat(oldPath); err != nil {
			continue
		}
		newPath := fmt.Sprintf("%s.%d", w.path, idx)
		_ = os.Rename(oldPath, newPath)
	}

	if w.compress {
		w.compressBackupLocked()
	}

	return w.reopenLocked()
}

// compressBackupLocked gzips the ".1" backup produced by rotateLocked and
// removes the uncompressed copy.
func (w *RotatingWriter) compressBackupLocked() {
	rotated := fmt.Sprintf("%s.1", w.path)
	data, err := os.ReadFile(rotated)
	if err != nil {
		return
	}
	gzPath := rotated + ".gz"
	out, err := os.Create(gzPath)
	if err != nil {
		return
	}
	defer func() { _ = out.Close() }()

	gz := gzip.NewWriter(out)
	if _, err := gz.Write(data); err != nil {
		_ = gz.Close()
		return
	}
	if err := gz.Close(); err != nil {
		return
	}
	_ = os.Remove(rotated)
}

// reopenLocked closes the current file handle (if any) and truncates a
// fresh one at w.path. Must be called with w.mu held.
func (w *RotatingWriter) reopenLocked() error {
	if w.file != nil {
		_ = w.file.Close()
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("reopen telemetry file %s: %w", w.path, err)
	}
	w.file = f
	return nil
}

// Close flushes and closes the underlying file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}

// Sink is the pluggable telemetry/audit collaborator the pipeline hands
// decision and audit payloads to. It counts lines written and write
// failures, and mirrors a sampled subset to stdout.
type Sink struct {
	telemetry    *RotatingWriter
	audit        *RotatingWriter
	mirrorStdout bool
	sampleEveryN uint64
	sampleCount  atomic.Uint64
	linesTotal   atomic.Uint64
	writeErrors  atomic.Uint64
	logger       *slog.Logger
	stdout       io.Writer
}

// Config configures a Sink.
type Config struct {
	Telemetry    *RotatingWriter
	Audit        *RotatingWriter
	MirrorStdout bool
	SampleEveryN uint64
}

// New builds a Sink. A nil Telemetry writer disables telemetry persistence
// entirely (lines are only optionally mirrored to stdout); a nil Audit
// writer falls back to the telemetry writer for audit lines, matching the
// reference sink's fallback behavior.
func New(cfg Config, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleEveryN == 0 {
		cfg.SampleEveryN = 1
	}
	return &Sink{
		telemetry:    cfg.Telemetry,
		audit:        cfg.Audit,
		mirrorStdout: cfg.MirrorStdout,
		sampleEveryN: cfg.SampleEveryN,
		logger:       logger,
		stdout:       os.Stdout,
	}
}

// LinesTotal returns the number of lines successfully written to disk.
func (s *Sink) LinesTotal() uint64 { return s.linesTotal.Load() }

// WriteErrorsTotal returns the number of write failures observed.
func (s *Sink) WriteErrorsTotal() uint64 { return s.writeErrors.Load() }

// LogFileSizeBytes returns the telemetry file's current size, or 0 if
// telemetry is disabled.
func (s *Sink) LogFileSizeBytes() int64 {
	if s.telemetry == nil {
		return 0
	}
	return s.telemetry.CurrentSize()
}

// EmitEvent serializes payload as compact JSON and writes it as the
// decision telemetry line. It reports whether the line was written to
// disk successfully (true when no file is configured at all, since
// there is then nothing to fail).
func (s *Sink) EmitEvent(payload interface{}) bool {
	return s.writeAndMirror(payload, s.telemetry)
}

// EmitAudit serializes payload and writes it to the audit stream, falling
// back to the telemetry stream when no dedicated audit writer is
// configured.
func (s *Sink) EmitAudit(payload interface{}) bool {
	writer := s.audit
	if writer == nil {
		writer = s.telemetry
	}
	return s.writeAndMirror(payload, writer)
}

func (s *Sink) writeAndMirror(payload interface{}, writer *RotatingWriter) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal telemetry payload", "error", err)
		s.writeErrors.Add(1)
		return false
	}
	line := string(data)

	ok := true
	if writer != nil {
		if err := writer.WriteLine(line); err != nil {
			s.logger.Warn("failed to write telemetry line", "error", err)
			s.writeErrors.Add(1)
			ok = false
		} else {
			s.linesTotal.Add(1)
		}
	}

	if s.shouldMirror() {
		fmt.Fprintln(s.stdout, line)
	}
	return ok
}

// shouldMirror reports whether the current line should also go to stdout,
// applying 1/N sampling: the file always receives every line; stdout only
// receives every Nth line when sampleEveryN > 1.
func (s *Sink) shouldMirror() bool {
	if !s.mirrorStdout {
		return false
	}
	if s.sampleEveryN <= 1 {
		return true
	}
	prev := s.sampleCount.Add(1) - 1
	return prev%s.sampleEveryN == 0
}
