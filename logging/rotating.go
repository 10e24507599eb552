package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var numberedFile = regexp.MustCompile(`^misalud-\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingWriter writes to one log file per ISO week. A file that reaches
// maxFileSize is continued in a numbered sibling (misalud-2026-W03_01.log).
// Files older than the retention period are removed daily.
type RotatingWriter struct {
	dir         string
	retention   time.Duration
	maxFileSize int64

	mu   sync.Mutex
	file *os.File
	week string
	size int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRotatingWriter opens the current week's file in dir and starts the
// retention cleanup loop. maxFileSize <= 0 disables size rotation.
func NewRotatingWriter(dir string, retentionWeeks int, maxFileSize int64) (*RotatingWriter, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rw := &RotatingWriter{
		dir:         dir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	rw.mu.Lock()
	err := rw.rotate(weekKey(time.Now()), false)
	rw.mu.Unlock()
	if err != nil {
		cancel()
		return nil, err
	}

	go rw.cleanupLoop(ctx)
	return rw, nil
}

// weekKey returns the ISO week in YYYY-Www form
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// rotate opens the file for week (caller must hold mu). full forces a new
// numbered file because the current one reached the size cap.
func (rw *RotatingWriter) rotate(week string, full bool) error {
	if rw.file != nil {
		if err := rw.file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
		rw.file = nil
	}

	name := rw.fileFor(week, full)
	path := filepath.Join(rw.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640) // #nosec G304 -- path built from configured log dir
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	rw.file = f
	rw.week = week
	rw.size = 0
	if info, err := f.Stat(); err == nil {
		rw.size = info.Size()
	}
	return nil
}

// fileFor picks the file to append to for week.
func (rw *RotatingWriter) fileFor(week string, full bool) string {
	base := fmt.Sprintf("misalud-%s.log", week)

	highest := 0
	var highestSize int64
	matches, _ := filepath.Glob(filepath.Join(rw.dir, fmt.Sprintf("misalud-%s_??.log", week)))
	for _, m := range matches {
		sub := numberedFile.FindStringSubmatch(filepath.Base(m))
		if len(sub) < 2 {
			continue
		}
		n, _ := strconv.Atoi(sub[1])
		if n > highest {
			highest = n
			highestSize = 0
			if info, err := os.Stat(m); err == nil {
				highestSize = info.Size()
			}
		}
	}

	if highest == 0 {
		info, err := os.Stat(filepath.Join(rw.dir, base))
		if err != nil || rw.maxFileSize <= 0 || (!full && info.Size() < rw.maxFileSize) {
			return base
		}
	} else if !full && (rw.maxFileSize <= 0 || highestSize < rw.maxFileSize) {
		return fmt.Sprintf("misalud-%s_%02d.log", week, highest)
	}
	return fmt.Sprintf("misalud-%s_%02d.log", week, highest+1)
}

// Write implements io.Writer
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	week := weekKey(time.Now())
	switch {
	case rw.week != week:
		if err := rw.rotate(week, false); err != nil {
			return 0, err
		}
	case rw.maxFileSize > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.maxFileSize:
		if err := rw.rotate(week, true); err != nil {
			return 0, err
		}
	}

	if rw.file == nil {
		return 0, fmt.Errorf("no log file available")
	}
	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

func (rw *RotatingWriter) cleanupLoop(ctx context.Context) {
	defer close(rw.done)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rw.cleanup(time.Now()); err != nil {
				fmt.Fprintf(os.Stderr, "failed to clean old logs: %v\n", err)
			}
		}
	}
}

// cleanup removes log files last modified before now minus the retention
// period and returns how many were removed.
func (rw *RotatingWriter) cleanup(now time.Time) (int, error) {
	entries, err := os.ReadDir(rw.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := now.Add(-rw.retention)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "misalud-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(rw.dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Close stops the cleanup loop and closes the current file.
func (rw *RotatingWriter) Close() error {
	rw.cancel()
	<-rw.done

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}
