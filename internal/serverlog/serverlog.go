// Package serverlog writes per-(tenant,server) JSON-lines log files,
// rotating by size and gzipping rotated files. A small, focused stdlib
// (os, compress/gzip) utility rather than a dependency on a general
// log-rotation library.
package serverlog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mcpmux/gateway/internal/model"
)

const (
	defaultMaxSizeBytes = 10 * 1024 * 1024
	defaultMaxBackups   = 5
)

// Writer appends ServerLog entries to per-(tenant,server) JSON-lines
// files under root, rotating and gzip-compressing as they grow.
type Writer struct {
	root        string
	maxSize     int64
	maxBackups  int

	mu    sync.Mutex
	files map[string]*rotatingFile
}

// New builds a Writer rooted at dir, creating it if necessary.
func New(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("serverlog: create root %s: %w", dir, err)
	}
	return &Writer{
		root:       dir,
		maxSize:    defaultMaxSizeBytes,
		maxBackups: defaultMaxBackups,
		files:      make(map[string]*rotatingFile),
	}, nil
}

// Append writes one ServerLog entry as a single JSON line, rotating the
// backing file first if it has grown past the size threshold.
func (w *Writer) Append(entry model.ServerLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := entry.TenantID + "/" + entry.ServerID
	rf, ok := w.files[key]
	if !ok {
		path := filepath.Join(w.root, entry.TenantID, entry.ServerID+".log")
		var err error
		rf, err = openRotatingFile(path, w.maxSize, w.maxBackups)
		if err != nil {
			return err
		}
		w.files[key] = rf
	}
	return rf.writeLine(entry)
}

// Close flushes and closes every open log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for _, rf := range w.files {
		if err := rf.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.files = make(map[string]*rotatingFile)
	return firstErr
}

type rotatingFile struct {
	path       string
	maxSize    int64
	maxBackups int

	f    *os.File
	size int64
}

func openRotatingFile(path string, maxSize int64, maxBackups int) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("serverlog: create dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("serverlog: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("serverlog: stat %s: %w", path, err)
	}
	return &rotatingFile{path: path, maxSize: maxSize, maxBackups: maxBackups, f: f, size: info.Size()}, nil
}

func (rf *rotatingFile) writeLine(entry model.ServerLog) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("serverlog: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if rf.size+int64(len(line)) > rf.maxSize && rf.size > 0 {
		if err := rf.rotate(); err != nil {
			return err
		}
	}

	n, err := rf.f.Write(line)
	if err != nil {
		return fmt.Errorf("serverlog: write %s: %w", rf.path, err)
	}
	rf.size += int64(n)
	return nil
}

// rotate closes the active file, gzips it into a numbered backup, and
// opens a fresh file at the original path, pruning backups beyond
// maxBackups.
func (rf *rotatingFile) rotate() error {
	if err := rf.f.Close(); err != nil {
		return fmt.Errorf("serverlog: close before rotate %s: %w", rf.path, err)
	}

	backupPath := nextBackupPath(rf.path)
	if err := gzipFile(rf.path, backupPath); err != nil {
		return err
	}
	if err := os.Remove(rf.path); err != nil {
		return fmt.Errorf("serverlog: remove rotated %s: %w", rf.path, err)
	}

	f, err := os.OpenFile(rf.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("serverlog: reopen %s: %w", rf.path, err)
	}
	rf.f = f
	rf.size = 0

	return pruneBackups(rf.path, rf.maxBackups)
}

func nextBackupPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	existing, _ := filepath.Glob(filepath.Join(dir, base+".*.gz"))
	next := 1
	for _, b := range existing {
		if n := backupIndex(b); n >= next {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s.%d.gz", path, next)
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("serverlog: open %s for rotation: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("serverlog: create %s: %w", dst, err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		return fmt.Errorf("serverlog: gzip %s: %w", src, err)
	}
	return gw.Close()
}

// pruneBackups removes the oldest rotated files for path beyond max,
// keeping the most recently rotated ones.
func pruneBackups(path string, max int) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	matches, err := filepath.Glob(filepath.Join(dir, base+".*.gz"))
	if err != nil {
		return fmt.Errorf("serverlog: glob backups for %s: %w", path, err)
	}
	if len(matches) <= max {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		return backupIndex(matches[i]) < backupIndex(matches[j])
	})
	for _, old := range matches[:len(matches)-max] {
		if err := os.Remove(old); err != nil {
			return fmt.Errorf("serverlog: prune %s: %w", old, err)
		}
	}
	return nil
}

func backupIndex(path string) int {
	name := strings.TrimSuffix(filepath.Base(path), ".gz")
	parts := strings.Split(name, ".")
	n, _ := strconv.Atoi(parts[len(parts)-1])
	return n
}
