package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SequentialRotator is an io.Writer that moves the active file to <name>.<n>.log
// once it grows past maxSize, keeping at most maxBackups rotated files younger than maxAge days.
type SequentialRotator struct {
	filename   string
	maxSize    int64
	maxAge     int
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

func NewSequentialRotator(filename string, maxSizeMB, maxAgeDays, maxBackups int) *SequentialRotator {
	return &SequentialRotator{
		filename:   filename,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxAge:     maxAgeDays,
		maxBackups: maxBackups,
	}
}

func (r *SequentialRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.openFile(); err != nil {
			return 0, err
		}
	}

	if r.maxSize > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Sync lets zap flush the file on shutdown.
func (r *SequentialRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

func (r *SequentialRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *SequentialRotator) openFile() error {
	if err := os.MkdirAll(filepath.Dir(r.filename), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(r.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}

	r.file = file
	r.size = info.Size()
	return nil
}

func (r *SequentialRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil

	rotated := fmt.Sprintf("%s.%d.log", strings.TrimSuffix(r.filename, ".log"), r.maxSequence()+1)
	if err := os.Rename(r.filename, rotated); err != nil {
		return err
	}

	r.prune()
	return r.openFile()
}

type rotatedFile struct {
	path    string
	seq     int
	modTime time.Time
}

func (r *SequentialRotator) rotatedFiles() []rotatedFile {
	base := strings.TrimSuffix(r.filename, ".log")
	matches, err := filepath.Glob(base + ".*.log")
	if err != nil {
		return nil
	}

	files := make([]rotatedFile, 0, len(matches))
	for _, path := range matches {
		seqPart := strings.TrimSuffix(strings.TrimPrefix(path, base+"."), ".log")
		seq, err := strconv.Atoi(seqPart)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		files = append(files, rotatedFile{path: path, seq: seq, modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].seq > files[j].seq })
	return files
}

func (r *SequentialRotator) maxSequence() int {
	files := r.rotatedFiles()
	if len(files) == 0 {
		return 0
	}
	return files[0].seq
}

func (r *SequentialRotator) prune() {
	files := r.rotatedFiles()
	cutoff := time.Now().AddDate(0, 0, -r.maxAge)

	for i, f := range files {
		tooMany := r.maxBackups > 0 && i >= r.maxBackups
		tooOld := r.maxAge > 0 && f.modTime.Before(cutoff)
		if tooMany || tooOld {
			_ = os.Remove(f.path)
		}
	}
}
