package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
)

var (
	ErrNotFound    = errors.New("signal record not found")
	ErrDuplicateID = errors.New("signal record id already exists")
	ErrInvalidID   = errors.New("invalid signal record id")
)

const (
	executedDirName = "executed"
	recordExt       = ".json"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Store is the file mailbox shared with the external execution agent.
// Records are created once in the pending directory and never touched
// again by this process; the agent moves them to executed/.
type Store struct {
	pendingDir  string
	executedDir string
	metrics     StoreMetrics
}

// StoreMetrics counts store activity.
type StoreMetrics struct {
	Written    uint64 // records created
	Duplicates uint64 // enqueue refused because the id was taken
	Failed     uint64 // write failures
	Skipped    uint64 // unreadable files skipped while listing
}

// NewStore creates root and root/executed if they do not exist.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("queue directory is empty")
	}
	s := &Store{
		pendingDir:  root,
		executedDir: filepath.Join(root, executedDirName),
	}
	for _, dir := range []string{s.pendingDir, s.executedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create queue directory %s: %w", dir, err)
		}
	}
	return s, nil
}

// PendingDir returns the directory new records are written to.
func (s *Store) PendingDir() string { return s.pendingDir }

// ExecutedDir returns the directory the agent moves finished records to.
func (s *Store) ExecutedDir() string { return s.executedDir }

// CheckWritable checks the pending directory is writable.
func (s *Store) CheckWritable() error {
	f, err := os.CreateTemp(s.pendingDir, ".write-check-*")
	if err != nil {
		return fmt.Errorf("queue directory not writable: %w", err)
	}
	name := f.Name()
	_, werr := f.Write([]byte("ok"))
	cerr := f.Close()
	rerr := os.Remove(name)
	return errors.Join(werr, cerr, rerr)
}

// Enqueue writes rec to <pending>/<id>.json. The file appears atomically:
// the payload goes to a hidden temp file first and is linked into place,
// so readers never see a partial record and an existing id is never
// overwritten (ErrDuplicateID).
func (s *Store) Enqueue(ctx context.Context, rec SignalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID.MatchString(rec.ID) {
		return ErrInvalidID
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		atomic.AddUint64(&s.metrics.Failed, 1)
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}

	final := filepath.Join(s.pendingDir, rec.ID+recordExt)
	tmp, err := os.CreateTemp(s.pendingDir, "."+rec.ID+".*.tmp")
	if err != nil {
		atomic.AddUint64(&s.metrics.Failed, 1)
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		atomic.AddUint64(&s.metrics.Failed, 1)
		return fmt.Errorf("chmod record %s: %w", rec.ID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		atomic.AddUint64(&s.metrics.Failed, 1)
		return fmt.Errorf("write record %s: %w", rec.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		atomic.AddUint64(&s.metrics.Failed, 1)
		return fmt.Errorf("sync record %s: %w", rec.ID, err)
	}
	if err := tmp.Close(); err != nil {
		atomic.AddUint64(&s.metrics.Failed, 1)
		return fmt.Errorf("close record %s: %w", rec.ID, err)
	}

	if err := publish(tmpPath, final); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			atomic.AddUint64(&s.metrics.Duplicates, 1)
			return err
		}
		atomic.AddUint64(&s.metrics.Failed, 1)
		return fmt.Errorf("publish record %s: %w", rec.ID, err)
	}

	atomic.AddUint64(&s.metrics.Written, 1)
	return nil
}

// publish links tmp to final without replacing an existing file. Filesystems
// without hard links fall back to an existence check plus rename.
func publish(tmp, final string) error {
	err := os.Link(tmp, final)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return ErrDuplicateID
	}
	if _, statErr := os.Stat(final); statErr == nil {
		return ErrDuplicateID
	}
	return os.Rename(tmp, final)
}

// Get looks the id up in the pending directory, then in executed/.
func (s *Store) Get(id string) (*SignalRecord, error) {
	if !validID.MatchString(id) {
		return nil, ErrInvalidID
	}
	for _, dir := range []string{s.pendingDir, s.executedDir} {
		rec, err := readRecord(filepath.Join(dir, id+recordExt))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
	return nil, ErrNotFound
}

// ListPending returns every record in the pending directory whose status is
// still pending, ordered by file name. Unreadable files are logged and skipped.
func (s *Store) ListPending(ctx context.Context) ([]SignalRecord, error) {
	all, err := s.list(ctx, s.pendingDir)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, rec := range all {
		if rec.Status == StatusPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListExecuted returns every record the agent has moved to executed/.
func (s *Store) ListExecuted(ctx context.Context) ([]SignalRecord, error) {
	return s.list(ctx, s.executedDir)
}

func (s *Store) list(ctx context.Context, dir string) ([]SignalRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read queue directory %s: %w", dir, err)
	}

	var out []SignalRecord
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		rec, err := readRecord(filepath.Join(dir, name))
		if err != nil {
			atomic.AddUint64(&s.metrics.Skipped, 1)
			log.Printf("⚠️ skipping unreadable signal file %s: %v", name, err)
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func readRecord(path string) (*SignalRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec SignalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("decode %s: missing id", filepath.Base(path))
	}
	return &rec, nil
}

// Metrics returns a snapshot of the store counters.
func (s *Store) Metrics() StoreMetrics {
	return StoreMetrics{
		Written:    atomic.LoadUint64(&s.metrics.Written),
		Duplicates: atomic.LoadUint64(&s.metrics.Duplicates),
		Failed:     atomic.LoadUint64(&s.metrics.Failed),
		Skipped:    atomic.LoadUint64(&s.metrics.Skipped),
	}
}
