package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	logx "notifysync/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl        (append-only JSON Lines)
//   - <prefix>.seen.snapshot.json (periodic snapshot)
//   - <prefix>.seen.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery writes and
// on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditPath string
	auditFile *os.File

	seenSnapshotPath string
	seenJournalFile  *os.File
	seen             map[string]int64 // unix milli

	seenWrites   int
	compactEvery int
}

type seenRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	snapPath := prefix + ".seen.snapshot.json"
	journalPath := prefix + ".seen.journal.jsonl"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	seen := map[string]int64{}
	if err := loadSeenSnapshot(snapPath, seen); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("seen snapshot unreadable", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replaySeenJournal(journalPath, seen); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("seen journal unreadable", logx.String("path", journalPath), logx.Err(err))
	}
	pruneExpiredSeen(seen)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	return &fileStore{
		log:              log,
		auditPath:        auditPath,
		auditFile:        af,
		seenSnapshotPath: snapPath,
		seenJournalFile:  jf,
		seen:             seen,
		compactEvery:     1000,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.seenJournalFile != nil {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("seen compact on close failed", logx.Err(err))
		}
		errs = append(errs, s.seenJournalFile.Close())
		s.seenJournalFile = nil
	}
	if s.auditFile != nil {
		errs = append(errs, s.auditFile.Close())
		s.auditFile = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) PutSeen(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seenJournalFile == nil {
		return ErrClosed
	}
	s.seen[key] = ms

	if err := json.NewEncoder(s.seenJournalFile).Encode(seenRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.seenWrites++
	if s.compactEvery > 0 && s.seenWrites%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("seen compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetSeen(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.seen[key]
	if !ok || ms < time.Now().UnixMilli() {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (s *fileStore) compactLocked() error {
	pruneExpiredSeen(s.seen)

	tmp := s.seenSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.seen); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.seenSnapshotPath); err != nil {
		return err
	}
	if err := s.seenJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.seenJournalFile.Seek(0, io.SeekEnd)
	return err
}

func (s *fileStore) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, nil
	}
	all, err := s.readAudit()
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	slices.Reverse(all)
	return all, nil
}

// readAudit returns every audit entry in file order. Lines that do not
// decode are skipped.
func (s *fileStore) readAudit() ([]AuditEntry, error) {
	f, err := os.Open(s.auditPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

func loadSeenSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replaySeenJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r seenRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}

func pruneExpiredSeen(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
