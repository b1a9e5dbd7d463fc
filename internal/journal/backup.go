package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/subwise/resilience/internal/domain"
	"go.uber.org/zap"
)

const (
	backupPrefix    = "history_"
	backupExtension = ".json"
	ledgerFileName  = "failed-writes.log"

	backupDirPerm  = 0o700
	backupFilePerm = 0o600
)

// backupArtifact is the on-disk shape of one journaled record. Field names are
// part of the recovery contract; renaming one breaks replay of old artifacts.
type backupArtifact struct {
	RecordID       string            `json:"recordId,omitempty"`
	SubscriptionID string            `json:"subscriptionId"`
	UserID         string            `json:"userId"`
	ChangeType     string            `json:"changeType"`
	Description    string            `json:"description,omitempty"`
	OldValue       string            `json:"oldValue,omitempty"`
	NewValue       string            `json:"newValue,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ActorIP        string            `json:"actorIp,omitempty"`
	ActorUserAgent string            `json:"actorUserAgent,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// LedgerEntry is one NDJSON line in the failed-writes ledger.
type LedgerEntry struct {
	RecordID   string    `json:"recordId,omitempty"`
	BackupPath string    `json:"backupPath"`
	UserID     string    `json:"userId"`
	ChangeType string    `json:"changeType"`
	Timestamp  time.Time `json:"timestamp"`
}

// BackupStore keeps journaled records as individual JSON files in one
// directory, plus an append-only ledger of writes the primary store missed.
// It survives database outages because it touches nothing but the local disk.
type BackupStore struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

func NewBackupStore(dir string, logger *zap.Logger) (*BackupStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, backupDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &BackupStore{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (s *BackupStore) Dir() string {
	return s.dir
}

// Ping reports whether the backup directory is still usable. The journal's
// durability guarantee stands only while this holds.
func (s *BackupStore) Ping() error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("backup directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup path %s is not a directory", s.dir)
	}
	return nil
}

// Write persists one record as a new artifact and returns its file name.
// Names embed the write time in unix milliseconds; a same-millisecond
// collision bumps the timestamp until a free name is found.
func (s *BackupStore) Write(record *domain.HistoryRecord) (string, error) {
	if record == nil {
		return "", fmt.Errorf("history record is required")
	}

	artifact := backupArtifact{
		RecordID:       record.ID,
		SubscriptionID: record.SubscriptionID,
		UserID:         record.UserID,
		ChangeType:     record.ChangeType,
		Description:    record.Description,
		OldValue:       record.OldValue,
		NewValue:       record.NewValue,
		Metadata:       record.Metadata,
		ActorIP:        record.ActorIP,
		ActorUserAgent: record.ActorUserAgent,
		CreatedAt:      record.CreatedAt.UTC(),
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup artifact: %w", err)
	}

	millis := s.now().UnixMilli()
	for attempt := 0; attempt < 1000; attempt++ {
		name := backupName(millis+int64(attempt), record.UserID, record.ChangeType)
		path := filepath.Join(s.dir, name)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, backupFilePerm)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create backup artifact: %w", err)
		}

		if _, err := file.Write(data); err != nil {
			file.Close()
			return "", fmt.Errorf("failed to write backup artifact: %w", err)
		}
		if err := file.Close(); err != nil {
			return "", fmt.Errorf("failed to close backup artifact: %w", err)
		}
		return name, nil
	}

	return "", fmt.Errorf("could not find a free backup artifact name")
}

// List returns the artifact names currently on disk, oldest first.
func (s *BackupStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, backupExtension) {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

func (s *BackupStore) Read(name string) (*domain.HistoryRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read backup artifact %s: %w", name, err)
	}

	var artifact backupArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode backup artifact %s: %w", name, err)
	}

	return &domain.HistoryRecord{
		ID:             artifact.RecordID,
		SubscriptionID: artifact.SubscriptionID,
		UserID:         artifact.UserID,
		ChangeType:     artifact.ChangeType,
		Description:    artifact.Description,
		OldValue:       artifact.OldValue,
		NewValue:       artifact.NewValue,
		Metadata:       artifact.Metadata,
		ActorIP:        artifact.ActorIP,
		ActorUserAgent: artifact.ActorUserAgent,
		CreatedAt:      artifact.CreatedAt,
	}, nil
}

func (s *BackupStore) Delete(name string) error {
	if err := os.Remove(filepath.Join(s.dir, filepath.Base(name))); err != nil {
		return fmt.Errorf("failed to delete backup artifact %s: %w", name, err)
	}
	return nil
}

// Purge removes artifacts written before the cutoff, whatever their
// reconciliation state, and returns how many were removed.
func (s *BackupStore) Purge(olderThan time.Time) (int, error) {
	names, err := s.List()
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, name := range names {
		writtenAt, ok := backupWrittenAt(name)
		if !ok {
			continue
		}
		if !writtenAt.Before(olderThan) {
			continue
		}
		if err := s.Delete(name); err != nil {
			s.logger.Warn("failed to purge expired backup artifact",
				zap.String("artifact", name),
				zap.Error(err),
			)
			continue
		}
		purged++
	}

	return purged, nil
}

// AppendFailedWrite adds one NDJSON line to the failed-writes ledger. The
// ledger is append-only; reconciliation works from the artifacts themselves.
func (s *BackupStore) AppendFailedWrite(entry LedgerEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(s.dir, ledgerFileName), os.O_WRONLY|os.O_CREATE|os.O_APPEND, backupFilePerm)
	if err != nil {
		return fmt.Errorf("failed to open failed-writes ledger: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append to failed-writes ledger: %w", err)
	}
	return nil
}

func backupName(millis int64, userID, changeType string) string {
	return fmt.Sprintf("%s%d_%s_%s%s", backupPrefix, millis, sanitizeNamePart(userID), sanitizeNamePart(changeType), backupExtension)
}

// backupWrittenAt extracts the write timestamp embedded in an artifact name.
func backupWrittenAt(name string) (time.Time, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupExtension)
	parts := strings.SplitN(trimmed, "_", 2)
	if len(parts) == 0 {
		return time.Time{}, false
	}

	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).UTC(), true
}

// sanitizeNamePart keeps artifact names safe for any filesystem.
func sanitizeNamePart(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
