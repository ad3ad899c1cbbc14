package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileAdapter persists the snapshot as one JSON document, written
// atomically (write-to-temp then rename), mirroring the teacher's
// embed.FS-seed + atomic-write idiom in internal/database/db.go —
// generalized here from a SQL migration runner to a single JSON blob.
type FileAdapter struct {
	Path   string
	Logger *zap.SugaredLogger
}

func NewFileAdapter(path string, logger *zap.Logger) *FileAdapter {
	return &FileAdapter{Path: path, Logger: logger.Sugar().With("adapter", "file")}
}

func (a *FileAdapter) Name() string { return "file" }

func (a *FileAdapter) Load(ctx context.Context) (*Snapshot, error) {
	raw, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			a.Logger.Infow("snapshot file absent, seeding defaults", "path", a.Path)
			return NewSnapshot(), nil
		}
		a.Logger.Warnw("snapshot file unreadable, seeding defaults", "path", a.Path, "error", err)
		return NewSnapshot(), nil
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		a.Logger.Warnw("snapshot file malformed, repairing with defaults", "path", a.Path, "error", err)
		return NewSnapshot(), nil
	}
	if snap.Sections == nil {
		return NewSnapshot(), nil
	}
	for _, name := range AllSections {
		if snap.Sections[name] == nil {
			snap.Sections[name] = make(map[string]json.RawMessage)
		}
	}
	return &snap, nil
}

func (a *FileAdapter) Save(ctx context.Context, snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tmp := a.Path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, a.Path)
}
