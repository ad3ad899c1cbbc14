package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// remoteBatchSize bounds how many Redis pipeline ops a single Save diff
// performs per section, per §4.1's "bounded batches of at most B=400 ops".
const remoteBatchSize = 400

// RemoteDocumentAdapter backs the store with Redis, one hash per
// section named "<prefix>_<section>", each hash field a record id and
// each value the record's JSON. This realizes the "remote document
// database" adapter from §4.1/§6.3 using the pack's only remote
// document-shaped store (go-redis), per the Redis-pipeline-batching
// idiom in MOHCentral-opm-stats-api's internal/worker/pool.go.
type RemoteDocumentAdapter struct {
	client *redis.Client
	prefix string
	logger *zap.SugaredLogger
}

func NewRemoteDocumentAdapter(client *redis.Client, prefix string, logger *zap.Logger) *RemoteDocumentAdapter {
	return &RemoteDocumentAdapter{client: client, prefix: prefix, logger: logger.Sugar().With("adapter", "remote")}
}

func (a *RemoteDocumentAdapter) Name() string { return "remote" }

func (a *RemoteDocumentAdapter) key(section string) string {
	return fmt.Sprintf("%s_%s", a.prefix, section)
}

func (a *RemoteDocumentAdapter) Load(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot()
	for _, section := range AllSections {
		fields, err := a.client.HGetAll(ctx, a.key(section)).Result()
		if err != nil && err != redis.Nil {
			a.logger.Warnw("section load failed, seeding defaults for section", "section", section, "error", err)
			continue
		}
		for id, raw := range fields {
			snap.Sections[section][id] = json.RawMessage(raw)
		}
	}
	return snap, nil
}

// Save compares next against the ids currently stored in Redis (read
// with HKEYS per section): every record of next is written with HSET,
// except that sanitize drops any record that serializes to JSON null
// (an "undefined" field per §4.1), and ids absent from next are HDEL'd.
func (a *RemoteDocumentAdapter) Save(ctx context.Context, next *Snapshot) error {
	for _, section := range AllSections {
		if err := a.saveSection(ctx, section, next.Sections[section]); err != nil {
			return fmt.Errorf("remote adapter: save section %s: %w", section, err)
		}
	}
	return nil
}

func (a *RemoteDocumentAdapter) saveSection(ctx context.Context, section string, records map[string]json.RawMessage) error {
	existing, err := a.client.HKeys(ctx, a.key(section)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	keep := make(map[string]bool, len(records))
	for id := range records {
		keep[id] = true
	}

	var toDelete []string
	for _, id := range existing {
		if !keep[id] {
			toDelete = append(toDelete, id)
		}
	}

	ops := 0
	pipe := a.client.Pipeline()
	flush := func() error {
		if ops == 0 {
			return nil
		}
		_, err := pipe.Exec(ctx)
		ops = 0
		pipe = a.client.Pipeline()
		return err
	}

	for id, raw := range records {
		if sanitizeDropsRecord(raw) {
			continue
		}
		pipe.HSet(ctx, a.key(section), id, string(raw))
		ops++
		if ops >= remoteBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	for _, id := range toDelete {
		pipe.HDel(ctx, a.key(section), id)
		ops++
		if ops >= remoteBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func sanitizeDropsRecord(raw json.RawMessage) bool {
	trimmed := make([]byte, 0, len(raw))
	for _, b := range raw {
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		trimmed = append(trimmed, b)
	}
	return len(trimmed) == 0 || string(trimmed) == "null"
}
