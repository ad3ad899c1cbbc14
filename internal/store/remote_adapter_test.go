package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestRemoteAdapter(t *testing.T) (*RemoteDocumentAdapter, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRemoteDocumentAdapter(client, "dicehall-test", zap.NewNop()), client
}

func TestRemoteAdapterLoadEmptySeedsAllSections(t *testing.T) {
	a, _ := newTestRemoteAdapter(t)
	snap, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, section := range AllSections {
		if snap.Sections[section] == nil {
			t.Fatalf("expected section %s to be present", section)
		}
	}
}

func TestRemoteAdapterSaveThenLoadRoundTrips(t *testing.T) {
	a, _ := newTestRemoteAdapter(t)
	type record struct {
		Term string `json:"term"`
	}

	snap := NewSnapshot()
	if err := snap.Put(SectionModeration, "term:x", record{Term: "x"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.Save(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var rec record
	found, err := loaded.Get(SectionModeration, "term:x", &rec)
	if err != nil || !found {
		t.Fatalf("expected the saved record to round-trip, found=%v err=%v", found, err)
	}
	if rec.Term != "x" {
		t.Fatalf("expected term x, got %q", rec.Term)
	}
}

func TestRemoteAdapterSaveDeletesRemovedRecords(t *testing.T) {
	a, _ := newTestRemoteAdapter(t)
	type record struct {
		Term string `json:"term"`
	}

	snap := NewSnapshot()
	if err := snap.Put(SectionModeration, "term:x", record{Term: "x"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.Save(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	snap.Delete(SectionModeration, "term:x")
	if err := a.Save(context.Background(), snap); err != nil {
		t.Fatalf("save after delete: %v", err)
	}

	loaded, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found, _ := loaded.Get(SectionModeration, "term:x", &record{}); found {
		t.Fatalf("expected term:x to be deleted from the remote store")
	}
}

func TestRemoteAdapterSaveSkipsNullRecords(t *testing.T) {
	a, _ := newTestRemoteAdapter(t)
	snap := NewSnapshot()
	snap.Sections[SectionModeration]["term:null"] = []byte("null")

	if err := a.Save(context.Background(), snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, exists := loaded.Sections[SectionModeration]["term:null"]; exists {
		t.Fatalf("expected a record serializing to null to be dropped, not saved")
	}
}
