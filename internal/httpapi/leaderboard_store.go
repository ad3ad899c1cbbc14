package httpapi

import (
	"context"
	"sort"

	"dicehall/backend/internal/store"
)

// StoreLeaderboardSink is the default LeaderboardSink: it keeps
// leaderboard rows in the store controller's leaderboardScores section
// rather than forwarding to a separate leaderboard service, the same
// "defer to the store until a dedicated backend exists" approach the
// store package already takes for player profiles and scores.
type StoreLeaderboardSink struct {
	store *store.Controller
}

func NewStoreLeaderboardSink(ctl *store.Controller) *StoreLeaderboardSink {
	return &StoreLeaderboardSink{store: ctl}
}

func (s *StoreLeaderboardSink) Submit(_ context.Context, entry LeaderboardEntry) error {
	s.store.Mutate(func(snap *store.Snapshot) {
		_ = snap.Put(store.SectionLeaderboardScores, entry.PlayerID, entry)
	})
	return nil
}

func (s *StoreLeaderboardSink) Top(_ context.Context, limit int) ([]LeaderboardEntry, error) {
	snap := s.store.Snapshot()
	ids := snap.IDs(store.SectionLeaderboardScores)
	entries := make([]LeaderboardEntry, 0, len(ids))
	for _, id := range ids {
		var e LeaderboardEntry
		if ok, err := snap.Get(store.SectionLeaderboardScores, id, &e); err == nil && ok {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
