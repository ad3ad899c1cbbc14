package registry

import (
	"context"
	"sort"
	"time"

	"dicehall/backend/internal/dicegame"
	"dicehall/backend/internal/model"
)

// SeedDefaultRooms guarantees at least one public_default room exists
// per difficulty (§4.7/§7): these rooms are never garbage collected,
// only drained and re-seated.
func (r *Registry) SeedDefaultRooms(now time.Time) {
	for _, d := range model.AllDifficulties {
		if r.hasPublicDefault(d) {
			continue
		}
		s := &model.Session{
			SessionID:      newID("sess"),
			RoomCode:       r.newRoomCode(),
			RoomType:       model.RoomTypePublicDefault,
			IsPublic:       true,
			GameDifficulty: d,
			MaxHumanCount:  r.cfg.maxHumanCount(),
			CreatedAt:      now,
			LastActivityAt: now,
			Participants:   make(map[string]*model.Participant),
			Bans:           make(map[string]bool),
			ChatConduct:    model.NewConductState(),
		}
		s.TurnState = dicegame.NewTurnState(r.cfg.turnTimeoutMsFor(d), now)

		r.mu.Lock()
		r.sessions[s.SessionID] = &entry{session: s}
		r.roomCodes[s.RoomCode] = s.SessionID
		r.mu.Unlock()
		r.persist(s)
		r.logger.Infow("seeded public default room", "sessionId", s.SessionID, "difficulty", d)
	}
}

func (r *Registry) hasPublicDefault(d model.Difficulty) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.sessions {
		if e.session.RoomType == model.RoomTypePublicDefault && e.session.GameDifficulty == d {
			return true
		}
	}
	return false
}

// ensureOverflowRoom checks whether a joinable public_overflow room
// already exists for the given difficulty and, if not, creates one.
// Called whenever a join hits a full public_default room (§4.7: "when
// a public_default is full, create public_overflow"); the next
// ListRooms call then surfaces it as a joinable room.
func (r *Registry) ensureOverflowRoom(d model.Difficulty, now time.Time) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		s := e.session
		joinable := s.RoomType == model.RoomTypePublicOverflow && s.GameDifficulty == d && s.HumanCount() < s.MaxHumanCount
		e.mu.Unlock()
		if joinable {
			return
		}
	}
	r.createOverflowRoom(d, now)
}

// createOverflowRoom spins up a public_overflow room for the given
// difficulty once the matching public_default room is full (§4.7).
func (r *Registry) createOverflowRoom(d model.Difficulty, now time.Time) *model.Session {
	s := &model.Session{
		SessionID:      newID("sess"),
		RoomCode:       r.newRoomCode(),
		RoomType:       model.RoomTypePublicOverflow,
		IsPublic:       true,
		GameDifficulty: d,
		MaxHumanCount:  r.cfg.maxHumanCount(),
		CreatedAt:      now,
		LastActivityAt: now,
		Participants:   make(map[string]*model.Participant),
		Bans:           make(map[string]bool),
		ChatConduct:    model.NewConductState(),
	}
	s.TurnState = dicegame.NewTurnState(r.cfg.turnTimeoutMsFor(d), now)

	r.mu.Lock()
	r.sessions[s.SessionID] = &entry{session: s}
	r.roomCodes[s.RoomCode] = s.SessionID
	r.mu.Unlock()
	r.persist(s)
	r.logger.Infow("created overflow room", "sessionId", s.SessionID, "difficulty", d)
	return s
}

// Run starts the periodic eviction/auto-restart scan (§4.7/§7); it
// blocks until ctx is cancelled, so callers invoke it as a goroutine.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.scanOnce(now)
		}
	}
}

func (r *Registry) scanOnce(now time.Time) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		r.scanEntry(e, now)
	}
}

func (r *Registry) scanEntry(e *entry, now time.Time) {
	e.mu.Lock()
	s := e.session
	sessionID := s.SessionID

	// Auto-restart: nextGameStartsAt has passed.
	if s.NextGameStartsAt != nil && !now.Before(*s.NextGameStartsAt) {
		r.autoRestartLocked(s, now)
		e.mu.Unlock()
		r.persist(s)
		if r.onReset != nil {
			r.onReset(cloneForRead(s))
		}
		return
	}

	// Idle eviction: postGameIdleExpiresAt has passed (post-game drain).
	expired := s.RoomType != model.RoomTypePublicDefault &&
		s.PostGameIdleExpiresAt != nil && !now.Before(*s.PostGameIdleExpiresAt) && len(activeHumans(s)) == 0
	// Public overflow rooms with no participants left past their empty TTL.
	emptyOverflow := s.RoomType == model.RoomTypePublicOverflow && len(s.Participants) == 0 &&
		now.Sub(s.LastActivityAt) >= r.cfg.PublicRoomOverflowEmptyTTL
	// General session idle TTL for private rooms.
	idleOut := s.RoomType == model.RoomTypePrivate && r.cfg.SessionIdleTTL > 0 &&
		now.Sub(s.LastActivityAt) >= r.cfg.SessionIdleTTL
	e.mu.Unlock()

	if expired || emptyOverflow || idleOut {
		r.removeSession(sessionID)
		r.logger.Infow("evicted session", "sessionId", sessionID, "reason", evictionReason(expired, emptyOverflow, idleOut))
	}
}

func evictionReason(expired, emptyOverflow, idleOut bool) string {
	switch {
	case expired:
		return "idle_drain"
	case emptyOverflow:
		return "empty_overflow_ttl"
	default:
		_ = idleOut
		return "private_idle_ttl"
	}
}

func activeHumans(s *model.Session) []string {
	ids := make([]string, 0, len(s.Participants))
	for id, p := range s.Participants {
		if !p.IsBot && p.IsSeated {
			ids = append(ids, id)
		}
	}
	return ids
}

// autoRestartLocked resets a session for its next game, seating only
// the participants who queued (bots always re-seat), per the glossary
// definition of "queued for next game". Caller holds e.mu.
func (r *Registry) autoRestartLocked(s *model.Session, now time.Time) {
	queued := map[string]bool{}
	for id, p := range s.Participants {
		if p.QueuedForNextGame || p.IsBot {
			queued[id] = true
		}
	}
	r.lifecycle.ResetSessionForNextGame(s, now)
	order := make([]string, 0, len(queued))
	for id := range s.Participants {
		if queued[id] {
			s.Participants[id].IsSeated = true
			order = append(order, id)
		} else {
			s.Participants[id].IsSeated = false
		}
	}
	sort.Strings(order)
	dicegame.StartRound(s.TurnState, order, now)
}
