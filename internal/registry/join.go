package registry

import (
	"sort"
	"time"

	"dicehall/backend/internal/apierr"
	"dicehall/backend/internal/authtoken"
	"dicehall/backend/internal/model"
)

// JoinBySessionId seats playerID into an existing session by id
// (§4.7). Rejects banned players, full rooms of any type, and sessions
// that no longer exist; a full public_default room also gets a
// joinable public_overflow room ensured for its difficulty.
func (r *Registry) JoinBySessionId(sessionID, playerID, displayName string, now time.Time) (*model.Session, authtoken.Bundle, error) {
	var bundle authtoken.Bundle
	var clone *model.Session
	var overflowDifficulty model.Difficulty
	var needsOverflow bool
	err := r.WithSession(sessionID, func(s *model.Session) error {
		if s.Bans[playerID] {
			return apierr.Client(403, apierr.CodeRoomBanned, "banned from this session")
		}
		if existing, ok := s.Participants[playerID]; ok {
			existing.IsSeated = true
			s.LastActivityAt = now
			clone = cloneForRead(s)
			return nil
		}
		if s.HumanCount() >= s.MaxHumanCount {
			if s.RoomType == model.RoomTypePublicDefault {
				needsOverflow = true
				overflowDifficulty = s.GameDifficulty
			}
			return apierr.Client(409, apierr.CodeRoomFull, "room is full")
		}
		seat(s, playerID, displayName, false, now)
		s.LastActivityAt = now
		clone = cloneForRead(s)
		return nil
	})
	if needsOverflow {
		r.ensureOverflowRoom(overflowDifficulty, now)
	}
	if err != nil {
		return nil, authtoken.Bundle{}, err
	}
	bundle, err = r.tokens.IssueBundle(playerID, sessionID, now)
	if err != nil {
		return nil, authtoken.Bundle{}, err
	}
	r.mu.Lock()
	r.byPlayer[playerID] = sessionID
	r.mu.Unlock()
	return clone, bundle, nil
}

// JoinRoomByCode resolves a room code to a session and joins it, with
// a bounded retry against the transient window where a public-overflow
// room is being concurrently created or evicted (§4.7: 3 attempts,
// 150ms apart).
func (r *Registry) JoinRoomByCode(roomCode, playerID, displayName string, now time.Time) (*model.Session, authtoken.Bundle, error) {
	const maxAttempts = 3
	const retryDelay = 150 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		sessionID, ok := r.sessionIDForCode(roomCode)
		if !ok {
			lastErr = apierr.Client(404, apierr.CodeRoomNotFound, "room code not found")
			if attempt < maxAttempts-1 {
				time.Sleep(retryDelay)
				continue
			}
			return nil, authtoken.Bundle{}, lastErr
		}
		s, bundle, err := r.JoinBySessionId(sessionID, playerID, displayName, now)
		if err == nil {
			return s, bundle, nil
		}
		// §7: retry the concurrent-GC race window where a lookup miss
		// surfaces as session_expired/room_not_found, whether or not
		// the caller tagged it KindTransient.
		apiErr, isAPIErr := apierr.As(err)
		retryable := isAPIErr && (apiErr.Kind == apierr.KindTransient ||
			apiErr.Code == apierr.CodeSessionExpired || apiErr.Code == apierr.CodeRoomNotFound)
		if !retryable {
			return nil, authtoken.Bundle{}, err
		}
		lastErr = err
		if attempt < maxAttempts-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, authtoken.Bundle{}, lastErr
}

// RoomSummary is the public-facing row for ListRooms (§4.7/§6.1).
type RoomSummary struct {
	SessionID      string          `json:"sessionId"`
	RoomCode       string          `json:"roomCode"`
	RoomType       model.RoomType  `json:"roomType"`
	GameDifficulty model.Difficulty `json:"gameDifficulty"`
	HumanCount     int             `json:"humanCount"`
	MaxHumanCount  int             `json:"maxHumanCount"`
	InProgress     bool            `json:"inProgress"`
}

// ListRooms returns every public (default or overflow) room, full or
// not, sorted by room code for stable pagination.
func (r *Registry) ListRooms() []RoomSummary {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	rooms := make([]RoomSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		s := e.session
		if s.IsPublic {
			rooms = append(rooms, RoomSummary{
				SessionID:      s.SessionID,
				RoomCode:       s.RoomCode,
				RoomType:       s.RoomType,
				GameDifficulty: s.GameDifficulty,
				HumanCount:     s.HumanCount(),
				MaxHumanCount:  s.MaxHumanCount,
				InProgress:     s.TurnState != nil && s.TurnState.Order != nil,
			})
		}
		e.mu.Unlock()
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomCode < rooms[j].RoomCode })
	return rooms
}

// AdminListRooms returns every live session, public or private, for the
// admin overview (§4.10) — unlike ListRooms it includes private
// rooms.
func (r *Registry) AdminListRooms() []RoomSummary {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	rooms := make([]RoomSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		s := e.session
		rooms = append(rooms, RoomSummary{
			SessionID:      s.SessionID,
			RoomCode:       s.RoomCode,
			RoomType:       s.RoomType,
			GameDifficulty: s.GameDifficulty,
			HumanCount:     s.HumanCount(),
			MaxHumanCount:  s.MaxHumanCount,
			InProgress:     s.TurnState != nil && s.TurnState.Order != nil,
		})
		e.mu.Unlock()
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomCode < rooms[j].RoomCode })
	return rooms
}
