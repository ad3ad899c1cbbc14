package registry

import (
	"time"

	"dicehall/backend/internal/apierr"
	"dicehall/backend/internal/dicegame"
	"dicehall/backend/internal/model"
)

// Moderation actions accepted by Moderate (§4.7); host-only.
const (
	ModerateKick = "kick"
	ModerateBan  = "ban"
)

// Moderate lets the session host remove or ban a participant. Kicking
// or banning the active turn player advances the turn so the round
// isn't stuck waiting on a player who's gone.
func (r *Registry) Moderate(sessionID, requesterID, targetID, action string, now time.Time) error {
	err := r.WithSession(sessionID, func(s *model.Session) error {
		if s.HostPlayerID != requesterID {
			return apierr.Client(403, apierr.CodeNotHost, "only the host can moderate")
		}
		if targetID == requesterID {
			return apierr.Client(400, "invalid_target", "cannot moderate yourself")
		}
		if _, ok := s.Participants[targetID]; !ok {
			return apierr.Client(404, apierr.CodeRoomNotFound, "not a participant")
		}

		wasActive := s.TurnState != nil && s.TurnState.ActiveTurnPlayerID == targetID
		delete(s.Participants, targetID)
		if action == ModerateBan {
			s.Bans[targetID] = true
		}

		if s.TurnState != nil {
			nextUp := dicegame.NextActivePlayer(s.TurnState.Order, targetID)
			stillActive := map[string]bool{}
			for id, p := range s.Participants {
				if p.IsSeated && !p.IsComplete {
					stillActive[id] = true
				}
			}
			dicegame.PruneOrder(s.TurnState, stillActive)
			if wasActive {
				if !stillActive[nextUp] && len(s.TurnState.Order) > 0 {
					nextUp = s.TurnState.Order[0]
				}
				if len(s.TurnState.Order) == 0 {
					nextUp = ""
				}
				s.TurnState.ActiveTurnPlayerID = nextUp
				s.TurnState.Phase = model.PhaseAwaitRoll
				s.TurnState.ActiveRollServerID = ""
				s.TurnState.LastRollSnapshot = nil
				s.TurnState.LastScoreSummary = nil
				if s.TurnState.TurnTimeoutMs > 0 && nextUp != "" {
					deadline := now.Add(time.Duration(s.TurnState.TurnTimeoutMs) * time.Millisecond)
					s.TurnState.TurnExpiresAt = &deadline
				}
				s.TurnState.UpdatedAt = now
			}
		}
		if s.HostPlayerID == targetID {
			s.HostPlayerID = nextHost(s)
		}
		s.LastActivityAt = now
		return nil
	})
	if err != nil {
		return err
	}
	r.tokens.RevokeByPlayer(targetID, sessionID)
	r.mu.Lock()
	if r.byPlayer[targetID] == sessionID {
		delete(r.byPlayer, targetID)
	}
	r.mu.Unlock()
	return nil
}

// AdminRemoveParticipant removes a participant outside the host-only
// Moderate path, for the admin surface (§4.10): no host check, and the
// target is never banned, only removed.
func (r *Registry) AdminRemoveParticipant(sessionID, targetID string, now time.Time) error {
	err := r.WithSession(sessionID, func(s *model.Session) error {
		if _, ok := s.Participants[targetID]; !ok {
			return apierr.Client(404, apierr.CodeRoomNotFound, "not a participant")
		}
		wasActive := s.TurnState != nil && s.TurnState.ActiveTurnPlayerID == targetID
		delete(s.Participants, targetID)

		if s.TurnState != nil {
			nextUp := dicegame.NextActivePlayer(s.TurnState.Order, targetID)
			stillActive := map[string]bool{}
			for id, p := range s.Participants {
				if p.IsSeated && !p.IsComplete {
					stillActive[id] = true
				}
			}
			dicegame.PruneOrder(s.TurnState, stillActive)
			if wasActive {
				if !stillActive[nextUp] && len(s.TurnState.Order) > 0 {
					nextUp = s.TurnState.Order[0]
				}
				if len(s.TurnState.Order) == 0 {
					nextUp = ""
				}
				s.TurnState.ActiveTurnPlayerID = nextUp
				s.TurnState.Phase = model.PhaseAwaitRoll
				s.TurnState.ActiveRollServerID = ""
				s.TurnState.LastRollSnapshot = nil
				s.TurnState.LastScoreSummary = nil
				s.TurnState.UpdatedAt = now
			}
		}
		if s.HostPlayerID == targetID {
			s.HostPlayerID = nextHost(s)
		}
		s.LastActivityAt = now
		return nil
	})
	if err != nil {
		return err
	}
	r.tokens.RevokeByPlayer(targetID, sessionID)
	r.mu.Lock()
	if r.byPlayer[targetID] == sessionID {
		delete(r.byPlayer, targetID)
	}
	r.mu.Unlock()
	return nil
}

// AdminForceExpire evicts a session immediately, regardless of its
// idle/empty-overflow TTLs, for the admin surface's force-expire
// operation (§4.10).
func (r *Registry) AdminForceExpire(sessionID string) error {
	if _, ok := r.lookup(sessionID); !ok {
		return apierr.Client(404, apierr.CodeRoomNotFound, "session not found")
	}
	r.removeSession(sessionID)
	return nil
}
