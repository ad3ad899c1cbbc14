package registry

import (
	"sort"
	"time"

	"dicehall/backend/internal/apierr"
	"dicehall/backend/internal/dicegame"
	"dicehall/backend/internal/model"
)

// Participant state actions accepted by UpdateParticipantState (§4.7).
const (
	ActionSit          = "sit"
	ActionStand        = "stand"
	ActionReady        = "ready"
	ActionUnready      = "unready"
	ActionToggleReady  = "toggle_ready"
)

// UpdateParticipantState applies a sit/stand/ready transition and
// reports whether it caused a new round to start, so the Realtime Bus
// knows to broadcast turn_start in addition to session_state.
func (r *Registry) UpdateParticipantState(sessionID, playerID, action string, now time.Time) (*model.Session, bool, error) {
	var turnStarted bool
	var clone *model.Session
	err := r.WithSession(sessionID, func(s *model.Session) error {
		p, ok := s.Participants[playerID]
		if !ok {
			return apierr.Client(404, apierr.CodeRoomNotFound, "not a participant")
		}
		if r.lifecycle.IsGameInProgress(s) {
			return apierr.Client(409, "game_in_progress", "cannot change seat state mid-round")
		}

		switch action {
		case ActionSit:
			p.IsSeated = true
		case ActionStand:
			p.IsSeated = false
			p.IsReady = false
		case ActionReady:
			p.IsReady = true
		case ActionUnready:
			p.IsReady = false
		case ActionToggleReady:
			p.IsReady = !p.IsReady
		default:
			return apierr.Client(400, "invalid_action", "unknown participant action")
		}
		s.LastActivityAt = now
		r.lifecycle.MarkPostGamePlayerAction(s, now)

		if allHumansReady(s) {
			order := seatedOrder(s)
			dicegame.EnsureSessionTurnState(s, r.cfg.turnTimeoutMsFor(s.GameDifficulty), now)
			dicegame.StartRound(s.TurnState, order, now)
			turnStarted = true
		}
		clone = cloneForRead(s)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return clone, turnStarted, nil
}

// allHumansReady reports whether every seated human participant is
// ready and at least one human is seated (§4.7's turn-start gate).
func allHumansReady(s *model.Session) bool {
	humans := 0
	for _, p := range s.Participants {
		if p.IsBot || !p.IsSeated {
			continue
		}
		humans++
		if !p.IsReady {
			return false
		}
	}
	return humans > 0
}

func seatedOrder(s *model.Session) []string {
	ids := make([]string, 0, len(s.Participants))
	for id, p := range s.Participants {
		if p.IsSeated {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
