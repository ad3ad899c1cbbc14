package dicegame

import (
	"time"

	"dicehall/backend/internal/model"
)

// NewTurnState builds a fresh turn state for a session about to start
// a game, per EnsureSessionTurnState's contract in §9 — order stays
// nil until every human participant is ready (see the registry's
// UpdateParticipantState).
func NewTurnState(timeoutMs int64, now time.Time) *model.TurnState {
	return &model.TurnState{
		Order:         nil,
		Phase:         model.PhaseAwaitRoll,
		Round:         1,
		TurnNumber:    1,
		TurnTimeoutMs: timeoutMs,
		UpdatedAt:     now,
	}
}

// EnsureSessionTurnState installs a fresh TurnState if the session
// doesn't have one yet, per §4.6's EnsureSessionTurnState contract.
func EnsureSessionTurnState(s *model.Session, timeoutMs int64, now time.Time) {
	if s.TurnState == nil {
		s.TurnState = NewTurnState(timeoutMs, now)
	}
}

// StartRound computes turn order from the given active participant
// ids and activates the first player, transitioning out of the
// order=nil "not yet started" state.
func StartRound(turn *model.TurnState, order []string, now time.Time) {
	turn.Order = order
	turn.Phase = model.PhaseAwaitRoll
	if len(order) > 0 {
		turn.ActiveTurnPlayerID = order[0]
	} else {
		turn.ActiveTurnPlayerID = ""
	}
	deadline := now.Add(time.Duration(turn.TurnTimeoutMs) * time.Millisecond)
	turn.TurnExpiresAt = &deadline
	turn.LastRollSnapshot = nil
	turn.LastScoreSummary = nil
	turn.ActiveRollServerID = ""
	turn.UpdatedAt = now
}

// ApplyRoll records a freshly computed roll as the turn's active roll
// and moves the phase to await_score.
func ApplyRoll(turn *model.TurnState, snapshot model.RollSnapshot, now time.Time) {
	turn.LastRollSnapshot = &snapshot
	turn.ActiveRollServerID = snapshot.ServerRollID
	turn.Phase = model.PhaseAwaitScore
	turn.UpdatedAt = now
}

// ApplyScore records a validated score summary and moves the phase to
// ready_to_end.
func ApplyScore(turn *model.TurnState, summary model.TurnScoreSummary, now time.Time) {
	turn.LastScoreSummary = &summary
	turn.Phase = model.PhaseReadyToEnd
	turn.UpdatedAt = now
}

// NextActivePlayer returns the player after current in order, wrapping
// around; returns "" if order is empty.
func NextActivePlayer(order []string, current string) string {
	if len(order) == 0 {
		return ""
	}
	for i, id := range order {
		if id == current {
			return order[(i+1)%len(order)]
		}
	}
	return order[0]
}

// AdvanceTurn moves to the next player in order, bumping turnNumber
// (and round, once the order wraps back to its first entry), clearing
// the roll/score snapshots and phase back to await_roll.
func AdvanceTurn(turn *model.TurnState, now time.Time) {
	next := NextActivePlayer(turn.Order, turn.ActiveTurnPlayerID)
	if len(turn.Order) > 0 && next == turn.Order[0] {
		turn.Round++
	}
	turn.ActiveTurnPlayerID = next
	turn.TurnNumber++
	turn.Phase = model.PhaseAwaitRoll
	turn.ActiveRollServerID = ""
	turn.LastRollSnapshot = nil
	turn.LastScoreSummary = nil
	deadline := now.Add(time.Duration(turn.TurnTimeoutMs) * time.Millisecond)
	turn.TurnExpiresAt = &deadline
	turn.UpdatedAt = now
}

// PruneOrder removes ids no longer active (left, stood, completed)
// from the turn order, keeping relative order of survivors.
func PruneOrder(turn *model.TurnState, stillActive map[string]bool) {
	next := make([]string, 0, len(turn.Order))
	for _, id := range turn.Order {
		if stillActive[id] {
			next = append(next, id)
		}
	}
	turn.Order = next
}
