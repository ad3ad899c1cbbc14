// Package turntimeout implements the Turn Timeout Engine (C5): what
// happens when a player's turnExpiresAt deadline fires before they
// send turn_end. Grounded on the teacher's internal/game/cribbage.go
// stage/version mutation idiom (explicit state fields, in-place
// mutate-then-return) and internal/handlers/game_logic.go's ApplyMove
// CAS-retry shape, generalized to dice turns.
package turntimeout

import (
	"fmt"
	"time"

	"dicehall/backend/internal/dicegame"
	"dicehall/backend/internal/model"
)

const (
	// DefaultStandStrikeLimit is timeoutStandStrikeLimit from §4.5.
	DefaultStandStrikeLimit = 2

	ReasonStand         = "turn_timeout_stand"
	ReasonAutoScoreStand = "turn_timeout_auto_score_stand"

	StageCompletedRound = "completed_round"
	StageAdvancedTurn   = "advanced_turn"
)

// LifecycleOps is the one-way dependency edge onto the Session
// Lifecycle Engine (C6), per §9's cyclic-reference design note: the
// timeout engine calls into lifecycle to complete a round, but
// lifecycle never imports this package back.
type LifecycleOps interface {
	CompleteSessionRoundWithWinner(s *model.Session, winnerID string, t time.Time)
}

// Engine is constructed with its required lifecycle dependency; a nil
// ops fails construction rather than first use, per §9's "missing
// required fields fail construction" realization.
type Engine struct {
	ops              LifecycleOps
	standStrikeLimit int
}

func New(ops LifecycleOps, standStrikeLimit int) (*Engine, error) {
	if ops == nil {
		return nil, fmt.Errorf("turntimeout: LifecycleOps is required")
	}
	if standStrikeLimit <= 0 {
		standStrikeLimit = DefaultStandStrikeLimit
	}
	return &Engine{ops: ops, standStrikeLimit: standStrikeLimit}, nil
}

// Result reports what the timeout caused, so the Realtime Bus can
// synthesize the right broadcast frames (§4.5 return shape).
type Result struct {
	Stage               string
	TimeoutReason        string
	TimeoutScoreAction   *model.TurnScoreSummary
	ForcedObserverStand  bool
	PrevRound            int
	PrevTurnNumber       int
	NewActivePlayerID    string
}

// ProcessTimeout runs the §4.5 state machine for one player's expired
// turn deadline.
func (e *Engine) ProcessTimeout(s *model.Session, timedOutPlayerID string, now time.Time) (Result, error) {
	turn := s.TurnState
	if turn == nil {
		return Result{}, fmt.Errorf("turntimeout: session %s has no turn state", s.SessionID)
	}
	player, ok := s.Participants[timedOutPlayerID]
	if !ok {
		return Result{}, fmt.Errorf("turntimeout: player %s not in session %s", timedOutPlayerID, s.SessionID)
	}

	result := Result{PrevRound: turn.Round, PrevTurnNumber: turn.TurnNumber}
	completed := false

	// Step 1: if a score was pending on the active roll, finalize it
	// rather than discarding the player's in-flight choice.
	if turn.Phase == model.PhaseAwaitScore && turn.LastScoreSummary != nil &&
		turn.LastScoreSummary.RollServerID == turn.ActiveRollServerID {
		summary := *turn.LastScoreSummary
		player.Score += summary.Points
		player.RemainingDice -= len(summary.SelectedDiceIDs)
		if player.RemainingDice <= 0 {
			player.RemainingDice = 0
			player.IsComplete = true
		}
		summary.ProjectedTotalScore = player.Score
		summary.RemainingDice = player.RemainingDice
		summary.IsComplete = player.IsComplete
		summary.UpdatedAt = now
		dicegame.ApplyScore(turn, summary, now)
		result.TimeoutScoreAction = &summary

		if player.IsComplete {
			e.ops.CompleteSessionRoundWithWinner(s, timedOutPlayerID, now)
			completed = true
		}
	}

	// Step 2: record a timeout strike on the current round's scope.
	if player.TurnTimeoutRound == nil || *player.TurnTimeoutRound != turn.Round {
		round := turn.Round
		player.TurnTimeoutRound = &round
		player.TurnTimeoutCount = 1
	} else {
		player.TurnTimeoutCount++
	}

	forceStand := !completed && player.TurnTimeoutCount >= e.standStrikeLimit
	if forceStand {
		player.IsSeated = false
		if result.TimeoutScoreAction != nil {
			result.TimeoutReason = ReasonAutoScoreStand
		} else {
			result.TimeoutReason = ReasonStand
		}
		result.ForcedObserverStand = true
	}

	if completed {
		result.Stage = StageCompletedRound
		return result, nil
	}

	// Step 3/4: force the phase to ready_to_end if it isn't already,
	// then advance the turn — computing the next active player before
	// pruning so a solo-remaining stand doesn't strand the pointer.
	next := dicegame.NextActivePlayer(turn.Order, turn.ActiveTurnPlayerID)
	wrapped := len(turn.Order) > 0 && next == turn.Order[0]

	if forceStand {
		stillActive := make(map[string]bool, len(turn.Order))
		for _, id := range turn.Order {
			if id != timedOutPlayerID {
				stillActive[id] = true
			}
		}
		dicegame.PruneOrder(turn, stillActive)
		if !stillActive[next] {
			if len(turn.Order) > 0 {
				next = turn.Order[0]
			} else {
				next = ""
			}
		}
	}

	turn.ActiveTurnPlayerID = next
	if wrapped && !forceStand {
		turn.Round++
	}
	turn.TurnNumber++
	turn.Phase = model.PhaseAwaitRoll
	turn.ActiveRollServerID = ""
	turn.LastRollSnapshot = nil
	turn.LastScoreSummary = nil
	if turn.TurnTimeoutMs > 0 {
		deadline := now.Add(time.Duration(turn.TurnTimeoutMs) * time.Millisecond)
		turn.TurnExpiresAt = &deadline
	}
	turn.UpdatedAt = now

	result.Stage = StageAdvancedTurn
	result.NewActivePlayerID = next
	return result, nil
}
