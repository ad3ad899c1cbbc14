// Package lifecycle implements the Session Lifecycle Engine (C6):
// in-progress detection, winner-round completion, post-game
// auto-restart scheduling, and the reset that seats a session for its
// next game. Grounded on the teacher's internal/handlers/game.go
// NextHandHandler ready-up/auto-restart gate and game_finalize.go's
// idempotent finalize, generalized from cribbage hands to dice rounds.
package lifecycle

import (
	"sort"
	"time"

	"dicehall/backend/internal/dicegame"
	"dicehall/backend/internal/model"
)

const (
	// DefaultAutoStartDelay is the default nextGameStartsAt offset once
	// a round completes, overridden by MULTIPLAYER_NEXT_GAME_DELAY_MS.
	DefaultAutoStartDelay = 8 * time.Second
	// postGameGuard is the §7 "never evict during an active turn"
	// margin: postGameIdleExpiresAt is always at least nextGameStartsAt
	// plus this much.
	postGameGuard = 1 * time.Second
)

// Engine holds the configured delays; it carries no session state of
// its own (the Session Registry owns that), per the "explicit
// capability struct" design note.
type Engine struct {
	autoStartDelay     time.Duration
	inactivityTimeout  time.Duration
}

func New(autoStartDelay, inactivityTimeout time.Duration) *Engine {
	if autoStartDelay <= 0 {
		autoStartDelay = DefaultAutoStartDelay
	}
	if inactivityTimeout <= 0 {
		inactivityTimeout = 60 * time.Second
	}
	return &Engine{autoStartDelay: autoStartDelay, inactivityTimeout: inactivityTimeout}
}

// IsGameInProgress implements §4.6's definition.
func (e *Engine) IsGameInProgress(s *model.Session) bool {
	turn := s.TurnState
	if turn == nil {
		return false
	}
	if turn.Phase != model.PhaseAwaitRoll {
		return true
	}
	if turn.Round > 1 || turn.TurnNumber > 1 {
		return true
	}
	for _, p := range s.Participants {
		if !p.IsSeated {
			continue
		}
		if p.Score > 0 || p.RemainingDice < model.DefaultDiceCount || p.IsComplete {
			return true
		}
	}
	return false
}

// ShouldQueueForNextGame mirrors IsGameInProgress per §4.6.
func (e *Engine) ShouldQueueForNextGame(s *model.Session) bool {
	return e.IsGameInProgress(s)
}

// AreCurrentGameParticipantsComplete implements §4.6's fallback rule:
// with no active participant, fall back to "any queued for next".
func (e *Engine) AreCurrentGameParticipantsComplete(s *model.Session) bool {
	active := 0
	for _, p := range s.Participants {
		if !p.IsSeated {
			continue
		}
		active++
		if !p.IsComplete {
			return false
		}
	}
	if active > 0 {
		return true
	}
	for _, p := range s.Participants {
		if p.QueuedForNextGame {
			return true
		}
	}
	return false
}

// CompleteSessionRoundWithWinner implements §4.6/§8's winner-round
// invariant: the winner and every other still-active participant end
// the round complete, with strictly monotonically increasing
// completedAt timestamps (winner first).
func (e *Engine) CompleteSessionRoundWithWinner(s *model.Session, winnerID string, t time.Time) {
	winner, ok := s.Participants[winnerID]
	if !ok {
		return
	}
	stamp := t
	markComplete(winner, stamp)

	others := make([]string, 0, len(s.Participants))
	for id, p := range s.Participants {
		if id == winnerID {
			continue
		}
		if p.IsSeated && !p.IsComplete {
			others = append(others, id)
		}
	}
	sort.Strings(others)
	for _, id := range others {
		stamp = stamp.Add(time.Millisecond)
		markComplete(s.Participants[id], stamp)
	}

	stillActive := map[string]bool{}
	turn := s.TurnState
	if turn != nil {
		turn.ActiveTurnPlayerID = ""
		dicegame.PruneOrder(turn, stillActive)
		turn.Phase = model.PhaseAwaitRoll
		turn.LastRollSnapshot = nil
		turn.LastScoreSummary = nil
		turn.ActiveRollServerID = ""
		turn.UpdatedAt = t
	}
	s.SessionComplete = true
	e.ScheduleSessionPostGameLifecycle(s, t)
}

func markComplete(p *model.Participant, t time.Time) {
	p.RemainingDice = 0
	p.IsComplete = true
	completedAt := t
	p.CompletedAt = &completedAt
}

// ScheduleSessionPostGameLifecycle is idempotent per §4.6: it only
// fills in nextGameStartsAt if unset, and always advances
// postGameIdleExpiresAt forward (never backward) past the §7 guard.
func (e *Engine) ScheduleSessionPostGameLifecycle(s *model.Session, t time.Time) {
	if s.NextGameStartsAt == nil {
		starts := t.Add(e.autoStartDelay)
		s.NextGameStartsAt = &starts
	}
	activity := t
	s.PostGameActivityAt = &activity

	candidate := t.Add(e.inactivityTimeout)
	guard := s.NextGameStartsAt.Add(postGameGuard)
	if guard.After(candidate) {
		candidate = guard
	}
	if s.PostGameIdleExpiresAt == nil || candidate.After(*s.PostGameIdleExpiresAt) {
		s.PostGameIdleExpiresAt = &candidate
	}
}

// MarkPostGamePlayerAction defers idle eviction while a client is
// still interacting in the post-game lobby, per §4.6 — a no-op before
// the round has actually completed (NextGameStartsAt unset).
func (e *Engine) MarkPostGamePlayerAction(s *model.Session, t time.Time) {
	if s.NextGameStartsAt == nil {
		return
	}
	activity := t
	s.PostGameActivityAt = &activity
	candidate := t.Add(e.inactivityTimeout)
	guard := s.NextGameStartsAt.Add(postGameGuard)
	if guard.After(candidate) {
		candidate = guard
	}
	if s.PostGameIdleExpiresAt == nil || candidate.After(*s.PostGameIdleExpiresAt) {
		s.PostGameIdleExpiresAt = &candidate
	}
}

// ResetSessionForNextGame re-seats every still-present participant for
// a fresh round per §4.6: scores/dice reset, bots auto-ready, post-game
// fields wiped, and a brand new TurnState installed.
func (e *Engine) ResetSessionForNextGame(s *model.Session, t time.Time) {
	for _, p := range s.Participants {
		p.Score = 0
		p.RemainingDice = model.DefaultDiceCount
		p.IsComplete = false
		p.CompletedAt = nil
		p.QueuedForNextGame = false
		p.TurnTimeoutRound = nil
		p.TurnTimeoutCount = 0
		if p.IsBot {
			p.IsReady = true
		} else {
			p.IsReady = false
		}
	}
	s.NextGameStartsAt = nil
	s.PostGameActivityAt = nil
	s.PostGameIdleExpiresAt = nil
	s.SessionComplete = false

	timeoutMs := s.TurnState.TurnTimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = int64(30 * time.Second / time.Millisecond)
	}
	s.TurnState = dicegame.NewTurnState(timeoutMs, t)

	started := t
	s.GameStartedAt = &started
	s.LastActivityAt = t
}
