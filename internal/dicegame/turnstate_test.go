package dicegame

import (
	"testing"
	"time"

	"dicehall/backend/internal/model"
)

func TestNewTurnStateDefaults(t *testing.T) {
	now := time.Now()
	turn := NewTurnState(5000, now)
	if turn.Phase != model.PhaseAwaitRoll {
		t.Fatalf("expected await_roll phase, got %q", turn.Phase)
	}
	if turn.Round != 1 || turn.TurnNumber != 1 {
		t.Fatalf("expected round 1 turn 1, got round=%d turn=%d", turn.Round, turn.TurnNumber)
	}
	if turn.Order != nil {
		t.Fatalf("expected nil order before StartRound, got %+v", turn.Order)
	}
}

func TestEnsureSessionTurnStateInstallsOnce(t *testing.T) {
	now := time.Now()
	s := &model.Session{}
	EnsureSessionTurnState(s, 5000, now)
	first := s.TurnState
	EnsureSessionTurnState(s, 9000, now.Add(time.Second))
	if s.TurnState != first {
		t.Fatalf("expected EnsureSessionTurnState to be a no-op once a turn state exists")
	}
}

func TestStartRoundActivatesFirstPlayer(t *testing.T) {
	now := time.Now()
	turn := NewTurnState(1000, now)
	StartRound(turn, []string{"p1", "p2", "p3"}, now)
	if turn.ActiveTurnPlayerID != "p1" {
		t.Fatalf("expected p1 active, got %q", turn.ActiveTurnPlayerID)
	}
	if turn.TurnExpiresAt == nil || !turn.TurnExpiresAt.After(now) {
		t.Fatalf("expected a future turnExpiresAt")
	}
}

func TestStartRoundEmptyOrderLeavesNoActivePlayer(t *testing.T) {
	now := time.Now()
	turn := NewTurnState(1000, now)
	StartRound(turn, nil, now)
	if turn.ActiveTurnPlayerID != "" {
		t.Fatalf("expected no active player with an empty order, got %q", turn.ActiveTurnPlayerID)
	}
}

func TestApplyRollMovesToAwaitScore(t *testing.T) {
	now := time.Now()
	turn := NewTurnState(1000, now)
	ApplyRoll(turn, model.RollSnapshot{ServerRollID: "roll-1"}, now)
	if turn.Phase != model.PhaseAwaitScore {
		t.Fatalf("expected await_score phase, got %q", turn.Phase)
	}
	if turn.ActiveRollServerID != "roll-1" {
		t.Fatalf("expected active roll id set, got %q", turn.ActiveRollServerID)
	}
}

func TestApplyScoreMovesToReadyToEnd(t *testing.T) {
	now := time.Now()
	turn := NewTurnState(1000, now)
	ApplyScore(turn, model.TurnScoreSummary{Points: 10}, now)
	if turn.Phase != model.PhaseReadyToEnd {
		t.Fatalf("expected ready_to_end phase, got %q", turn.Phase)
	}
}

func TestNextActivePlayerWrapsAround(t *testing.T) {
	order := []string{"p1", "p2", "p3"}
	if got := NextActivePlayer(order, "p3"); got != "p1" {
		t.Fatalf("expected wraparound to p1, got %q", got)
	}
	if got := NextActivePlayer(order, "p1"); got != "p2" {
		t.Fatalf("expected p2, got %q", got)
	}
}

func TestNextActivePlayerEmptyOrder(t *testing.T) {
	if got := NextActivePlayer(nil, "p1"); got != "" {
		t.Fatalf("expected empty string for an empty order, got %q", got)
	}
}

func TestNextActivePlayerUnknownCurrentDefaultsToFirst(t *testing.T) {
	order := []string{"p1", "p2"}
	if got := NextActivePlayer(order, "ghost"); got != "p1" {
		t.Fatalf("expected fallback to the first entry, got %q", got)
	}
}

func TestAdvanceTurnBumpsRoundOnWrap(t *testing.T) {
	now := time.Now()
	turn := NewTurnState(1000, now)
	StartRound(turn, []string{"p1", "p2"}, now)
	turn.ActiveTurnPlayerID = "p2"

	AdvanceTurn(turn, now.Add(time.Second))
	if turn.ActiveTurnPlayerID != "p1" {
		t.Fatalf("expected wraparound back to p1, got %q", turn.ActiveTurnPlayerID)
	}
	if turn.Round != 2 {
		t.Fatalf("expected round bumped to 2, got %d", turn.Round)
	}
	if turn.Phase != model.PhaseAwaitRoll {
		t.Fatalf("expected phase reset to await_roll, got %q", turn.Phase)
	}
}

func TestAdvanceTurnDoesNotBumpRoundMidOrder(t *testing.T) {
	now := time.Now()
	turn := NewTurnState(1000, now)
	StartRound(turn, []string{"p1", "p2", "p3"}, now)

	AdvanceTurn(turn, now.Add(time.Second))
	if turn.Round != 1 {
		t.Fatalf("expected round to stay at 1 mid-order, got %d", turn.Round)
	}
	if turn.ActiveTurnPlayerID != "p2" {
		t.Fatalf("expected p2 active, got %q", turn.ActiveTurnPlayerID)
	}
}

func TestPruneOrderKeepsRelativeOrderOfSurvivors(t *testing.T) {
	turn := &model.TurnState{Order: []string{"p1", "p2", "p3", "p4"}}
	PruneOrder(turn, map[string]bool{"p1": true, "p3": true})
	if len(turn.Order) != 2 || turn.Order[0] != "p1" || turn.Order[1] != "p3" {
		t.Fatalf("unexpected pruned order: %+v", turn.Order)
	}
}
