package turntimeout

import (
	"testing"
	"time"

	"dicehall/backend/internal/dicegame"
	"dicehall/backend/internal/model"
)

type fakeLifecycle struct {
	completedFor string
	completedAt  time.Time
	calls        int
}

func (f *fakeLifecycle) CompleteSessionRoundWithWinner(s *model.Session, winnerID string, t time.Time) {
	f.calls++
	f.completedFor = winnerID
	f.completedAt = t
}

func newTestSession(now time.Time, order ...string) *model.Session {
	turn := dicegame.NewTurnState(30000, now)
	dicegame.StartRound(turn, order, now)
	s := &model.Session{
		SessionID:    "sess-1",
		Participants: make(map[string]*model.Participant),
		TurnState:    turn,
	}
	for _, id := range order {
		s.Participants[id] = &model.Participant{
			PlayerID:      id,
			IsSeated:      true,
			RemainingDice: model.DefaultDiceCount,
		}
	}
	return s
}

func TestNewRejectsNilOps(t *testing.T) {
	if _, err := New(nil, 2); err == nil {
		t.Fatalf("expected an error when ops is nil")
	}
}

func TestNewDefaultsStandStrikeLimit(t *testing.T) {
	e, err := New(&fakeLifecycle{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.standStrikeLimit != DefaultStandStrikeLimit {
		t.Fatalf("expected default strike limit, got %d", e.standStrikeLimit)
	}
}

func TestProcessTimeoutAdvancesTurnOnFirstStrike(t *testing.T) {
	ops := &fakeLifecycle{}
	e, _ := New(ops, 2)
	now := time.Now()
	s := newTestSession(now, "p1", "p2")

	result, err := e.ProcessTimeout(s, "p1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stage != StageAdvancedTurn {
		t.Fatalf("expected advanced_turn stage, got %q", result.Stage)
	}
	if result.NewActivePlayerID != "p2" {
		t.Fatalf("expected p2 to become active, got %q", result.NewActivePlayerID)
	}
	if s.Participants["p1"].TurnTimeoutCount != 1 {
		t.Fatalf("expected one timeout strike recorded")
	}
	if ops.calls != 0 {
		t.Fatalf("expected no lifecycle completion on a non-final strike")
	}
}

func TestProcessTimeoutForcesStandAtStrikeLimit(t *testing.T) {
	ops := &fakeLifecycle{}
	e, _ := New(ops, 2)
	now := time.Now()
	s := newTestSession(now, "p1", "p2")
	round := 1
	s.Participants["p1"].TurnTimeoutRound = &round
	s.Participants["p1"].TurnTimeoutCount = 1

	result, err := e.ProcessTimeout(s, "p1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ForcedObserverStand {
		t.Fatalf("expected ForcedObserverStand at the strike limit")
	}
	if result.TimeoutReason != ReasonStand {
		t.Fatalf("expected stand reason, got %q", result.TimeoutReason)
	}
	if s.Participants["p1"].IsSeated {
		t.Fatalf("expected the timed-out player to be unseated")
	}
	if p1, ok := findInOrder(s.TurnState.Order, "p1"); ok {
		t.Fatalf("expected p1 pruned from turn order, found at %d", p1)
	}
}

func TestProcessTimeoutFinalizesPendingScoreAndCompletesRound(t *testing.T) {
	ops := &fakeLifecycle{}
	e, _ := New(ops, 5)
	now := time.Now()
	s := newTestSession(now, "p1", "p2")
	s.Participants["p1"].RemainingDice = 3

	snapshot := model.RollSnapshot{ServerRollID: "roll-1", RollIndex: 1, Dice: []model.Die{{DieID: "d1", Sides: 6, Value: 5}, {DieID: "d2", Sides: 6, Value: 5}, {DieID: "d3", Sides: 6, Value: 5}}}
	dicegame.ApplyRoll(s.TurnState, snapshot, now)
	// A pending score summary recorded while the phase is still await_score.
	s.TurnState.LastScoreSummary = &model.TurnScoreSummary{
		SelectedDiceIDs: []string{"d1", "d2", "d3"},
		Points:          50,
		RollServerID:    "roll-1",
	}

	result, err := e.ProcessTimeout(s, "p1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stage != StageCompletedRound {
		t.Fatalf("expected completed_round stage, got %q", result.Stage)
	}
	if s.Participants["p1"].Score != 50 {
		t.Fatalf("expected pending score applied, got %d", s.Participants["p1"].Score)
	}
	if !s.Participants["p1"].IsComplete {
		t.Fatalf("expected player to be marked complete once dice run out")
	}
	if ops.calls != 1 || ops.completedFor != "p1" {
		t.Fatalf("expected lifecycle CompleteSessionRoundWithWinner called for p1, got %+v", ops)
	}
}

func TestProcessTimeoutIgnoresStaleScoreSummary(t *testing.T) {
	ops := &fakeLifecycle{}
	e, _ := New(ops, 5)
	now := time.Now()
	s := newTestSession(now, "p1", "p2")

	dicegame.ApplyRoll(s.TurnState, model.RollSnapshot{ServerRollID: "roll-old"}, now)
	dicegame.ApplyScore(s.TurnState, model.TurnScoreSummary{RollServerID: "roll-stale", Points: 99}, now)
	// Active roll id moved on without a matching score summary.
	s.TurnState.ActiveRollServerID = "roll-new"

	result, err := e.ProcessTimeout(s, "p1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TimeoutScoreAction != nil {
		t.Fatalf("expected stale score summary to be ignored")
	}
	if s.Participants["p1"].Score != 0 {
		t.Fatalf("expected no score applied from a stale summary")
	}
}

func TestProcessTimeoutUnknownPlayerErrors(t *testing.T) {
	e, _ := New(&fakeLifecycle{}, 2)
	now := time.Now()
	s := newTestSession(now, "p1")
	if _, err := e.ProcessTimeout(s, "ghost", now); err == nil {
		t.Fatalf("expected an error for a player not in the session")
	}
}

func TestProcessTimeoutNilTurnStateErrors(t *testing.T) {
	e, _ := New(&fakeLifecycle{}, 2)
	s := newTestSession(time.Now(), "p1")
	s.TurnState = nil
	if _, err := e.ProcessTimeout(s, "p1", time.Now()); err == nil {
		t.Fatalf("expected an error when the session has no turn state")
	}
}

func findInOrder(order []string, id string) (int, bool) {
	for i, v := range order {
		if v == id {
			return i, true
		}
	}
	return 0, false
}
