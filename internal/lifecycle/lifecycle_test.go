package lifecycle

import (
	"testing"
	"time"

	"dicehall/backend/internal/dicegame"
	"dicehall/backend/internal/model"
)

func newTestSession(now time.Time, playerIDs ...string) *model.Session {
	s := &model.Session{
		SessionID:    "sess-1",
		Participants: make(map[string]*model.Participant),
		TurnState:    dicegame.NewTurnState(30000, now),
	}
	for _, id := range playerIDs {
		s.Participants[id] = &model.Participant{
			PlayerID:      id,
			IsSeated:      true,
			RemainingDice: model.DefaultDiceCount,
		}
	}
	return s
}

func TestIsGameInProgressFreshSessionIsNotInProgress(t *testing.T) {
	e := New(0, 0)
	now := time.Now()
	s := newTestSession(now, "p1", "p2")
	if e.IsGameInProgress(s) {
		t.Fatalf("expected a freshly-seated session not to be in progress")
	}
}

func TestIsGameInProgressAfterScoring(t *testing.T) {
	e := New(0, 0)
	now := time.Now()
	s := newTestSession(now, "p1", "p2")
	s.Participants["p1"].Score = 10
	if !e.IsGameInProgress(s) {
		t.Fatalf("expected scored participant to mean the game is in progress")
	}
}

func TestIsGameInProgressNilTurnState(t *testing.T) {
	e := New(0, 0)
	s := newTestSession(time.Now(), "p1")
	s.TurnState = nil
	if e.IsGameInProgress(s) {
		t.Fatalf("expected nil TurnState to report not in progress")
	}
}

func TestCompleteSessionRoundWithWinnerMonotonicCompletedAt(t *testing.T) {
	e := New(time.Second, time.Minute)
	now := time.Now()
	s := newTestSession(now, "winner", "p2", "p3")

	e.CompleteSessionRoundWithWinner(s, "winner", now)

	winnerAt := s.Participants["winner"].CompletedAt
	p2At := s.Participants["p2"].CompletedAt
	p3At := s.Participants["p3"].CompletedAt
	if winnerAt == nil || p2At == nil || p3At == nil {
		t.Fatalf("expected all three participants to have a completedAt stamp")
	}
	if !p2At.After(*winnerAt) {
		t.Fatalf("expected p2's completedAt to be strictly after the winner's")
	}
	if !p3At.After(*p2At) {
		t.Fatalf("expected p3's completedAt to be strictly after p2's")
	}
	if !s.SessionComplete {
		t.Fatalf("expected SessionComplete to be set")
	}
	if s.NextGameStartsAt == nil {
		t.Fatalf("expected NextGameStartsAt to be scheduled")
	}
}

func TestCompleteSessionRoundWithWinnerSkipsAlreadyComplete(t *testing.T) {
	e := New(time.Second, time.Minute)
	now := time.Now()
	s := newTestSession(now, "winner", "p2")
	completedAt := now.Add(-time.Minute)
	s.Participants["p2"].IsComplete = true
	s.Participants["p2"].CompletedAt = &completedAt

	e.CompleteSessionRoundWithWinner(s, "winner", now)

	if !s.Participants["p2"].CompletedAt.Equal(completedAt) {
		t.Fatalf("expected an already-complete participant's completedAt to be left untouched")
	}
}

func TestCompleteSessionRoundWithWinnerUnknownWinnerIsNoop(t *testing.T) {
	e := New(time.Second, time.Minute)
	now := time.Now()
	s := newTestSession(now, "p1")
	e.CompleteSessionRoundWithWinner(s, "ghost", now)
	if s.SessionComplete {
		t.Fatalf("expected an unknown winner id to leave the session untouched")
	}
}

func TestScheduleSessionPostGameLifecycleIsIdempotentOnStartTime(t *testing.T) {
	e := New(5*time.Second, time.Minute)
	now := time.Now()
	s := newTestSession(now, "p1")

	e.ScheduleSessionPostGameLifecycle(s, now)
	firstStart := *s.NextGameStartsAt

	later := now.Add(10 * time.Second)
	e.ScheduleSessionPostGameLifecycle(s, later)
	if !s.NextGameStartsAt.Equal(firstStart) {
		t.Fatalf("expected NextGameStartsAt to only be set once")
	}
	if !s.PostGameIdleExpiresAt.After(firstStart) {
		t.Fatalf("expected PostGameIdleExpiresAt to keep advancing forward")
	}
}

func TestScheduleSessionPostGameLifecycleNeverMovesIdleExpiryBackward(t *testing.T) {
	e := New(time.Second, 5*time.Second)
	now := time.Now()
	s := newTestSession(now, "p1")
	e.ScheduleSessionPostGameLifecycle(s, now)
	firstExpiry := *s.PostGameIdleExpiresAt

	// Call again with an earlier "now" than before; idle expiry must not regress.
	earlier := now.Add(-time.Second)
	e.ScheduleSessionPostGameLifecycle(s, earlier)
	if s.PostGameIdleExpiresAt.Before(firstExpiry) {
		t.Fatalf("expected idle expiry to never move backward")
	}
}

func TestMarkPostGamePlayerActionNoopBeforeRoundEnds(t *testing.T) {
	e := New(time.Second, time.Minute)
	now := time.Now()
	s := newTestSession(now, "p1")
	e.MarkPostGamePlayerAction(s, now)
	if s.PostGameActivityAt != nil {
		t.Fatalf("expected MarkPostGamePlayerAction to be a no-op before NextGameStartsAt is set")
	}
}

func TestMarkPostGamePlayerActionExtendsIdleExpiry(t *testing.T) {
	e := New(time.Second, 10*time.Second)
	now := time.Now()
	s := newTestSession(now, "p1")
	e.ScheduleSessionPostGameLifecycle(s, now)
	firstExpiry := *s.PostGameIdleExpiresAt

	later := now.Add(8 * time.Second)
	e.MarkPostGamePlayerAction(s, later)
	if !s.PostGameIdleExpiresAt.After(firstExpiry) {
		t.Fatalf("expected a later player action to push the idle expiry forward")
	}
}

func TestResetSessionForNextGameReseatsParticipants(t *testing.T) {
	e := New(time.Second, time.Minute)
	now := time.Now()
	s := newTestSession(now, "p1", "bot1")
	s.Participants["bot1"].IsBot = true
	s.Participants["p1"].Score = 50
	s.Participants["p1"].IsComplete = true
	completedAt := now
	s.Participants["p1"].CompletedAt = &completedAt
	s.Participants["p1"].QueuedForNextGame = true
	s.SessionComplete = true
	starts := now.Add(time.Second)
	s.NextGameStartsAt = &starts

	e.ResetSessionForNextGame(s, now.Add(2*time.Second))

	if s.Participants["p1"].Score != 0 || s.Participants["p1"].IsComplete {
		t.Fatalf("expected p1 reset, got %+v", s.Participants["p1"])
	}
	if s.Participants["p1"].RemainingDice != model.DefaultDiceCount {
		t.Fatalf("expected remaining dice reset to default")
	}
	if s.Participants["p1"].IsReady {
		t.Fatalf("expected human participant to require ready-up again")
	}
	if !s.Participants["bot1"].IsReady {
		t.Fatalf("expected bot participant to be auto-ready")
	}
	if s.SessionComplete {
		t.Fatalf("expected SessionComplete cleared")
	}
	if s.NextGameStartsAt != nil || s.PostGameActivityAt != nil || s.PostGameIdleExpiresAt != nil {
		t.Fatalf("expected post-game fields wiped")
	}
	if s.TurnState == nil || s.TurnState.Phase != model.PhaseAwaitRoll {
		t.Fatalf("expected a fresh await-roll turn state, got %+v", s.TurnState)
	}
}
