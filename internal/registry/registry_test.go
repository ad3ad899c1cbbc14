package registry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"dicehall/backend/internal/apierr"
	"dicehall/backend/internal/authtoken"
	"dicehall/backend/internal/lifecycle"
	"dicehall/backend/internal/model"
	"dicehall/backend/internal/store"
)

type memoryAdapter struct{}

func (memoryAdapter) Name() string                                    { return "memory" }
func (memoryAdapter) Load(_ context.Context) (*store.Snapshot, error) { return store.NewSnapshot(), nil }
func (memoryAdapter) Save(_ context.Context, _ *store.Snapshot) error { return nil }

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	logger := zap.NewNop()
	ctl := store.NewController(memoryAdapter{}, logger, time.Second)
	if err := ctl.Start(context.Background()); err != nil {
		t.Fatalf("start controller: %v", err)
	}
	t.Cleanup(ctl.Stop)

	tokens := authtoken.New(ctl, time.Hour, 24*time.Hour)
	lifecycleEngine := lifecycle.New(8*time.Second, time.Minute)

	return New(Config{
		DefaultMaxHumanCount:       2,
		PublicRoomOverflowEmptyTTL: time.Minute,
		PublicRoomStaleParticipant: time.Minute,
		TurnTimeoutMs:              30000,
	}, ctl, tokens, lifecycleEngine, logger)
}

func TestCreateSessionSeatsHostAndBots(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()

	s, bundle, err := r.CreateSession("host-1", "Host", CreateOptions{BotCount: 2, Difficulty: model.DifficultyNormal}, now)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if bundle.AccessToken == "" {
		t.Fatalf("expected a non-empty access token")
	}
	if len(s.Participants) != 3 {
		t.Fatalf("expected host + 2 bots seated, got %d participants", len(s.Participants))
	}
	if s.RoomType != model.RoomTypePrivate {
		t.Fatalf("expected a private room by default, got %q", s.RoomType)
	}
	if s.HostPlayerID != "host-1" {
		t.Fatalf("expected host-1 to be host, got %q", s.HostPlayerID)
	}
}

func TestCreateSessionPublicUsesPublicDefaultType(t *testing.T) {
	r := newTestRegistry(t)
	s, _, err := r.CreateSession("host-1", "Host", CreateOptions{IsPublic: true, Difficulty: model.DifficultyEasy}, time.Now())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if s.RoomType != model.RoomTypePublicDefault {
		t.Fatalf("expected public_default room type, got %q", s.RoomType)
	}
}

func TestJoinBySessionIdRejectsBannedPlayer(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)

	if berr := r.WithSession(s.SessionID, func(sess *model.Session) error {
		sess.Bans["banned-1"] = true
		return nil
	}); berr != nil {
		t.Fatalf("seed ban: %v", berr)
	}

	_, _, joinErr := r.JoinBySessionId(s.SessionID, "banned-1", "Banned", now)
	if joinErr == nil {
		t.Fatalf("expected a banned player's join to be rejected")
	}
	apiErr, ok := apierr.As(joinErr)
	if !ok || apiErr.Code != apierr.CodeRoomBanned {
		t.Fatalf("expected room_banned error, got %v", joinErr)
	}
}

func TestJoinBySessionIdRejectsFullRoom(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now) // maxHumanCount=2, 1 seated

	if _, _, err := r.JoinBySessionId(s.SessionID, "p2", "P2", now); err != nil {
		t.Fatalf("second join should succeed: %v", err)
	}
	_, _, err := r.JoinBySessionId(s.SessionID, "p3", "P3", now)
	if err == nil {
		t.Fatalf("expected a third human join to be rejected once the room is full")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.CodeRoomFull {
		t.Fatalf("expected room_full error, got %v", err)
	}
}

func TestJoinBySessionIdRejoiningExistingParticipantReseats(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)

	if _, _, err := r.UpdateParticipantState(s.SessionID, "host-1", ActionStand, now); err != nil {
		t.Fatalf("stand: %v", err)
	}
	var seatedBefore bool
	r.ReadSession(s.SessionID, func(sess *model.Session) { seatedBefore = sess.Participants["host-1"].IsSeated })
	if seatedBefore {
		t.Fatalf("expected host to be unseated after standing")
	}

	joined, _, err := r.JoinBySessionId(s.SessionID, "host-1", "Host", now)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !joined.Participants["host-1"].IsSeated {
		t.Fatalf("expected rejoining an existing participant to reseat them")
	}
}

func TestJoinRoomByCodeResolvesAndJoins(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)

	joined, _, err := r.JoinRoomByCode(s.RoomCode, "p2", "P2", now)
	if err != nil {
		t.Fatalf("join by code: %v", err)
	}
	if joined.SessionID != s.SessionID {
		t.Fatalf("expected to resolve to the same session")
	}
}

func TestJoinRoomByCodeUnknownCodeNotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, _, err := r.JoinRoomByCode("GHOST1", "p2", "P2", time.Now())
	if err == nil {
		t.Fatalf("expected an error for an unknown room code")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.CodeRoomNotFound {
		t.Fatalf("expected room_not_found, got %v", err)
	}
}

func TestJoinRoomByCodeRetriesThroughTransientCodeLookupMiss(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)

	// Simulate the concurrent-GC race window (§7) where the room-code
	// index momentarily has no entry for an otherwise-live session.
	r.mu.Lock()
	delete(r.roomCodes, s.RoomCode)
	r.mu.Unlock()
	go func() {
		time.Sleep(50 * time.Millisecond)
		r.mu.Lock()
		r.roomCodes[s.RoomCode] = s.SessionID
		r.mu.Unlock()
	}()

	joined, _, err := r.JoinRoomByCode(s.RoomCode, "p2", "P2", now)
	if err != nil {
		t.Fatalf("expected the bounded retry to recover once the code reappears: %v", err)
	}
	if joined.SessionID != s.SessionID {
		t.Fatalf("expected to resolve to the original session")
	}
}

func TestSeedDefaultRoomsCreatesOnePerDifficulty(t *testing.T) {
	r := newTestRegistry(t)
	r.SeedDefaultRooms(time.Now())
	rooms := r.AdminListRooms()
	if len(rooms) != len(model.AllDifficulties) {
		t.Fatalf("expected %d seeded rooms, got %d", len(model.AllDifficulties), len(rooms))
	}
	for _, room := range rooms {
		if room.RoomType != model.RoomTypePublicDefault {
			t.Fatalf("expected public_default seeded rooms, got %q", room.RoomType)
		}
	}
}

func TestSeedDefaultRoomsIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	r.SeedDefaultRooms(time.Now())
	r.SeedDefaultRooms(time.Now().Add(time.Minute))
	if len(r.AdminListRooms()) != len(model.AllDifficulties) {
		t.Fatalf("expected SeedDefaultRooms to be a no-op when defaults already exist")
	}
}

func TestModerateRequiresHost(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)
	r.JoinBySessionId(s.SessionID, "p2", "P2", now)

	err := r.Moderate(s.SessionID, "p2", "host-1", ModerateKick, now)
	if err == nil {
		t.Fatalf("expected a non-host moderate attempt to be rejected")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Code != apierr.CodeNotHost {
		t.Fatalf("expected not_host error, got %v", err)
	}
}

func TestModerateRejectsSelfTarget(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)
	if err := r.Moderate(s.SessionID, "host-1", "host-1", ModerateKick, now); err == nil {
		t.Fatalf("expected self-moderation to be rejected")
	}
}

func TestModerateBanPreventsRejoin(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)
	r.JoinBySessionId(s.SessionID, "p2", "P2", now)

	if err := r.Moderate(s.SessionID, "host-1", "p2", ModerateBan, now); err != nil {
		t.Fatalf("moderate ban: %v", err)
	}
	_, _, err := r.JoinBySessionId(s.SessionID, "p2", "P2", now)
	if err == nil {
		t.Fatalf("expected banned player to be rejected on rejoin")
	}
}

func TestModerateKickRevokesTokensAndClearsByPlayer(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)
	_, bundle, _ := r.JoinBySessionId(s.SessionID, "p2", "P2", now)

	if err := r.Moderate(s.SessionID, "host-1", "p2", ModerateKick, now); err != nil {
		t.Fatalf("moderate kick: %v", err)
	}

	if _, ok := r.tokens.VerifyAccess(bundle.AccessToken, now); ok {
		t.Fatalf("expected the kicked player's access token to be revoked")
	}
	if _, ok := r.tokens.VerifyRefresh(bundle.RefreshToken, now); ok {
		t.Fatalf("expected the kicked player's refresh token to be revoked")
	}

	r.mu.RLock()
	_, stillMapped := r.byPlayer["p2"]
	r.mu.RUnlock()
	if stillMapped {
		t.Fatalf("expected byPlayer to be cleared for a kicked participant")
	}
}

func TestUpdateParticipantStateStartsRoundWhenAllReady(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)
	r.JoinBySessionId(s.SessionID, "p2", "P2", now)

	if _, started, err := r.UpdateParticipantState(s.SessionID, "host-1", ActionReady, now); err != nil || started {
		t.Fatalf("expected round not to start with only one of two humans ready: started=%v err=%v", started, err)
	}
	clone, started, err := r.UpdateParticipantState(s.SessionID, "p2", ActionReady, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !started {
		t.Fatalf("expected the round to start once all humans are ready")
	}
	if clone.TurnState.Order == nil {
		t.Fatalf("expected a populated turn order once the round starts")
	}
}

func TestUpdateParticipantStateRejectsMidRoundChange(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)
	r.JoinBySessionId(s.SessionID, "p2", "P2", now)
	r.UpdateParticipantState(s.SessionID, "host-1", ActionReady, now)
	r.UpdateParticipantState(s.SessionID, "p2", ActionReady, now)

	// Force the game into progress.
	if err := r.WithSession(s.SessionID, func(sess *model.Session) error {
		sess.Participants["host-1"].Score = 10
		return nil
	}); err != nil {
		t.Fatalf("seed score: %v", err)
	}

	_, _, err := r.UpdateParticipantState(s.SessionID, "p2", ActionStand, now)
	if err == nil {
		t.Fatalf("expected a seat-state change mid-round to be rejected")
	}
}

func TestHeartbeatRejectsUnknownParticipant(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)
	if err := r.Heartbeat(s.SessionID, "ghost", now); err == nil {
		t.Fatalf("expected an error for a non-participant heartbeat")
	}
}

func TestLeaveRemovesParticipantAndTransfersHost(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)
	r.JoinBySessionId(s.SessionID, "p2", "P2", now)

	if err := r.Leave(s.SessionID, "host-1", now); err != nil {
		t.Fatalf("leave: %v", err)
	}

	var newHost string
	if err := r.ReadSession(s.SessionID, func(sess *model.Session) { newHost = sess.HostPlayerID }); err != nil {
		t.Fatalf("read session: %v", err)
	}
	if newHost != "p2" {
		t.Fatalf("expected host transferred to p2, got %q", newHost)
	}
}

func TestLeaveGCsEmptyPrivateRoom(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)

	if err := r.Leave(s.SessionID, "host-1", now); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := r.ReadSession(s.SessionID, func(sess *model.Session) {}); err == nil {
		t.Fatalf("expected the now-empty private room to have been garbage collected")
	}
}

func TestAdminForceExpireRemovesSessionImmediately(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	s, _, _ := r.CreateSession("host-1", "Host", CreateOptions{}, now)

	if err := r.AdminForceExpire(s.SessionID); err != nil {
		t.Fatalf("force expire: %v", err)
	}
	if err := r.ReadSession(s.SessionID, func(sess *model.Session) {}); err == nil {
		t.Fatalf("expected the session to be gone after force expire")
	}
}

func TestListRoomsOnlyReturnsPublicRooms(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	r.CreateSession("host-1", "Host", CreateOptions{IsPublic: false}, now)
	r.CreateSession("host-2", "Host2", CreateOptions{IsPublic: true, Difficulty: model.DifficultyHard}, now)

	rooms := r.ListRooms()
	if len(rooms) != 1 {
		t.Fatalf("expected exactly 1 public room listed, got %d", len(rooms))
	}
}
