// Package registry implements the Session Registry (C7): session
// creation, join by id or room code, the public-room pool with
// overflow, moderation, heartbeats, and GC. Grounded on the teacher's
// internal/handlers/lobby.go (create/join/bot-seed shape) and
// game_manager.go's per-entity map-of-mutexes idiom, de-singletonized
// per §9's "global singletons become explicit context values" note:
// where the teacher kept one package-level defaultGameManager, this
// Registry is constructed once in main and passed by reference.
package registry

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dicehall/backend/internal/apierr"
	"dicehall/backend/internal/authtoken"
	"dicehall/backend/internal/bot"
	"dicehall/backend/internal/dicegame"
	"dicehall/backend/internal/lifecycle"
	"dicehall/backend/internal/model"
	"dicehall/backend/internal/store"
)

var botProfiles = []bot.Profile{bot.ProfileBalanced, bot.ProfileCautious, bot.ProfileAggressive}

// Config carries the Registry's tunable env-driven knobs (§6.4),
// collected in one struct per the "explicit capability struct"
// construction note.
type Config struct {
	DefaultMaxHumanCount       int
	SessionIdleTTL             time.Duration
	PublicRoomOverflowEmptyTTL time.Duration
	PublicRoomStaleParticipant time.Duration
	TurnTimeoutMs              int64
	TurnTimeoutEasyMs          int64
	TurnTimeoutNormalMs        int64
	TurnTimeoutHardMs          int64
}

func (c Config) maxHumanCount() int {
	if c.DefaultMaxHumanCount > 0 {
		return c.DefaultMaxHumanCount
	}
	return 4
}

func (c Config) turnTimeoutMsFor(d model.Difficulty) int64 {
	switch d {
	case model.DifficultyEasy:
		if c.TurnTimeoutEasyMs > 0 {
			return c.TurnTimeoutEasyMs
		}
	case model.DifficultyHard:
		if c.TurnTimeoutHardMs > 0 {
			return c.TurnTimeoutHardMs
		}
	default:
		if c.TurnTimeoutNormalMs > 0 {
			return c.TurnTimeoutNormalMs
		}
	}
	if c.TurnTimeoutMs > 0 {
		return c.TurnTimeoutMs
	}
	return int64(30 * time.Second / time.Millisecond)
}

// entry wraps one session behind the single-writer serialization lane
// required by §5: a plain sync.Mutex guarding the record, the
// "mutex guarding the session record" realization the spec calls out
// as acceptable.
type entry struct {
	mu      sync.Mutex
	session *model.Session
}

// Registry owns every live session and the public-room pool.
type Registry struct {
	cfg       Config
	store     *store.Controller
	tokens    *authtoken.Adapter
	lifecycle *lifecycle.Engine
	logger    *zap.SugaredLogger

	mu        sync.RWMutex
	sessions  map[string]*entry
	roomCodes map[string]string // roomCode -> sessionId
	byPlayer  map[string]string // playerId -> sessionId (active, non-complete)

	onReset func(s *model.Session) // notified after an auto-restart reset, for the realtime bus to broadcast turn_start
}

func New(cfg Config, storeCtl *store.Controller, tokens *authtoken.Adapter, lifecycleEngine *lifecycle.Engine, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:       cfg,
		store:     storeCtl,
		tokens:    tokens,
		lifecycle: lifecycleEngine,
		logger:    logger.Sugar().With("component", "registry"),
		sessions:  make(map[string]*entry),
		roomCodes: make(map[string]string),
		byPlayer:  make(map[string]string),
	}
}

// OnSessionReset registers the hook fired after a session's post-game
// auto-restart resets it for its next game, so the
// Realtime Bus can broadcast turn_start without the Registry depending
// on it directly.
func (r *Registry) OnSessionReset(fn func(s *model.Session)) { r.onReset = fn }

func newID(prefix string) string { return prefix + "_" + uuid.NewString() }

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // excludes O/0, I/1

func (r *Registry) newRoomCode() string {
	for attempt := 0; attempt < 25; attempt++ {
		length := 6 + attempt%3
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			continue
		}
		code := make([]byte, length)
		for i, b := range buf {
			code[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
		}
		candidate := string(code)
		r.mu.RLock()
		_, taken := r.roomCodes[candidate]
		r.mu.RUnlock()
		if !taken {
			return candidate
		}
	}
	// Exhausted retries (astronomically unlikely); fall back to a uuid-derived code.
	return "RC" + uuid.NewString()[:6]
}

// CreateOptions configures CreateSession per §4.7.
type CreateOptions struct {
	BotCount   int
	IsPublic   bool
	Difficulty model.Difficulty
}

// CreateSession builds a brand-new private-by-default session, seats
// the creator (and any requested bots), and issues the creator's
// token bundle.
func (r *Registry) CreateSession(playerID, displayName string, opts CreateOptions, now time.Time) (*model.Session, authtoken.Bundle, error) {
	if opts.Difficulty == "" {
		opts.Difficulty = model.DifficultyNormal
	}
	roomType := model.RoomTypePrivate
	if opts.IsPublic {
		roomType = model.RoomTypePublicDefault
	}

	s := &model.Session{
		SessionID:      newID("sess"),
		RoomCode:       r.newRoomCode(),
		RoomType:       roomType,
		IsPublic:       opts.IsPublic,
		GameDifficulty: opts.Difficulty,
		MaxHumanCount:  r.cfg.maxHumanCount(),
		CreatedAt:      now,
		LastActivityAt: now,
		HostPlayerID:   playerID,
		Participants:   make(map[string]*model.Participant),
		Bans:           make(map[string]bool),
		ChatConduct:    model.NewConductState(),
	}
	dicegame.EnsureSessionTurnState(s, r.cfg.turnTimeoutMsFor(opts.Difficulty), now)

	seat(s, playerID, displayName, false, now)
	for i := 0; i < opts.BotCount; i++ {
		botID := newID("bot")
		seat(s, botID, botDisplayName(i), true, now)
		s.Participants[botID].IsReady = true
		s.Participants[botID].BotProfile = string(botProfiles[i%len(botProfiles)])
	}

	bundle, err := r.tokens.IssueBundle(playerID, s.SessionID, now)
	if err != nil {
		return nil, authtoken.Bundle{}, fmt.Errorf("registry: issue bundle: %w", err)
	}

	r.mu.Lock()
	r.sessions[s.SessionID] = &entry{session: s}
	r.roomCodes[s.RoomCode] = s.SessionID
	r.byPlayer[playerID] = s.SessionID
	r.mu.Unlock()

	r.persist(s)
	r.logger.Infow("session created", "sessionId", s.SessionID, "roomCode", s.RoomCode, "public", opts.IsPublic)
	return cloneForRead(s), bundle, nil
}

func seat(s *model.Session, playerID, displayName string, isBot bool, now time.Time) {
	s.Participants[playerID] = &model.Participant{
		PlayerID:      playerID,
		DisplayName:   displayName,
		IsBot:         isBot,
		IsSeated:      true,
		RemainingDice: model.DefaultDiceCount,
		JoinedAt:      now,
	}
}

func botDisplayName(i int) string {
	names := []string{"Bramble", "Quill", "Dusk", "Ember", "Frost", "Sable"}
	return "Bot " + names[i%len(names)]
}

// persist writes the session record into the store controller's
// multiplayerSessions section; the controller's own queue debounces
// and serializes the actual adapter write.
func (r *Registry) persist(s *model.Session) {
	r.store.Mutate(func(snap *store.Snapshot) {
		_ = snap.Put(store.SectionMultiplayerSessions, s.SessionID, s)
	})
}

// WithSession runs fn against the live session under its lane lock,
// persisting afterward iff fn returns nil. This is the seam the
// Realtime Bus uses to mutate turn state safely.
func (r *Registry) WithSession(sessionID string, fn func(s *model.Session) error) error {
	e, ok := r.lookup(sessionID)
	if !ok {
		return apierr.Client(404, apierr.CodeRoomNotFound, "session not found")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.session); err != nil {
		return err
	}
	r.persist(e.session)
	return nil
}

// ReadSession runs fn against a point-in-time clone of the session
// (safe to read without holding the lane lock for long).
func (r *Registry) ReadSession(sessionID string, fn func(s *model.Session)) error {
	e, ok := r.lookup(sessionID)
	if !ok {
		return apierr.Client(404, apierr.CodeRoomNotFound, "session not found")
	}
	e.mu.Lock()
	clone := cloneForRead(e.session)
	e.mu.Unlock()
	fn(clone)
	return nil
}

func (r *Registry) lookup(sessionID string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	return e, ok
}

func (r *Registry) sessionIDForCode(roomCode string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.roomCodes[roomCode]
	return id, ok
}

// cloneForRead deep-copies via JSON-free field copy for the pieces
// that matter to callers; callers must not mutate the shared maps.
func cloneForRead(s *model.Session) *model.Session {
	cp := *s
	cp.Participants = make(map[string]*model.Participant, len(s.Participants))
	for id, p := range s.Participants {
		pc := *p
		cp.Participants[id] = &pc
	}
	cp.Bans = make(map[string]bool, len(s.Bans))
	for id := range s.Bans {
		cp.Bans[id] = true
	}
	if s.TurnState != nil {
		ts := *s.TurnState
		cp.TurnState = &ts
	}
	return &cp
}

// Heartbeat stamps session and per-participant activity (§4.7).
func (r *Registry) Heartbeat(sessionID, playerID string, now time.Time) error {
	return r.WithSession(sessionID, func(s *model.Session) error {
		if _, ok := s.Participants[playerID]; !ok {
			return apierr.Client(404, apierr.CodeRoomNotFound, "not a participant")
		}
		s.LastActivityAt = now
		return nil
	})
}

// QueueForNextGame marks a participant queued, only valid while the
// current game is in progress (§4.7).
func (r *Registry) QueueForNextGame(sessionID, playerID string, now time.Time) error {
	return r.WithSession(sessionID, func(s *model.Session) error {
		p, ok := s.Participants[playerID]
		if !ok {
			return apierr.Client(404, apierr.CodeRoomNotFound, "not a participant")
		}
		if !r.lifecycle.ShouldQueueForNextGame(s) {
			return apierr.Client(409, "game_not_in_progress", "game is not in progress")
		}
		p.QueuedForNextGame = true
		s.LastActivityAt = now
		return nil
	})
}

// RefreshSessionAuth issues a new token bundle and revokes the
// player's prior refresh token (§4.7).
func (r *Registry) RefreshSessionAuth(sessionID, playerID, priorRefreshToken string, now time.Time) (authtoken.Bundle, error) {
	var bundle authtoken.Bundle
	err := r.WithSession(sessionID, func(s *model.Session) error {
		if _, ok := s.Participants[playerID]; !ok {
			return apierr.Client(404, apierr.CodeRoomNotFound, "not a participant")
		}
		var err error
		bundle, err = r.tokens.IssueBundle(playerID, sessionID, now)
		return err
	})
	if err != nil {
		return authtoken.Bundle{}, err
	}
	if priorRefreshToken != "" {
		r.tokens.Revoke(priorRefreshToken)
	}
	return bundle, nil
}

// Leave removes a participant; transfers host if needed; GCs empty
// non-default sessions (§4.7).
func (r *Registry) Leave(sessionID, playerID string, now time.Time) error {
	var shouldGC bool
	err := r.WithSession(sessionID, func(s *model.Session) error {
		if _, ok := s.Participants[playerID]; !ok {
			return nil
		}
		delete(s.Participants, playerID)
		if s.TurnState != nil {
			stillActive := make(map[string]bool, len(s.Participants))
			for id, p := range s.Participants {
				if p.IsSeated && !p.IsComplete {
					stillActive[id] = true
				}
			}
			dicegame.PruneOrder(s.TurnState, stillActive)
			if s.TurnState.ActiveTurnPlayerID == playerID {
				s.TurnState.ActiveTurnPlayerID = dicegame.NextActivePlayer(s.TurnState.Order, playerID)
			}
		}
		if s.HostPlayerID == playerID {
			s.HostPlayerID = nextHost(s)
		}
		s.LastActivityAt = now
		shouldGC = len(s.Participants) == 0 && s.RoomType != model.RoomTypePublicDefault
		return nil
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	if r.byPlayer[playerID] == sessionID {
		delete(r.byPlayer, playerID)
	}
	r.mu.Unlock()
	if shouldGC {
		r.removeSession(sessionID)
	}
	return nil
}

func nextHost(s *model.Session) string {
	ids := make([]string, 0, len(s.Participants))
	for id, p := range s.Participants {
		if p.IsSeated {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func (r *Registry) removeSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	delete(r.roomCodes, e.session.RoomCode)
	r.store.Mutate(func(snap *store.Snapshot) { snap.Delete(store.SectionMultiplayerSessions, sessionID) })
}
