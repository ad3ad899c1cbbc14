package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dicehall/backend/internal/apierr"
	"dicehall/backend/internal/authtoken"
	"dicehall/backend/internal/bot"
	"dicehall/backend/internal/conduct"
	"dicehall/backend/internal/dicegame"
	"dicehall/backend/internal/filters"
	"dicehall/backend/internal/lifecycle"
	"dicehall/backend/internal/model"
	"dicehall/backend/internal/registry"
	"dicehall/backend/internal/turntimeout"
)

// WebSocket close codes from §4.8, for Client.CloseWithCode. Nothing in
// this package sends them: HandleUpgrade rejects a bad request with an
// HTTP status before upgrading, and the inbound router answers a bad
// frame with an "error" frame.
const (
	CloseNormal          = 1000
	CloseUnauthorized    = 4401
	CloseSessionNotFound = 4404
	CloseConflict        = 4409
)

// Config carries the Bus's origin policy, sourced from internal/config
// (mirrors the teacher's SetWebSocketOriginPolicy globals, but held as
// an explicit field instead of package state).
type Config struct {
	AllowedOrigins []string
	DevAllowAll    bool
}

// Bus wires the websocket Hub to the Session Registry and every engine
// a turn_action/chat frame touches, plus the bot auto-play scheduler
// (§4.9) and the per-session turn deadline timers (§4.5).
type Bus struct {
	hub       *Hub
	reg       *registry.Registry
	tokens    *authtoken.Adapter
	filters   *filters.Registry
	timeouts  *turntimeout.Engine
	lifecycle *lifecycle.Engine
	cfg       Config
	logger    *zap.SugaredLogger
	upgrader  websocket.Upgrader

	timerMu sync.Mutex
	timers  map[string]*time.Timer
}

func NewBus(hub *Hub, reg *registry.Registry, tokens *authtoken.Adapter, filterRegistry *filters.Registry, timeouts *turntimeout.Engine, lifecycleEngine *lifecycle.Engine, cfg Config, logger *zap.Logger) *Bus {
	b := &Bus{
		hub:       hub,
		reg:       reg,
		tokens:    tokens,
		filters:   filterRegistry,
		timeouts:  timeouts,
		lifecycle: lifecycleEngine,
		cfg:       cfg,
		logger:    logger.Sugar().With("component", "realtime_bus"),
		timers:    make(map[string]*time.Timer),
	}
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     b.checkOrigin,
	}
	reg.OnSessionReset(b.onSessionReset)
	return b
}

func (b *Bus) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if b.cfg.DevAllowAll {
		return true
	}
	for _, o := range b.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	if u, err := url.Parse(origin); err == nil {
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" {
			return b.cfg.DevAllowAll
		}
	}
	return false
}

// HandleUpgrade is the gin handler for the session websocket endpoint:
// GET /ws?session=<id>&playerId=<id>&token=<accessToken> (§4.8).
func (b *Bus) HandleUpgrade(c *gin.Context) {
	sessionID := c.Query("session")
	playerID := c.Query("playerId")
	token := c.Query("token")
	if token == "" {
		token = authtoken.ExtractBearer(c.GetHeader("Authorization"))
	}

	now := time.Now()
	rec, ok := b.tokens.VerifyAccess(token, now)
	if !ok || rec.SessionID != sessionID || rec.PlayerID != playerID {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apierr.CodeInvalidAuth})
		return
	}

	var participantFound bool
	err := b.reg.ReadSession(sessionID, func(s *model.Session) {
		_, participantFound = s.Participants[playerID]
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": apierr.CodeRoomNotFound})
		return
	}
	if !participantFound {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "not_a_participant"})
		return
	}

	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.logger.Infow("ws upgrade failed", "err", err, "sessionId", sessionID)
		return
	}

	client := NewClient(conn, b.hub, sessionID, playerID, uuid.NewString())
	b.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(b.inboundHandler(client))

	b.hub.SendDirect(client, "connected", map[string]any{"sessionId": sessionID, "playerId": playerID, "connectionId": client.ConnectionID})

	var snapshot *model.Session
	_ = b.reg.ReadSession(sessionID, func(s *model.Session) { snapshot = s })
	if snapshot != nil {
		b.hub.SendDirect(client, "session_state", snapshot)
		b.rescheduleTimer(sessionID, snapshot.TurnState)
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (b *Bus) inboundHandler(client *Client) func([]byte) {
	return func(raw []byte) {
		var in inboundMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			b.hub.SendDirect(client, "error", map[string]any{"code": "invalid_json"})
			return
		}
		switch in.Type {
		case "heartbeat":
			b.handleHeartbeat(client)
		case "turn_roll":
			b.handleTurnRoll(client, in.Payload)
		case "turn_score":
			b.handleTurnScore(client, in.Payload)
		case "turn_action":
			b.handleTurnAction(client, in.Payload)
		case "turn_end":
			b.handleTurnEnd(client)
		case "chat_message":
			b.handleChatMessage(client, in.Payload)
		case "room_channel":
			b.handleRoomChannel(client, in.Payload)
		case "participant_state":
			b.handleParticipantState(client, in.Payload)
		case "chaos_attack", "particle:emit", "game_update", "player_notification":
			b.handleOpaqueRelay(client, in.Type, in.Payload)
		default:
			b.hub.SendDirect(client, "error", map[string]any{"code": "unknown_message_type"})
		}
	}
}

// handleTurnAction dispatches the wire-level turn_action envelope
// ({"action":"roll"|"score", ...}) onto the existing roll/score
// handlers, which carry the actual turn-state mutation.
func (b *Bus) handleTurnAction(client *Client, payload json.RawMessage) {
	var disc struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(payload, &disc); err != nil {
		b.hub.SendDirect(client, "error", map[string]any{"code": "invalid_payload"})
		return
	}
	switch disc.Action {
	case "roll":
		b.handleTurnRoll(client, payload)
	case "score":
		b.handleTurnScore(client, payload)
	default:
		b.hub.SendDirect(client, "error", map[string]any{"code": "invalid_payload"})
	}
}

// handleOpaqueRelay forwards client-authored envelopes for the
// out-of-scope particle/chaos/notification surfaces (§1's "relay is
// in scope, rendering is not"). A targetPlayerId routes the frame to
// one connection through the realtime_direct_delivery filter scope;
// otherwise it fans out to the whole session.
func (b *Bus) handleOpaqueRelay(client *Client, typ string, payload json.RawMessage) {
	var env struct {
		TargetPlayerID string `json:"targetPlayerId"`
	}
	_ = json.Unmarshal(payload, &env)

	fctx := &directDeliveryContext{SenderID: client.PlayerID, TargetPlayerID: env.TargetPlayerID}
	result := b.filters.Execute(context.Background(), "realtime_direct_delivery", fctx)
	if !result.Allowed {
		b.hub.SendDirect(client, "error", map[string]any{"code": result.Code})
		return
	}

	out := map[string]any{"senderId": client.PlayerID, "payload": json.RawMessage(payload)}
	if env.TargetPlayerID == "" {
		b.hub.Broadcast(client.SessionID, typ, out)
		return
	}
	b.sendToPlayer(client.SessionID, env.TargetPlayerID, typ, out)
}

// directDeliveryContext is the realtime_direct_delivery filter scope's
// fctx shape; conduct and future block-relationship filters read it.
type directDeliveryContext struct {
	SenderID       string
	TargetPlayerID string
}

func (b *Bus) sendToPlayer(sessionID, playerID, typ string, payload any) {
	b.hub.SendToPlayer(sessionID, playerID, typ, payload)
}

func (b *Bus) sendAPIErr(client *Client, err error) {
	if apiErr, ok := apierr.As(err); ok {
		b.hub.SendDirect(client, "error", map[string]any{"code": apiErr.Code, "reason": apiErr.Reason})
		return
	}
	b.hub.SendDirect(client, "error", map[string]any{"code": "internal_error"})
}

func (b *Bus) handleHeartbeat(client *Client) {
	if err := b.reg.Heartbeat(client.SessionID, client.PlayerID, time.Now()); err != nil {
		b.sendAPIErr(client, err)
	}
}

func (b *Bus) handleParticipantState(client *Client, payload json.RawMessage) {
	var p struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		b.hub.SendDirect(client, "error", map[string]any{"code": "invalid_payload"})
		return
	}
	s, turnStarted, err := b.reg.UpdateParticipantState(client.SessionID, client.PlayerID, p.Action, time.Now())
	if err != nil {
		b.sendAPIErr(client, err)
		return
	}
	b.hub.Broadcast(client.SessionID, "session_state", s)
	if turnStarted {
		b.hub.Broadcast(client.SessionID, "turn_start", s.TurnState)
		b.rescheduleTimer(client.SessionID, s.TurnState)
		b.maybeScheduleBotTurn(client.SessionID, s)
	}
}

type rollRequest struct {
	Dice []struct {
		DieID string `json:"dieId"`
		Sides int    `json:"sides"`
	} `json:"dice"`
}

func (b *Bus) handleTurnRoll(client *Client, payload json.RawMessage) {
	var req rollRequest
	_ = json.Unmarshal(payload, &req)

	var broadcastSession *model.Session
	err := b.reg.WithSession(client.SessionID, func(s *model.Session) error {
		turn := s.TurnState
		if turn == nil || turn.ActiveTurnPlayerID != client.PlayerID || turn.Phase != model.PhaseAwaitRoll {
			return apierr.Client(409, apierr.CodeTurnNotActive, "it is not your turn to roll")
		}
		requested := make([]dicegame.RequestedDie, 0, len(req.Dice))
		for _, d := range req.Dice {
			requested = append(requested, dicegame.RequestedDie{DieID: d.DieID, Sides: d.Sides})
		}
		snapshot := dicegame.ComputeRoll(s.SessionID, turn.TurnNumber, client.PlayerID, uuid.NewString(), requested, turn.TurnNumber)
		dicegame.ApplyRoll(turn, snapshot, time.Now())
		broadcastSession = s
		return nil
	})
	if err != nil {
		b.sendAPIErr(client, err)
		return
	}
	b.hub.Broadcast(client.SessionID, "turn_action", map[string]any{"action": "roll", "playerId": client.PlayerID, "turnState": broadcastSession.TurnState})
	b.hub.Broadcast(client.SessionID, "session_state", broadcastSession)
}

type scoreRequest struct {
	SelectedDiceIDs []string `json:"selectedDiceIds"`
	Points          int      `json:"points"`
	RollServerID    string   `json:"rollServerId"`
}

func (b *Bus) handleTurnScore(client *Client, payload json.RawMessage) {
	var req scoreRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		b.hub.SendDirect(client, "error", map[string]any{"code": "invalid_payload"})
		return
	}

	var session *model.Session
	var roundComplete bool
	err := b.reg.WithSession(client.SessionID, func(s *model.Session) error {
		turn := s.TurnState
		if turn == nil || turn.ActiveTurnPlayerID != client.PlayerID {
			return apierr.Client(409, apierr.CodeTurnNotActive, "it is not your turn to score")
		}
		points, err := dicegame.ValidateScoreAction(req.Points, req.SelectedDiceIDs, req.RollServerID, turn)
		if err != nil {
			return err
		}
		player := s.Participants[client.PlayerID]
		now := time.Now()
		summary := model.TurnScoreSummary{
			SelectedDiceIDs: req.SelectedDiceIDs,
			Points:          points,
			RollServerID:    req.RollServerID,
			UpdatedAt:       now,
		}
		player.Score += points
		player.RemainingDice -= len(req.SelectedDiceIDs)
		if player.RemainingDice <= 0 {
			player.RemainingDice = 0
			player.IsComplete = true
		}
		summary.ProjectedTotalScore = player.Score
		summary.RemainingDice = player.RemainingDice
		summary.IsComplete = player.IsComplete
		dicegame.ApplyScore(turn, summary, now)
		session = s
		roundComplete = player.IsComplete
		return nil
	})
	if err != nil {
		b.sendAPIErr(client, err)
		return
	}
	b.hub.Broadcast(client.SessionID, "turn_action", map[string]any{"action": "score", "playerId": client.PlayerID, "turnState": session.TurnState})
	b.hub.Broadcast(client.SessionID, "session_state", session)
	if roundComplete {
		b.completeRound(client.SessionID, client.PlayerID)
	}
}

func (b *Bus) handleTurnEnd(client *Client) {
	var session *model.Session
	err := b.reg.WithSession(client.SessionID, func(s *model.Session) error {
		turn := s.TurnState
		if turn == nil || turn.ActiveTurnPlayerID != client.PlayerID {
			return apierr.Client(409, apierr.CodeTurnNotActive, "it is not your turn to end")
		}
		if turn.Phase != model.PhaseReadyToEnd {
			return apierr.Client(400, apierr.CodeTurnActionRequired, "roll and score before ending your turn")
		}
		dicegame.AdvanceTurn(turn, time.Now())
		session = s
		return nil
	})
	if err != nil {
		b.sendAPIErr(client, err)
		return
	}
	b.hub.Broadcast(client.SessionID, "turn_end", map[string]any{"playerId": client.PlayerID, "turnState": session.TurnState})
	b.hub.Broadcast(client.SessionID, "turn_start", session.TurnState)
	b.rescheduleTimer(client.SessionID, session.TurnState)
	b.maybeScheduleBotTurn(client.SessionID, session)
}

type chatRequest struct {
	Text string `json:"text"`
}

// handleChatMessage runs the room_channel_preflight and
// room_channel_inbound filter scopes (§4.3/§4.4) before relaying.
func (b *Bus) handleChatMessage(client *Client, payload json.RawMessage) {
	var req chatRequest
	if err := json.Unmarshal(payload, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		b.hub.SendDirect(client, "error", map[string]any{"code": "invalid_payload"})
		return
	}

	var allowed bool
	var code string
	err := b.reg.WithSession(client.SessionID, func(s *model.Session) error {
		now := time.Now()
		ic := &conduct.InboundContext{PlayerID: client.PlayerID, Message: req.Text, State: s.ChatConduct, Now: now}

		pre := b.filters.Execute(context.Background(), "room_channel_preflight", ic)
		if !pre.Allowed {
			code = pre.Code
			return nil
		}
		result := b.filters.Execute(context.Background(), "room_channel_inbound", ic)
		if !result.Allowed {
			code = result.Code
			return nil
		}
		allowed = true
		return nil
	})
	if err != nil {
		b.sendAPIErr(client, err)
		return
	}
	if !allowed {
		b.hub.SendDirect(client, "error", map[string]any{"code": code})
		return
	}
	b.hub.Broadcast(client.SessionID, "chat_message", map[string]any{"playerId": client.PlayerID, "text": req.Text})
}

type roomChannelRequest struct {
	Channel        string `json:"channel"`
	Topic          string `json:"topic"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	TargetPlayerID string `json:"targetPlayerId"`
}

// handleRoomChannel is the wire-level room_channel envelope: the same
// preflight/inbound conduct filters as chat_message, plus the
// realtime_direct_delivery scope when targetPlayerId narrows delivery
// to one participant instead of the whole session.
func (b *Bus) handleRoomChannel(client *Client, payload json.RawMessage) {
	var req roomChannelRequest
	if err := json.Unmarshal(payload, &req); err != nil || strings.TrimSpace(req.Message) == "" {
		b.hub.SendDirect(client, "error", map[string]any{"code": "invalid_payload"})
		return
	}

	var allowed bool
	var code string
	err := b.reg.WithSession(client.SessionID, func(s *model.Session) error {
		now := time.Now()
		ic := &conduct.InboundContext{PlayerID: client.PlayerID, Message: req.Message, State: s.ChatConduct, Now: now}

		pre := b.filters.Execute(context.Background(), "room_channel_preflight", ic)
		if !pre.Allowed {
			code = pre.Code
			return nil
		}
		result := b.filters.Execute(context.Background(), "room_channel_inbound", ic)
		if !result.Allowed {
			code = result.Code
			return nil
		}
		if req.TargetPlayerID != "" {
			dd := b.filters.Execute(context.Background(), "realtime_direct_delivery", &directDeliveryContext{SenderID: client.PlayerID, TargetPlayerID: req.TargetPlayerID})
			if !dd.Allowed {
				code = dd.Code
				return nil
			}
		}
		allowed = true
		return nil
	})
	if err != nil {
		b.sendAPIErr(client, err)
		return
	}
	if !allowed {
		b.hub.SendDirect(client, "error", map[string]any{"code": code})
		return
	}

	out := map[string]any{
		"senderId": client.PlayerID,
		"channel":  req.Channel,
		"topic":    req.Topic,
		"title":    req.Title,
		"message":  req.Message,
	}
	if req.TargetPlayerID != "" {
		b.sendToPlayer(client.SessionID, req.TargetPlayerID, "room_channel", out)
		return
	}
	b.hub.Broadcast(client.SessionID, "room_channel", out)
}

func (b *Bus) completeRound(sessionID, winnerID string) {
	var session *model.Session
	err := b.reg.WithSession(sessionID, func(s *model.Session) error {
		b.lifecycle.CompleteSessionRoundWithWinner(s, winnerID, time.Now())
		session = s
		return nil
	})
	if err != nil {
		b.logger.Errorw("complete round failed", "sessionId", sessionID, "err", err)
		return
	}
	b.hub.Broadcast(sessionID, "round_complete", map[string]any{"winnerId": winnerID, "session": session})
	b.cancelTimer(sessionID)
}

func (b *Bus) onSessionReset(s *model.Session) {
	b.hub.Broadcast(s.SessionID, "turn_start", s.TurnState)
	b.hub.Broadcast(s.SessionID, "session_state", s)
	b.rescheduleTimer(s.SessionID, s.TurnState)
	b.maybeScheduleBotTurn(s.SessionID, s)
}

// rescheduleTimer (re)arms the per-session turn deadline timer per
// §4.5; it is the single place that knows about turnExpiresAt.
func (b *Bus) rescheduleTimer(sessionID string, turn *model.TurnState) {
	b.timerMu.Lock()
	defer b.timerMu.Unlock()
	if t, ok := b.timers[sessionID]; ok {
		t.Stop()
		delete(b.timers, sessionID)
	}
	if turn == nil || turn.TurnExpiresAt == nil || turn.ActiveTurnPlayerID == "" {
		return
	}
	delay := time.Until(*turn.TurnExpiresAt)
	if delay < 0 {
		delay = 0
	}
	playerID := turn.ActiveTurnPlayerID
	b.timers[sessionID] = time.AfterFunc(delay, func() { b.fireTimeout(sessionID, playerID) })
}

func (b *Bus) cancelTimer(sessionID string) {
	b.timerMu.Lock()
	defer b.timerMu.Unlock()
	if t, ok := b.timers[sessionID]; ok {
		t.Stop()
		delete(b.timers, sessionID)
	}
}

func (b *Bus) fireTimeout(sessionID, playerID string) {
	var session *model.Session
	var result turntimeout.Result
	err := b.reg.WithSession(sessionID, func(s *model.Session) error {
		if s.TurnState == nil || s.TurnState.ActiveTurnPlayerID != playerID {
			return nil // already advanced by the player before the timer fired
		}
		r, err := b.timeouts.ProcessTimeout(s, playerID, time.Now())
		if err != nil {
			return err
		}
		result = r
		session = s
		return nil
	})
	if err != nil || session == nil {
		return
	}
	b.hub.Broadcast(sessionID, "turn_timeout", map[string]any{"reason": result.TimeoutReason, "stage": result.Stage, "playerId": playerID})
	if result.Stage == turntimeout.StageCompletedRound {
		b.hub.Broadcast(sessionID, "round_complete", map[string]any{"winnerId": playerID, "session": session})
		b.cancelTimer(sessionID)
		return
	}
	b.hub.Broadcast(sessionID, "turn_end", map[string]any{"playerId": playerID, "turnState": session.TurnState})
	b.hub.Broadcast(sessionID, "turn_start", session.TurnState)
	b.rescheduleTimer(sessionID, session.TurnState)
	b.maybeScheduleBotTurn(sessionID, session)
}

// maybeScheduleBotTurn drives a full bot turn (roll, pick dice, end)
// on its own pacing, per §4.9 — bots never race the human turn timer
// because each bot step re-checks it's still the bot's turn before
// mutating.
func (b *Bus) maybeScheduleBotTurn(sessionID string, s *model.Session) {
	if s.TurnState == nil || s.TurnState.ActiveTurnPlayerID == "" {
		return
	}
	p, ok := s.Participants[s.TurnState.ActiveTurnPlayerID]
	if !ok || !p.IsBot {
		return
	}
	profile := bot.Profile(p.BotProfile)
	if profile == "" {
		profile = bot.ProfileBalanced
	}
	difficulty := s.GameDifficulty
	playerID := p.PlayerID
	turnNumber := s.TurnState.TurnNumber
	remaining := p.RemainingDice
	isTrailing := isTrailingPlayer(s, playerID)

	delay := bot.TurnDelay(profile, difficulty, remaining, turnNumber, isTrailing)
	time.AfterFunc(delay, func() { b.playBotTurn(sessionID, playerID, profile, difficulty) })
}

func isTrailingPlayer(s *model.Session, playerID string) bool {
	me, ok := s.Participants[playerID]
	if !ok {
		return false
	}
	for id, p := range s.Participants {
		if id == playerID || !p.IsSeated {
			continue
		}
		if p.Score > me.Score {
			return true
		}
	}
	return false
}

func (b *Bus) playBotTurn(sessionID, playerID string, profile bot.Profile, difficulty model.Difficulty) {
	var session *model.Session
	err := b.reg.WithSession(sessionID, func(s *model.Session) error {
		turn := s.TurnState
		player, ok := s.Participants[playerID]
		if turn == nil || !ok || turn.ActiveTurnPlayerID != playerID || turn.Phase != model.PhaseAwaitRoll {
			return nil
		}
		requested := bot.RollPayload(player.RemainingDice)
		snapshot := dicegame.ComputeRoll(sessionID, turn.TurnNumber, playerID, uuid.NewString(), requested, turn.TurnNumber)
		dicegame.ApplyRoll(turn, snapshot, time.Now())
		session = s
		return nil
	})
	if err != nil || session == nil {
		return
	}
	b.hub.Broadcast(sessionID, "turn_action", map[string]any{"action": "roll", "playerId": playerID, "turnState": session.TurnState})
	b.hub.Broadcast(sessionID, "session_state", session)

	scoreDelay := bot.TurnDelay(profile, difficulty, 1, session.TurnState.TurnNumber, false) / 2
	time.AfterFunc(scoreDelay, func() { b.scoreBotTurn(sessionID, playerID, profile, difficulty) })
}

func (b *Bus) scoreBotTurn(sessionID, playerID string, profile bot.Profile, difficulty model.Difficulty) {
	var session *model.Session
	var completed bool
	err := b.reg.WithSession(sessionID, func(s *model.Session) error {
		turn := s.TurnState
		player, ok := s.Participants[playerID]
		if turn == nil || !ok || turn.ActiveTurnPlayerID != playerID || turn.Phase != model.PhaseAwaitScore || turn.LastRollSnapshot == nil {
			return nil
		}
		ids, points := bot.ScoreSummary(profile, difficulty, turn.LastRollSnapshot, player.RemainingDice)
		now := time.Now()
		summary := model.TurnScoreSummary{SelectedDiceIDs: ids, Points: points, RollServerID: turn.ActiveRollServerID, UpdatedAt: now}
		player.Score += points
		player.RemainingDice -= len(ids)
		if player.RemainingDice <= 0 {
			player.RemainingDice = 0
			player.IsComplete = true
		}
		summary.ProjectedTotalScore = player.Score
		summary.RemainingDice = player.RemainingDice
		summary.IsComplete = player.IsComplete
		dicegame.ApplyScore(turn, summary, now)
		session = s
		completed = player.IsComplete
		return nil
	})
	if err != nil || session == nil {
		return
	}
	b.hub.Broadcast(sessionID, "turn_action", map[string]any{"action": "score", "playerId": playerID, "turnState": session.TurnState})
	b.hub.Broadcast(sessionID, "session_state", session)
	if completed {
		b.completeRound(sessionID, playerID)
		return
	}

	endDelay := bot.TurnDelay(profile, difficulty, 1, session.TurnState.TurnNumber, false) / 3
	time.AfterFunc(endDelay, func() { b.endBotTurn(sessionID, playerID) })
}

func (b *Bus) endBotTurn(sessionID, playerID string) {
	var session *model.Session
	err := b.reg.WithSession(sessionID, func(s *model.Session) error {
		turn := s.TurnState
		if turn == nil || turn.ActiveTurnPlayerID != playerID || turn.Phase != model.PhaseReadyToEnd {
			return nil
		}
		dicegame.AdvanceTurn(turn, time.Now())
		session = s
		return nil
	})
	if err != nil || session == nil {
		return
	}
	b.hub.Broadcast(sessionID, "turn_end", map[string]any{"playerId": playerID, "turnState": session.TurnState})
	b.hub.Broadcast(sessionID, "turn_start", session.TurnState)
	b.rescheduleTimer(sessionID, session.TurnState)
	b.maybeScheduleBotTurn(sessionID, session)
}
