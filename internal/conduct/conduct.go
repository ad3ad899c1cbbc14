// Package conduct implements the Conduct Engine (C4): a banned-term
// filter over chat messages, per-player strike/mute bookkeeping, and
// admin clear operations, wired as a room_channel_inbound filter in
// the Filter Registry (C3).
package conduct

import (
	"context"
	"strings"
	"time"
	"unicode"

	"dicehall/backend/internal/filters"
	"dicehall/backend/internal/model"
)

const (
	DefaultStrikeLimit      = 3
	DefaultMuteDuration     = 5 * time.Minute
	CodeMessageBlocked      = "room_channel_message_blocked"
	CodeSenderMuted         = "room_channel_sender_muted"
)

// Engine owns the banned-term set and exposes filter closures over a
// caller-supplied per-session ConductState accessor, so it never holds
// session state itself (the Session Registry owns that).
type Engine struct {
	strikeLimit  int
	muteDuration time.Duration
	bannedTerms  map[string]bool
}

func New(configBannedTerms []string, strikeLimit int, muteDuration time.Duration) *Engine {
	if strikeLimit <= 0 {
		strikeLimit = DefaultStrikeLimit
	}
	if muteDuration <= 0 {
		muteDuration = DefaultMuteDuration
	}
	e := &Engine{strikeLimit: strikeLimit, muteDuration: muteDuration, bannedTerms: make(map[string]bool)}
	for _, t := range configBannedTerms {
		e.bannedTerms[normalize(t)] = true
	}
	return e
}

// AddTerm/RemoveTerm let the admin surface extend the banned set at
// runtime (backed by the moderation section's "term:<slug>" records).
func (e *Engine) AddTerm(term string)    { e.bannedTerms[normalize(term)] = true }
func (e *Engine) RemoveTerm(term string) { delete(e.bannedTerms, normalize(term)) }
func (e *Engine) Terms() []string {
	out := make([]string, 0, len(e.bannedTerms))
	for t := range e.bannedTerms {
		out = append(out, t)
	}
	return out
}

func normalize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func (e *Engine) containsBannedTerm(message string) bool {
	normalized := normalize(message)
	tokens := strings.Fields(normalized)
	for _, tok := range tokens {
		if e.bannedTerms[tok] {
			return true
		}
	}
	return e.bannedTerms[normalized] && normalized != ""
}

// InboundContext is the filter context passed to the room_channel_inbound
// scope.
type InboundContext struct {
	PlayerID string
	Message  string
	State    *model.ConductState
	Now      time.Time
}

// InboundFilter returns a Filter Registry entry that mutates the
// caller-owned ConductState in place per §4.4.
func (e *Engine) InboundFilter() *filters.Filter {
	return &filters.Filter{
		ID:    "conduct_inbound",
		Scope: "room_channel_inbound",
		Policy: filters.Policy{Enabled: true, OnError: filters.OnErrorNoop},
		Run: func(_ context.Context, fctx any) (filters.Outcome, error) {
			ic, ok := fctx.(*InboundContext)
			if !ok {
				return filters.Outcome{Allowed: true}, nil
			}
			return e.evaluate(ic), nil
		},
	}
}

func (e *Engine) evaluate(ic *InboundContext) filters.Outcome {
	player := e.playerState(ic.State, ic.PlayerID)

	if player.IsMuted && player.MutedUntil != nil && ic.Now.Before(*player.MutedUntil) {
		return filters.Outcome{Allowed: false, Code: CodeSenderMuted}
	}
	if player.IsMuted && player.MutedUntil != nil && !ic.Now.Before(*player.MutedUntil) {
		player.IsMuted = false
		player.MutedUntil = nil
	}

	if !e.containsBannedTerm(ic.Message) {
		return filters.Outcome{Allowed: true}
	}

	player.Strikes++
	player.TotalStrikes++
	stateChanged := true
	if player.Strikes >= e.strikeLimit {
		until := ic.Now.Add(e.muteDuration)
		player.IsMuted = true
		player.MutedUntil = &until
	}
	ic.State.UpdatedAt = ic.Now
	return filters.Outcome{Allowed: false, Code: CodeMessageBlocked, StateChanged: stateChanged}
}

func (e *Engine) playerState(state *model.ConductState, playerID string) *model.ConductPlayerState {
	if state.Players == nil {
		state.Players = make(map[string]*model.ConductPlayerState)
	}
	p, ok := state.Players[playerID]
	if !ok {
		p = &model.ConductPlayerState{}
		state.Players[playerID] = p
	}
	return p
}

// PreflightFilter blocks sends from an already-muted player before the
// message content is even evaluated, per §4.4's "preflight filter that
// inspects mute state".
func (e *Engine) PreflightFilter() *filters.Filter {
	return &filters.Filter{
		ID:    "conduct_preflight",
		Scope: "room_channel_preflight",
		Policy: filters.Policy{Enabled: true, OnError: filters.OnErrorNoop},
		Run: func(_ context.Context, fctx any) (filters.Outcome, error) {
			ic, ok := fctx.(*InboundContext)
			if !ok {
				return filters.Outcome{Allowed: true}, nil
			}
			player := e.playerState(ic.State, ic.PlayerID)
			if player.IsMuted && player.MutedUntil != nil && ic.Now.Before(*player.MutedUntil) {
				return filters.Outcome{Allowed: false, Code: CodeSenderMuted}, nil
			}
			return filters.Outcome{Allowed: true}, nil
		},
	}
}

// ClearPlayer resets a single player's conduct record; if resetTotal is
// false, totalStrikes (the lifetime counter) is preserved.
func (e *Engine) ClearPlayer(state *model.ConductState, playerID string, resetTotal bool) {
	p, ok := state.Players[playerID]
	if !ok {
		return
	}
	total := p.TotalStrikes
	*p = model.ConductPlayerState{}
	if !resetTotal {
		p.TotalStrikes = total
	}
}

// ClearSession resets every player's conduct record in the session.
func (e *Engine) ClearSession(state *model.ConductState) {
	state.Players = make(map[string]*model.ConductPlayerState)
	state.UpdatedAt = time.Now()
}
