// Package admin implements the Admin/Observability Surface (C10): room
// and conduct overviews, the moderation audit log, banned-term CRUD,
// force-expire/remove-participant operator actions, and the
// prometheus-backed /admin/metrics endpoint. Grounded on the teacher's
// internal/handlers package shape (thin handler funcs over an owned
// collaborator set) and MOHCentral-opm-stats-api's promauto metrics
// idiom.
package admin

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dicehall/backend/internal/conduct"
	"dicehall/backend/internal/model"
	"dicehall/backend/internal/registry"
	"dicehall/backend/internal/store"
)

// roleRecordKeyPrefix namespaces role assignments within the
// moderation section, alongside audit:<id> and term:<slug> records.
const roleRecordKeyPrefix = "role:"

// RoleRecord is an admin-role grant, stored under "moderation" keyed
// by "role:<playerId>", consulted by the access-mode="role" gate.
type RoleRecord struct {
	PlayerID  string    `json:"playerId"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Engine owns no state of its own; it's a thin facade the admin routes
// call into the already-live store/registry/conduct engines through,
// the same "Registry never duplicates session state" discipline C7
// follows.
type Engine struct {
	store    *store.Controller
	registry *registry.Registry
	conduct  *conduct.Engine
	logger   *zap.SugaredLogger
}

func New(storeCtl *store.Controller, reg *registry.Registry, conductEngine *conduct.Engine, logger *zap.Logger) *Engine {
	return &Engine{store: storeCtl, registry: reg, conduct: conductEngine, logger: logger.Sugar().With("component", "admin")}
}

// Overview is the /admin/overview summary (§4.10).
type Overview struct {
	ActiveSessions    int `json:"activeSessions"`
	ActiveParticipants int `json:"activeParticipants"`
	BannedTermCount   int `json:"bannedTermCount"`
}

func (e *Engine) Overview() Overview {
	rooms := e.registry.AdminListRooms()
	total := 0
	for _, r := range rooms {
		total += r.HumanCount
	}
	return Overview{
		ActiveSessions:     len(rooms),
		ActiveParticipants: total,
		BannedTermCount:    len(e.conduct.Terms()),
	}
}

func (e *Engine) Rooms() []registry.RoomSummary { return e.registry.AdminListRooms() }

// SessionConduct returns the session-wide chat-conduct state (§4.10).
func (e *Engine) SessionConduct(sessionID string) (*model.ConductState, error) {
	var state *model.ConductState
	err := e.registry.ReadSession(sessionID, func(s *model.Session) { state = s.ChatConduct })
	return state, err
}

// PlayerConduct returns one participant's conduct record, if any.
func (e *Engine) PlayerConduct(sessionID, playerID string) (*model.ConductPlayerState, error) {
	var player *model.ConductPlayerState
	err := e.registry.ReadSession(sessionID, func(s *model.Session) {
		if s.ChatConduct != nil {
			player = s.ChatConduct.Players[playerID]
		}
	})
	return player, err
}

// ClearConduct resets one player's (or, if playerID is empty, the
// whole session's) conduct record and writes an audit entry.
func (e *Engine) ClearConduct(sessionID, playerID, actor string, resetTotal bool) error {
	err := e.registry.WithSession(sessionID, func(s *model.Session) error {
		if s.ChatConduct == nil {
			s.ChatConduct = model.NewConductState()
		}
		if playerID == "" {
			e.conduct.ClearSession(s.ChatConduct)
		} else {
			e.conduct.ClearPlayer(s.ChatConduct, playerID, resetTotal)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.recordAudit("conduct_clear", actor, sessionID+":"+playerID, "")
	return nil
}

// RemoveParticipant kicks a participant without requiring host
// privileges, per the admin surface's broader authority (§4.10).
func (e *Engine) RemoveParticipant(sessionID, playerID, actor string) error {
	if err := e.registry.AdminRemoveParticipant(sessionID, playerID, time.Now()); err != nil {
		return err
	}
	e.recordAudit("remove_participant", actor, sessionID+":"+playerID, "")
	return nil
}

// ForceExpireSession evicts a session immediately (§4.10).
func (e *Engine) ForceExpireSession(sessionID, actor string) error {
	if err := e.registry.AdminForceExpire(sessionID); err != nil {
		return err
	}
	e.recordAudit("force_expire", actor, sessionID, "")
	return nil
}

// Terms lists the live banned-term set.
func (e *Engine) Terms() []string { return e.conduct.Terms() }

// UpsertTerm adds a term to the live conduct engine and persists the
// record so it survives a restart/rehydrate.
func (e *Engine) UpsertTerm(term, actor string) error {
	e.conduct.AddTerm(term)
	e.store.Mutate(func(snap *store.Snapshot) {
		_ = snap.Put(store.SectionModeration, "term:"+term, store.BannedTermRecord{Term: term, AddedBy: actor, UpdatedAt: time.Now()})
	})
	e.recordAudit("term_add", actor, term, "")
	return nil
}

func (e *Engine) RemoveTerm(term, actor string) error {
	e.conduct.RemoveTerm(term)
	e.store.Mutate(func(snap *store.Snapshot) { snap.Delete(store.SectionModeration, "term:"+term) })
	e.recordAudit("term_remove", actor, term, "")
	return nil
}

// UpsertRole grants or changes a player's admin role, consulted by the
// access-mode="role"/"hybrid" gate.
func (e *Engine) UpsertRole(playerID, role, actor string) error {
	now := time.Now()
	e.store.Mutate(func(snap *store.Snapshot) {
		_ = snap.Put(store.SectionModeration, roleRecordKeyPrefix+playerID, RoleRecord{PlayerID: playerID, Role: role, UpdatedAt: now})
	})
	e.recordAudit("role_upsert", actor, playerID+":"+role, "")
	return nil
}

// RoleFor looks up a player's admin role, if any.
func (e *Engine) RoleFor(playerID string) (string, bool) {
	snap := e.store.Snapshot()
	var rec RoleRecord
	found, err := snap.Get(store.SectionModeration, roleRecordKeyPrefix+playerID, &rec)
	if err != nil || !found {
		return "", false
	}
	return rec.Role, true
}

// AuditLog returns the most recent audit entries, newest first.
func (e *Engine) AuditLog(limit int) []store.AuditEntry {
	snap := e.store.Snapshot()
	entries := make([]store.AuditEntry, 0)
	for _, id := range snap.IDs(store.SectionModeration) {
		if len(id) < 6 || id[:6] != "audit:" {
			continue
		}
		var entry store.AuditEntry
		if ok, err := snap.Get(store.SectionModeration, id, &entry); err == nil && ok {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func (e *Engine) recordAudit(action, actor, target, reason string) {
	entry := store.AuditEntry{ID: uuid.NewString(), Action: action, Actor: actor, Target: target, Reason: reason, Timestamp: time.Now()}
	e.store.Mutate(func(snap *store.Snapshot) { _ = snap.Put(store.SectionModeration, "audit:"+entry.ID, entry) })
	e.logger.Infow("admin action", "action", action, "actor", actor, "target", target)
}
