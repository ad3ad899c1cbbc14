// Package authtoken implements the Token Auth Adapter (C2): opaque
// session bearer tokens, hash-keyed in the store so raw tokens are
// never persisted. Distinct from the teacher's internal/auth JWT
// helper (kept, but repurposed solely for the admin surface's optional
// token access mode) — player session tokens stay opaque per the
// fixed-section StoreSnapshot's accessTokens/refreshTokens buckets.
package authtoken

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dicehall/backend/internal/store"
)

const (
	tokenBytes = 24
	TokenType  = "Bearer"
)

// Record is what gets stored, hash-keyed, under accessTokens/refreshTokens.
type Record struct {
	PlayerID  string    `json:"playerId"`
	SessionID string    `json:"sessionId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (r Record) expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }

type Bundle struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	TokenType    string    `json:"tokenType"`
}

// Adapter issues and verifies opaque session tokens against a
// store.Controller, per §4.2.
type Adapter struct {
	controller *store.Controller
	ttlAccess  time.Duration
	ttlRefresh time.Duration
}

func New(controller *store.Controller, ttlAccess, ttlRefresh time.Duration) *Adapter {
	return &Adapter{controller: controller, ttlAccess: ttlAccess, ttlRefresh: ttlRefresh}
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IssueBundle mints a fresh access+refresh token pair for a player in
// a session, persisting only their SHA256 hashes.
func (a *Adapter) IssueBundle(playerID, sessionID string, now time.Time) (Bundle, error) {
	access, err := newOpaqueToken()
	if err != nil {
		return Bundle{}, fmt.Errorf("authtoken: generate access token: %w", err)
	}
	refresh, err := newOpaqueToken()
	if err != nil {
		return Bundle{}, fmt.Errorf("authtoken: generate refresh token: %w", err)
	}

	accessExpiry := now.Add(a.ttlAccess)
	refreshExpiry := now.Add(a.ttlRefresh)

	a.controller.Mutate(func(snap *store.Snapshot) {
		_ = snap.Put(store.SectionAccessTokens, hashToken(access), Record{
			PlayerID: playerID, SessionID: sessionID, IssuedAt: now, ExpiresAt: accessExpiry,
		})
		_ = snap.Put(store.SectionRefreshTokens, hashToken(refresh), Record{
			PlayerID: playerID, SessionID: sessionID, IssuedAt: now, ExpiresAt: refreshExpiry,
		})
	})

	return Bundle{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExpiry,
		TokenType:    TokenType,
	}, nil
}

// VerifyAccess looks up an access token; an expired or unknown token
// returns ok=false (and, if found-but-expired, is deleted).
func (a *Adapter) VerifyAccess(token string, now time.Time) (rec Record, ok bool) {
	return a.verify(store.SectionAccessTokens, token, now)
}

func (a *Adapter) VerifyRefresh(token string, now time.Time) (rec Record, ok bool) {
	return a.verify(store.SectionRefreshTokens, token, now)
}

func (a *Adapter) verify(section, token string, now time.Time) (Record, bool) {
	key := hashToken(token)
	snap := a.controller.Snapshot()
	var rec Record
	found, err := snap.Get(section, key, &rec)
	if err != nil || !found {
		return Record{}, false
	}
	if rec.expired(now) {
		a.controller.Mutate(func(s *store.Snapshot) { s.Delete(section, key) })
		return Record{}, false
	}
	return rec, true
}

// Revoke deletes a refresh token record, reports whether it existed.
func (a *Adapter) Revoke(refreshToken string) bool {
	key := hashToken(refreshToken)
	snap := a.controller.Snapshot()
	var rec Record
	found, _ := snap.Get(store.SectionRefreshTokens, key, &rec)
	if !found {
		return false
	}
	a.controller.Mutate(func(s *store.Snapshot) { s.Delete(store.SectionRefreshTokens, key) })
	return true
}

// RevokeByPlayer deletes every access/refresh token record belonging
// to playerID within sessionID, for moderation kicks/bans that remove
// a participant outright (§4.7: "kick removes participant and revokes
// their tokens"). Unlike Revoke, callers never hold the raw token, so
// this scans the hash-keyed buckets for matching records.
func (a *Adapter) RevokeByPlayer(playerID, sessionID string) {
	a.controller.Mutate(func(snap *store.Snapshot) {
		revokeMatching(snap, store.SectionAccessTokens, playerID, sessionID)
		revokeMatching(snap, store.SectionRefreshTokens, playerID, sessionID)
	})
}

func revokeMatching(snap *store.Snapshot, section, playerID, sessionID string) {
	for key, raw := range snap.Sections[section] {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if rec.PlayerID == playerID && rec.SessionID == sessionID {
			snap.Delete(section, key)
		}
	}
}

// ExtractBearer parses a case-insensitive "Bearer <token>" header value.
func ExtractBearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) {
		return ""
	}
	if !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
