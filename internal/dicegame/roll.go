// Package dicegame implements the authoritative dice-roll and
// turn-scoring rules shared by the Realtime Bus (C8), the Turn Timeout
// Engine (C5), and the Bot Engine (C9): a deterministic, unforgeable
// server-side roll and the points computation derived from it.
//
// Replaces the teacher's internal/game/cribbage + internal/game/common
// packages: the card-deck shuffle and cribbage scoring tables are gone,
// but the "server owns randomness, client only supplies shape" idiom
// from internal/game/common/deck.go is kept and made deterministic.
package dicegame

import (
	"fmt"
	"hash/fnv"
	"math/rand"

	"github.com/google/uuid"

	"dicehall/backend/internal/model"
)

// RequestedDie is what a client names in a turn_action:roll frame —
// shape only, never a value.
type RequestedDie struct {
	DieID string
	Sides int
}

// seed derives a deterministic PRNG seed from the roll's identity
// tuple. serverNonce must never be revealed to clients before the
// roll is issued, or the roll becomes predictable.
func seed(sessionID string, turnNumber int, playerID, serverNonce string) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s|%s", sessionID, turnNumber, playerID, serverNonce)
	return int64(h.Sum64())
}

// ComputeRoll produces the server's authoritative dice values for a
// turn_action:roll, per §4.8's "Server-side roll" note. serverNonce is
// a fresh random value minted by the caller per roll (never derived
// from client input) so the seed can't be guessed in advance.
func ComputeRoll(sessionID string, turnNumber int, playerID, serverNonce string, requested []RequestedDie, rollIndex int) model.RollSnapshot {
	rng := rand.New(rand.NewSource(seed(sessionID, turnNumber, playerID, serverNonce)))

	dice := make([]model.Die, 0, len(requested))
	for _, r := range requested {
		sides := r.Sides
		if sides < 2 {
			sides = 6
		}
		dice = append(dice, model.Die{
			DieID: r.DieID,
			Sides: sides,
			Value: rng.Intn(sides) + 1,
		})
	}

	return model.RollSnapshot{
		ServerRollID: uuid.NewString(),
		RollIndex:    rollIndex,
		Dice:         dice,
	}
}
