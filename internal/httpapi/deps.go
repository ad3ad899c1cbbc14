package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dicehall/backend/internal/authtoken"
	"dicehall/backend/internal/registry"
	"dicehall/backend/internal/store"
)

// IdentityVerifier is the out-of-scope collaborator named in §1: a
// Firebase identity verifier this server calls out to rather than
// implements. Only a profile write needs it, to confirm the caller's
// Firebase ID token actually names the player whose profile it's
// writing; NoopIdentityVerifier below is the default wiring until a
// real Firebase-backed implementation is injected.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (playerID string, err error)
}

// NoopIdentityVerifier treats the identity token itself as the player
// id, matching local/dev environments where no Firebase project is
// configured.
type NoopIdentityVerifier struct{}

func (NoopIdentityVerifier) Verify(_ context.Context, idToken string) (string, error) {
	return idToken, nil
}

// LeaderboardSink is the out-of-scope collaborator named in §1: the
// leaderboard write/read path this server defers to. StoreLeaderboardSink
// below is the default wiring, keeping leaderboard rows in the store
// controller's leaderboardScores section rather than a dedicated
// leaderboard service.
type LeaderboardSink interface {
	Submit(ctx context.Context, entry LeaderboardEntry) error
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

type LeaderboardEntry struct {
	PlayerID    string    `json:"playerId"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	Difficulty  string    `json:"difficulty,omitempty"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// Deps bundles every engine the HTTP surface delegates to, following
// the teacher's pattern of passing one capability struct into each
// RegisterXRoutes rather than a grab-bag of loose arguments.
type Deps struct {
	Store       *store.Controller
	Registry    *registry.Registry
	Tokens      *authtoken.Adapter
	Identity    IdentityVerifier
	Leaderboard LeaderboardSink
	Logger      *zap.SugaredLogger
}
