// Package bot implements the Bot Engine (C9): roll payload generation,
// a selection-target/tolerance scoring heuristic, and turn-delay
// pacing. Generalized from the teacher's internal/game/cribbage/bot.go
// package-level mutex-guarded *rand.Rand idiom — the cribbage
// discard/pegging heuristics are replaced with dice selection-target
// and tolerance heuristics, but the "one shared rand source, one
// mutex" shape is kept.
package bot

import (
	"math/rand"
	"sync"
	"time"

	"dicehall/backend/internal/dicegame"
	"dicehall/backend/internal/model"
)

type Profile string

const (
	ProfileCautious   Profile = "cautious"
	ProfileBalanced   Profile = "balanced"
	ProfileAggressive Profile = "aggressive"
)

var (
	mu  sync.Mutex
	rng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func intn(n int) int {
	if n <= 0 {
		return 0
	}
	mu.Lock()
	defer mu.Unlock()
	return rng.Intn(n)
}

func float() float64 {
	mu.Lock()
	defer mu.Unlock()
	return rng.Float64()
}

const maxTurnRollDice = 6

var defaultSides = []int{6, 6, 8, 10, 12, 20}

// RollPayload builds the dice shape a bot would request for its roll,
// bounded by min(remainingDice, maxTurnRollDice), per §4.9(a).
func RollPayload(remainingDice int) []dicegame.RequestedDie {
	count := remainingDice
	if count > maxTurnRollDice {
		count = maxTurnRollDice
	}
	out := make([]dicegame.RequestedDie, 0, count)
	for i := 0; i < count; i++ {
		sides := defaultSides[i%len(defaultSides)]
		out = append(out, dicegame.RequestedDie{DieID: botDieID(i), Sides: sides})
	}
	return out
}

func botDieID(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "bot-d" + string(letters[i%len(letters)])
}

// toleranceFor returns the point-tolerance window and a base selection
// target adjusted by profile and difficulty, per §4.9: difficulties
// adjust tolerance by ±3 and selection target by ±1-2.
func toleranceFor(profile Profile, difficulty model.Difficulty, candidateCount int) (tolerance, target int) {
	switch profile {
	case ProfileCautious:
		tolerance, target = 2, candidateCount/3
	case ProfileAggressive:
		tolerance, target = 6, (candidateCount*2)/3
	default:
		tolerance, target = 4, candidateCount / 2
	}

	switch difficulty {
	case model.DifficultyEasy:
		tolerance += 3
		target -= 1
	case model.DifficultyHard:
		tolerance -= 3
		target += 2
	}

	if tolerance < 0 {
		tolerance = 0
	}
	if target < 1 && candidateCount > 0 {
		target = 1
	}
	if target > candidateCount {
		target = candidateCount
	}
	return tolerance, target
}

// ScoreSummary selects candidates from the roll snapshot per §4.9(b):
// rank ascending by points, pick up to target within tolerance of the
// best candidate's points, then on easy difficulty inject 0-3
// deliberate mistakes by promoting higher-point (worse) candidates.
func ScoreSummary(profile Profile, difficulty model.Difficulty, snapshot *model.RollSnapshot, remainingDice int) ([]string, int) {
	ranked := dicegame.RankCandidates(snapshot)
	if len(ranked) == 0 {
		return nil, 0
	}

	tolerance, target := toleranceFor(profile, difficulty, len(ranked))
	best := ranked[0].Points

	selected := make([]dicegame.Candidate, 0, target)
	for _, c := range ranked {
		if len(selected) >= target {
			break
		}
		if c.Points-best <= tolerance {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		selected = append(selected, ranked[0])
	}

	if difficulty == model.DifficultyEasy {
		mistakes := intn(4) // 0..3
		for i := 0; i < mistakes; i++ {
			promote := nextUnselected(ranked, selected)
			if promote == nil {
				break
			}
			selected = append(selected, *promote)
		}
	}

	ids := make([]string, 0, len(selected))
	points := 0
	for _, c := range selected {
		ids = append(ids, c.Die.DieID)
		points += c.Points
	}
	return ids, points
}

func nextUnselected(ranked []dicegame.Candidate, selected []dicegame.Candidate) *dicegame.Candidate {
	chosen := make(map[string]bool, len(selected))
	for _, c := range selected {
		chosen[c.Die.DieID] = true
	}
	for i := len(ranked) - 1; i >= 0; i-- {
		if !chosen[ranked[i].Die.DieID] {
			c := ranked[i]
			return &c
		}
	}
	return nil
}

// TurnDelay draws a pacing delay per §4.9(c): trailing bots act
// faster, cautious leaders act slower.
func TurnDelay(profile Profile, difficulty model.Difficulty, remainingDice, turnNumber int, isTrailing bool) time.Duration {
	baseMin, baseMax := 600, 1800
	switch profile {
	case ProfileAggressive:
		baseMin, baseMax = 300, 900
	case ProfileCautious:
		baseMin, baseMax = 900, 2400
	}
	if difficulty == model.DifficultyHard {
		baseMin, baseMax = baseMin/2, baseMax/2
	}
	if isTrailing {
		baseMin, baseMax = baseMin/2, (baseMax*2)/3
	}
	if baseMax <= baseMin {
		baseMax = baseMin + 1
	}
	span := baseMax - baseMin
	draw := baseMin + int(float()*float64(span))
	return time.Duration(draw) * time.Millisecond
}
