package dicegame

import (
	"dicehall/backend/internal/apierr"
	"dicehall/backend/internal/model"
)

// ComputeScore sums (sides - value) over the selected dice of a roll
// snapshot: lower rolled values are worth more points, per the
// create-join-turn-loop scenario (`points = 6 - v` for a single d6).
func ComputeScore(selectedDiceIDs []string, snapshot *model.RollSnapshot) (points int, err error) {
	bySnapshot := make(map[string]model.Die, len(snapshot.Dice))
	for _, d := range snapshot.Dice {
		bySnapshot[d.DieID] = d
	}
	for _, id := range selectedDiceIDs {
		d, ok := bySnapshot[id]
		if !ok {
			return 0, apierr.Client(400, apierr.CodeTurnActionInvalidScore, "selected die not part of active roll")
		}
		points += d.Sides - d.Value
	}
	return points, nil
}

// ValidateScoreAction checks a claimed turn_action:score against the
// server's own computation, per §4.8 rule 3: caller-claimed points
// must equal the server-computed score, and rollServerId must match
// the currently active roll.
func ValidateScoreAction(claimedPoints int, selectedDiceIDs []string, claimedRollServerID string, turn *model.TurnState) (points int, err error) {
	if turn.LastRollSnapshot == nil || claimedRollServerID != turn.ActiveRollServerID {
		return 0, apierr.Client(409, apierr.CodeTurnActionInvalidScore, "rollServerId does not match the active roll")
	}
	computed, err := ComputeScore(selectedDiceIDs, turn.LastRollSnapshot)
	if err != nil {
		return 0, err
	}
	if computed != claimedPoints {
		return 0, apierr.Client(409, apierr.CodeTurnActionInvalidScore, "claimed points do not match the server-computed score")
	}
	return computed, nil
}

// Candidate is used by the bot engine to rank dice
// candidates "points asc, then value desc, then dieId" per §4.9.
type Candidate struct {
	Die    model.Die
	Points int
}

func RankCandidates(snapshot *model.RollSnapshot) []Candidate {
	out := make([]Candidate, 0, len(snapshot.Dice))
	for _, d := range snapshot.Dice {
		out = append(out, Candidate{Die: d, Points: d.Sides - d.Value})
	}
	// insertion sort: small N (bounded by maxTurnRollDice), keeps the
	// comparator readable and matches the teacher's preference for
	// explicit small sorts over imported generic sort helpers in
	// hot, size-bounded paths.
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && less(out[j], out[j-1]) {
			out[j], out[j-1] = out[j-1], out[j]
			j--
		}
	}
	return out
}

func less(a, b Candidate) bool {
	if a.Points != b.Points {
		return a.Points < b.Points
	}
	if a.Die.Value != b.Die.Value {
		return a.Die.Value > b.Die.Value
	}
	return a.Die.DieID < b.Die.DieID
}
