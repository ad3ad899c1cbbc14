package dicegame

import (
	"testing"
)

func TestComputeRollIsDeterministicForSameInputs(t *testing.T) {
	requested := []RequestedDie{{DieID: "d1", Sides: 6}, {DieID: "d2", Sides: 6}, {DieID: "d3", Sides: 6}}

	a := ComputeRoll("sess-1", 3, "p1", "nonce-abc", requested, 0)
	b := ComputeRoll("sess-1", 3, "p1", "nonce-abc", requested, 0)

	if len(a.Dice) != len(b.Dice) {
		t.Fatalf("expected equal dice counts, got %d and %d", len(a.Dice), len(b.Dice))
	}
	for i := range a.Dice {
		if a.Dice[i].Value != b.Dice[i].Value {
			t.Fatalf("expected identical values for identical inputs at index %d: %d vs %d", i, a.Dice[i].Value, b.Dice[i].Value)
		}
	}
}

func TestComputeRollDiffersWithDifferentNonce(t *testing.T) {
	requested := []RequestedDie{{DieID: "d1", Sides: 6}, {DieID: "d2", Sides: 6}, {DieID: "d3", Sides: 6}, {DieID: "d4", Sides: 6}}

	a := ComputeRoll("sess-1", 3, "p1", "nonce-a", requested, 0)
	b := ComputeRoll("sess-1", 3, "p1", "nonce-b", requested, 0)

	same := true
	for i := range a.Dice {
		if a.Dice[i].Value != b.Dice[i].Value {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected different server nonces to (almost certainly) produce a different roll")
	}
}

func TestComputeRollValuesWithinSides(t *testing.T) {
	requested := []RequestedDie{{DieID: "d1", Sides: 4}, {DieID: "d2", Sides: 20}}
	snapshot := ComputeRoll("sess-1", 1, "p1", "nonce", requested, 0)
	for _, d := range snapshot.Dice {
		if d.Value < 1 || d.Value > d.Sides {
			t.Fatalf("die value %d out of range for %d sides", d.Value, d.Sides)
		}
	}
}

func TestComputeRollDefaultsInvalidSidesToSix(t *testing.T) {
	requested := []RequestedDie{{DieID: "d1", Sides: 1}, {DieID: "d2", Sides: 0}}
	snapshot := ComputeRoll("sess-1", 1, "p1", "nonce", requested, 0)
	for _, d := range snapshot.Dice {
		if d.Sides != 6 {
			t.Fatalf("expected invalid sides to default to 6, got %d", d.Sides)
		}
	}
}

func TestComputeRollAssignsServerRollID(t *testing.T) {
	snapshot := ComputeRoll("sess-1", 1, "p1", "nonce", []RequestedDie{{DieID: "d1", Sides: 6}}, 2)
	if snapshot.ServerRollID == "" {
		t.Fatalf("expected a non-empty server roll id")
	}
	if snapshot.RollIndex != 2 {
		t.Fatalf("expected rollIndex to be preserved, got %d", snapshot.RollIndex)
	}
}

func TestComputeRollPreservesDieIdentity(t *testing.T) {
	requested := []RequestedDie{{DieID: "alpha", Sides: 6}, {DieID: "beta", Sides: 6}}
	snapshot := ComputeRoll("sess-1", 1, "p1", "nonce", requested, 0)
	ids := map[string]bool{}
	for _, d := range snapshot.Dice {
		ids[d.DieID] = true
	}
	if !ids["alpha"] || !ids["beta"] {
		t.Fatalf("expected requested die ids to survive into the snapshot, got %+v", snapshot.Dice)
	}
}
