package model

import "testing"

func TestActiveParticipantIDsExcludesUnseatedAndComplete(t *testing.T) {
	s := &Session{Participants: map[string]*Participant{
		"p1": {IsSeated: true, IsComplete: false},
		"p2": {IsSeated: false, IsComplete: false},
		"p3": {IsSeated: true, IsComplete: true},
	}}
	ids := s.ActiveParticipantIDs()
	if len(ids) != 1 || ids[0] != "p1" {
		t.Fatalf("expected only p1 active, got %+v", ids)
	}
}

func TestHumanCountExcludesBotsAndUnseated(t *testing.T) {
	s := &Session{Participants: map[string]*Participant{
		"p1":  {IsSeated: true, IsBot: false},
		"bot": {IsSeated: true, IsBot: true},
		"p2":  {IsSeated: false, IsBot: false},
	}}
	if got := s.HumanCount(); got != 1 {
		t.Fatalf("expected 1 human counted, got %d", got)
	}
}

func TestNewConductStateInitializesPlayersMap(t *testing.T) {
	cs := NewConductState()
	if cs.Players == nil {
		t.Fatalf("expected a non-nil Players map")
	}
	if len(cs.Players) != 0 {
		t.Fatalf("expected an empty Players map, got %d entries", len(cs.Players))
	}
}
