package models

import "testing"

func TestAmbulanceTransitions(t *testing.T) {
	legal := []struct{ from, to AmbulanceStatus }{
		{AmbulancePending, AmbulanceAssigned},
		{AmbulancePending, AmbulanceCancelled},
		{AmbulanceAssigned, AmbulanceInProgress},
		{AmbulanceAssigned, AmbulanceCancelled},
		{AmbulanceInProgress, AmbulanceCompleted},
	}
	for _, e := range legal {
		if !e.from.CanTransitionTo(e.to) {
			t.Errorf("expected %s -> %s to be legal", e.from, e.to)
		}
	}

	illegal := []struct{ from, to AmbulanceStatus }{
		{AmbulancePending, AmbulanceInProgress}, // no skipping states
		{AmbulancePending, AmbulanceCompleted},
		{AmbulanceAssigned, AmbulanceCompleted},
		{AmbulanceInProgress, AmbulanceCancelled},
		{AmbulanceCompleted, AmbulanceInProgress}, // terminal
		{AmbulanceCancelled, AmbulanceAssigned},   // terminal
	}
	for _, e := range illegal {
		if e.from.CanTransitionTo(e.to) {
			t.Errorf("expected %s -> %s to be illegal", e.from, e.to)
		}
	}
}

func TestBloodGroupValid(t *testing.T) {
	for _, g := range []BloodGroup{APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg} {
		if !g.Valid() {
			t.Errorf("expected %s to be valid", g)
		}
	}
	for _, g := range []BloodGroup{"", "C+", "o+", "AB"} {
		if g.Valid() {
			t.Errorf("expected %q to be invalid", g)
		}
	}
}

func TestPointValid(t *testing.T) {
	if !(Point{Longitude: 87.28, Latitude: 26.81}).Valid() {
		t.Error("expected valid point")
	}
	bad := []Point{
		{Longitude: 181, Latitude: 0},
		{Longitude: -181, Latitude: 0},
		{Longitude: 0, Latitude: 91},
		{Longitude: 0, Latitude: -91},
	}
	for _, p := range bad {
		if p.Valid() {
			t.Errorf("expected %+v to be invalid", p)
		}
	}
}
