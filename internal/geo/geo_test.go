package geo

import (
	"testing"

	"github.com/example/lifeline/internal/models"
)

func TestHaversineZero(t *testing.T) {
	if d := Haversine(0, 0, 0, 0); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// one degree of latitude is ~111 km
	d := Haversine(0, 0, 1, 0)
	if d < 110_000 || d > 112_000 {
		t.Fatalf("expected ~111km, got %f", d)
	}
}

func TestMemIndexNearby(t *testing.T) {
	idx := NewMemIndex()
	origin := models.Point{Longitude: 87.28, Latitude: 26.81}

	idx.Upsert(Responder{ID: "near", Loc: models.Point{Longitude: 87.29, Latitude: 26.81}, Available: true})
	idx.Upsert(Responder{ID: "far", Loc: models.Point{Longitude: 88.28, Latitude: 27.81}, Available: true})
	idx.Upsert(Responder{ID: "busy", Loc: models.Point{Longitude: 87.28, Latitude: 26.82}, Available: false})

	got := idx.Nearby(origin, 10_000, 10)
	if len(got) != 1 {
		t.Fatalf("expected 1 responder, got %d", len(got))
	}
	if got[0].ID != "near" {
		t.Fatalf("expected near, got %s", got[0].ID)
	}
	if got[0].DistanceMeters <= 0 || got[0].DistanceMeters > 10_000 {
		t.Fatalf("distance out of range: %f", got[0].DistanceMeters)
	}
}

func TestMemIndexNearestFirst(t *testing.T) {
	idx := NewMemIndex()
	origin := models.Point{Longitude: 0, Latitude: 0}
	idx.Upsert(Responder{ID: "b", Loc: models.Point{Longitude: 0, Latitude: 0.02}, Available: true})
	idx.Upsert(Responder{ID: "a", Loc: models.Point{Longitude: 0, Latitude: 0.01}, Available: true})
	idx.Upsert(Responder{ID: "c", Loc: models.Point{Longitude: 0, Latitude: 0.03}, Available: true})

	got := idx.Nearby(origin, 50_000, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("wrong order: %s, %s", got[0].ID, got[1].ID)
	}
}
