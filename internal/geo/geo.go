package geo

import (
	"math"
	"sync"
	"time"

	"github.com/example/lifeline/internal/models"
)

// Responder is a live location entry for a donor or driver.
type Responder struct {
	ID         string
	Loc        models.Point
	Available  bool
	BloodGroup models.BloodGroup // donors only
	Updated    time.Time

	// DistanceMeters is filled in by Nearby results.
	DistanceMeters float64
}

// Index is the minimal interface required by the matching engine.
type Index interface {
	Upsert(r Responder)
	Nearby(p models.Point, radiusMeters float64, limit int) []Responder
}

// MemIndex is a scan-based index; fine for a single process, Redis GEO
// replaces it when configured.
type MemIndex struct {
	mu         sync.RWMutex
	responders map[string]Responder
}

func NewMemIndex() *MemIndex {
	return &MemIndex{responders: make(map[string]Responder)}
}

func (g *MemIndex) Upsert(r Responder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r.Updated = time.Now()
	g.responders[r.ID] = r
}

func (g *MemIndex) Nearby(p models.Point, radiusMeters float64, limit int) []Responder {
	g.mu.RLock()
	defer g.mu.RUnlock()
	arr := make([]Responder, 0, len(g.responders))
	for _, r := range g.responders {
		if !r.Available {
			continue
		}
		d := Haversine(p.Latitude, p.Longitude, r.Loc.Latitude, r.Loc.Longitude)
		if d > radiusMeters {
			continue
		}
		r.DistanceMeters = d
		arr = append(arr, r)
	}
	// partial selection sort for top-N nearest
	n := limit
	if n <= 0 || n > len(arr) {
		n = len(arr)
	}
	for i := 0; i < n; i++ {
		minIdx := i
		for j := i + 1; j < len(arr); j++ {
			if arr[j].DistanceMeters < arr[minIdx].DistanceMeters {
				minIdx = j
			}
		}
		arr[i], arr[minIdx] = arr[minIdx], arr[i]
	}
	return arr[:n]
}

// Haversine distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
