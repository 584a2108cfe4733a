package models

import "time"

type BloodStatus string

const (
	BloodPending   BloodStatus = "pending"
	BloodAccepted  BloodStatus = "accepted"
	BloodFulfilled BloodStatus = "fulfilled"
	BloodCancelled BloodStatus = "cancelled"
)

// BloodRequest holds a patient's plea for blood. DonorID is nil exactly while
// the request is pending and immutable once set.
type BloodRequest struct {
	ID         string      `json:"id"`
	PatientID  string      `json:"patient_id"`
	DonorID    *string     `json:"donor_id,omitempty"`
	BloodGroup BloodGroup  `json:"blood_group"`
	Units      int         `json:"units_required"`
	Urgency    Urgency     `json:"urgency"`
	Location   Point       `json:"location"`
	Hospital   string      `json:"hospital,omitempty"`
	Status     BloodStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`

	// DistanceMeters is populated only by nearby queries.
	DistanceMeters float64 `json:"distance_meters,omitempty"`
}

type AmbulanceStatus string

const (
	AmbulancePending    AmbulanceStatus = "pending"
	AmbulanceAssigned   AmbulanceStatus = "assigned"
	AmbulanceInProgress AmbulanceStatus = "in-progress"
	AmbulanceCompleted  AmbulanceStatus = "completed"
	AmbulanceCancelled  AmbulanceStatus = "cancelled"
)

func (s AmbulanceStatus) Valid() bool {
	switch s {
	case AmbulancePending, AmbulanceAssigned, AmbulanceInProgress, AmbulanceCompleted, AmbulanceCancelled:
		return true
	}
	return false
}

var ambulanceEdges = map[AmbulanceStatus][]AmbulanceStatus{
	AmbulancePending:    {AmbulanceAssigned, AmbulanceCancelled},
	AmbulanceAssigned:   {AmbulanceInProgress, AmbulanceCancelled},
	AmbulanceInProgress: {AmbulanceCompleted},
}

// CanTransitionTo reports whether next is a legal edge from s. Terminal
// statuses have no outgoing edges.
func (s AmbulanceStatus) CanTransitionTo(next AmbulanceStatus) bool {
	for _, n := range ambulanceEdges[s] {
		if n == next {
			return true
		}
	}
	return false
}

// TrackPoint is one breadcrumb of an in-progress trip.
type TrackPoint struct {
	Point
	At time.Time `json:"timestamp"`
}

type AmbulanceRequest struct {
	ID               string          `json:"id"`
	PatientID        string          `json:"patient_id"`
	DriverID         *string         `json:"driver_id,omitempty"`
	Pickup           Site            `json:"pickup"`
	Destination      Site            `json:"destination"`
	Status           AmbulanceStatus `json:"status"`
	RequestedAt      time.Time       `json:"requested_at"`
	AssignedAt       *time.Time      `json:"assigned_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	EstimatedMinutes *float64        `json:"estimated_minutes,omitempty"`
	ActualMinutes    *float64        `json:"actual_minutes,omitempty"`
	LocationUpdates  []TrackPoint    `json:"location_updates,omitempty"`
}
