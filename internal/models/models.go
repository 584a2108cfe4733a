package models

import "time"

// Role determines which profile an account owns and which API surface it may call.
type Role string

const (
	RoleDonor   Role = "donor"
	RolePatient Role = "patient"
	RoleDriver  Role = "driver"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RolePatient, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// BloodGroup is one of the 8 ABO/Rh combinations.
type BloodGroup string

const (
	APos  BloodGroup = "A+"
	ANeg  BloodGroup = "A-"
	BPos  BloodGroup = "B+"
	BNeg  BloodGroup = "B-"
	ABPos BloodGroup = "AB+"
	ABNeg BloodGroup = "AB-"
	OPos  BloodGroup = "O+"
	ONeg  BloodGroup = "O-"
)

func (g BloodGroup) Valid() bool {
	switch g {
	case APos, ANeg, BPos, BNeg, ABPos, ABNeg, OPos, ONeg:
		return true
	}
	return false
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Point is a WGS84 coordinate, longitude first to match the wire format.
type Point struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

func (p Point) Valid() bool {
	return p.Longitude >= -180 && p.Longitude <= 180 && p.Latitude >= -90 && p.Latitude <= 90
}

// Site is a point plus a human-readable address (ambulance pickup/destination).
type Site struct {
	Point
	Address string `json:"address"`
}

type Account struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	SecretHash string    `json:"-"`
	Role       Role      `json:"role"`
	Phone      string    `json:"phone"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type Vehicle struct {
	Type         string `json:"type"`
	Registration string `json:"registration"`
	Capacity     int    `json:"capacity,omitempty"`
}

type DonorProfile struct {
	AccountID    string     `json:"account_id"`
	Name         string     `json:"name"`
	Age          int        `json:"age"`
	BloodGroup   BloodGroup `json:"blood_group"`
	Location     Point      `json:"location"`
	Available    bool       `json:"is_available"`
	LastDonation *time.Time `json:"last_donation_date,omitempty"`
}

type PatientProfile struct {
	AccountID  string     `json:"account_id"`
	Name       string     `json:"name"`
	Age        int        `json:"age"`
	BloodGroup BloodGroup `json:"blood_group"`
}

type DriverProfile struct {
	AccountID     string  `json:"account_id"`
	Name          string  `json:"name"`
	LicenseNumber string  `json:"license_number"`
	Vehicle       Vehicle `json:"vehicle"`
	Location      Point   `json:"current_location"`
	Available     bool    `json:"is_available"`
}

// Profile is the closed union of role profiles. Exactly one field is set,
// selected by the owning account's role.
type Profile struct {
	Donor   *DonorProfile   `json:"donor,omitempty"`
	Patient *PatientProfile `json:"patient,omitempty"`
	Driver  *DriverProfile  `json:"driver,omitempty"`
}
