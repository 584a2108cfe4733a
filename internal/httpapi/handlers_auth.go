package httpapi

import (
	"net/http"
	"time"

	"github.com/example/lifeline/internal/models"
	"github.com/example/lifeline/internal/store"
)

type registerRequest struct {
	Email  string      `json:"email"`
	Secret string      `json:"secret"`
	Phone  string      `json:"phone"`
	Role   models.Role `json:"role"`

	// role-specific profile fields
	Name          string            `json:"name"`
	Age           int               `json:"age"`
	BloodGroup    models.BloodGroup `json:"blood_group"`
	Location      models.Point      `json:"location"`
	Available     *bool             `json:"is_available"`
	LastDonation  *time.Time        `json:"last_donation_date"`
	LicenseNumber string            `json:"license_number"`
	Vehicle       models.Vehicle    `json:"vehicle"`
}

type authResponse struct {
	Token   string          `json:"token"`
	Account *models.Account `json:"account"`
	Profile models.Profile  `json:"profile"`
}

// profileFromRequest is the single boundary where the flat registration body
// becomes the role-tagged profile union.
func profileFromRequest(req registerRequest) models.Profile {
	available := true
	if req.Available != nil {
		available = *req.Available
	}
	switch req.Role {
	case models.RoleDonor:
		return models.Profile{Donor: &models.DonorProfile{
			Name:         req.Name,
			Age:          req.Age,
			BloodGroup:   req.BloodGroup,
			Location:     req.Location,
			Available:    available,
			LastDonation: req.LastDonation,
		}}
	case models.RolePatient:
		return models.Profile{Patient: &models.PatientProfile{
			Name:       req.Name,
			Age:        req.Age,
			BloodGroup: req.BloodGroup,
		}}
	case models.RoleDriver:
		return models.Profile{Driver: &models.DriverProfile{
			Name:          req.Name,
			LicenseNumber: req.LicenseNumber,
			Vehicle:       req.Vehicle,
			Location:      req.Location,
			Available:     available,
		}}
	}
	return models.Profile{}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	acc, err := s.store.Register(r.Context(), store.RegisterInput{
		Email:   req.Email,
		Secret:  req.Secret,
		Role:    req.Role,
		Phone:   req.Phone,
		Profile: profileFromRequest(req),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.tokens.Issue(acc.ID, acc.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := s.store.GetProfile(r.Context(), acc.ID, acc.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, authResponse{Token: token, Account: acc, Profile: profile})
}

type loginRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	acc, err := s.store.Authenticate(r.Context(), req.Email, req.Secret)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, err := s.tokens.Issue(acc.ID, acc.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	profile, err := s.store.GetProfile(r.Context(), acc.ID, acc.Role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, authResponse{Token: token, Account: acc, Profile: profile})
}
