package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/lifeline/internal/apperr"
	"github.com/example/lifeline/internal/auth"
	"github.com/example/lifeline/internal/geo"
	"github.com/example/lifeline/internal/models"
)

// MemoryStore keeps everything behind one mutex. It backs tests and local
// runs without Postgres; the conditional-write contract holds because every
// transition checks and flips status inside the same critical section.
type MemoryStore struct {
	mu sync.Mutex

	accounts map[string]*models.Account
	byEmail  map[string]string

	donors   map[string]*models.DonorProfile
	patients map[string]*models.PatientProfile
	drivers  map[string]*models.DriverProfile

	blood     map[string]*models.BloodRequest
	ambulance map[string]*models.AmbulanceRequest

	bcryptCost int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*models.Account),
		byEmail:   make(map[string]string),
		donors:    make(map[string]*models.DonorProfile),
		patients:  make(map[string]*models.PatientProfile),
		drivers:   make(map[string]*models.DriverProfile),
		blood:     make(map[string]*models.BloodRequest),
		ambulance: make(map[string]*models.AmbulanceRequest),
	}
}

func (m *MemoryStore) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	if err := validateRegistration(in); err != nil {
		return nil, err
	}
	hash, err := auth.HashSecret(in.Secret, m.bcryptCost)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, exists := m.byEmail[email]; exists {
		return nil, apperr.Conflict("email already registered")
	}
	if p := in.Profile.Driver; p != nil {
		for _, d := range m.drivers {
			if d.LicenseNumber == p.LicenseNumber {
				return nil, apperr.Conflict("license number already registered")
			}
			if d.Vehicle.Registration == p.Vehicle.Registration {
				return nil, apperr.Conflict("vehicle registration already registered")
			}
		}
	}

	acc := &models.Account{
		ID:         uuid.NewString(),
		Email:      email,
		SecretHash: hash,
		Role:       in.Role,
		Phone:      in.Phone,
		Active:     true,
		CreatedAt:  time.Now(),
	}
	m.accounts[acc.ID] = acc
	m.byEmail[email] = acc.ID

	switch in.Role {
	case models.RoleDonor:
		p := *in.Profile.Donor
		p.AccountID = acc.ID
		m.donors[acc.ID] = &p
	case models.RolePatient:
		p := *in.Profile.Patient
		p.AccountID = acc.ID
		m.patients[acc.ID] = &p
	case models.RoleDriver:
		p := *in.Profile.Driver
		p.AccountID = acc.ID
		m.drivers[acc.ID] = &p
	}

	out := *acc
	return &out, nil
}

func (m *MemoryStore) Authenticate(ctx context.Context, email, secret string) (*models.Account, error) {
	m.mu.Lock()
	id, ok := m.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var acc *models.Account
	if ok {
		acc = m.accounts[id]
	}
	m.mu.Unlock()

	if acc == nil || !auth.VerifySecret(acc.SecretHash, secret) {
		return nil, apperr.Unauthenticated("invalid email or secret")
	}
	if !acc.Active {
		return nil, apperr.Deactivated("account is deactivated")
	}
	out := *acc
	return &out, nil
}

func (m *MemoryStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil, apperr.NotFound("account not found")
	}
	out := *acc
	return &out, nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, accountID string, role models.Role) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch role {
	case models.RoleDonor:
		if p, ok := m.donors[accountID]; ok {
			cp := *p
			return models.Profile{Donor: &cp}, nil
		}
	case models.RolePatient:
		if p, ok := m.patients[accountID]; ok {
			cp := *p
			return models.Profile{Patient: &cp}, nil
		}
	case models.RoleDriver:
		if p, ok := m.drivers[accountID]; ok {
			cp := *p
			return models.Profile{Driver: &cp}, nil
		}
	case models.RoleAdmin:
		return models.Profile{}, nil
	}
	return models.Profile{}, apperr.NotFound("profile not found")
}

func (m *MemoryStore) SetDonorAvailability(ctx context.Context, accountID string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.donors[accountID]
	if !ok {
		return apperr.NotFound("donor profile not found")
	}
	p.Available = available
	return nil
}

func (m *MemoryStore) UpdateDriverLocation(ctx context.Context, accountID string, pt models.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.drivers[accountID]
	if !ok {
		return apperr.NotFound("driver profile not found")
	}
	p.Location = pt
	return nil
}

func (m *MemoryStore) CreateBloodRequest(ctx context.Context, r *models.BloodRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = models.BloodPending
	r.CreatedAt = time.Now()
	cp := *r
	m.blood[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetBloodRequest(ctx context.Context, id string) (*models.BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.blood[id]
	if !ok {
		return nil, apperr.NotFound("blood request not found")
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListBloodRequestsByPatient(ctx context.Context, patientID string) ([]models.BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.BloodRequest{}
	for _, r := range m.blood {
		if r.PatientID == patientID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) NearbyPendingBloodRequests(ctx context.Context, group models.BloodGroup, origin models.Point, radiusMeters float64) ([]models.BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.BloodRequest{}
	for _, r := range m.blood {
		if r.Status != models.BloodPending || r.BloodGroup != group {
			continue
		}
		d := geo.Haversine(origin.Latitude, origin.Longitude, r.Location.Latitude, r.Location.Longitude)
		if d > radiusMeters {
			continue
		}
		cp := *r
		cp.DistanceMeters = d
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out, nil
}

func (m *MemoryStore) AcceptBloodRequest(ctx context.Context, requestID, donorID string) (*models.BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.blood[requestID]
	if !ok || r.Status != models.BloodPending {
		return nil, apperr.NotFound("blood request not found or no longer pending")
	}
	r.Status = models.BloodAccepted
	d := donorID
	r.DonorID = &d
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) TransitionBloodRequest(ctx context.Context, requestID, patientID string, from, to models.BloodStatus) (*models.BloodRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.blood[requestID]
	if !ok || r.PatientID != patientID {
		return nil, apperr.NotFound("blood request not found")
	}
	if r.Status != from {
		return nil, apperr.InvalidTransition(string(r.Status), string(to))
	}
	r.Status = to
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) CreateAmbulanceRequest(ctx context.Context, r *models.AmbulanceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = models.AmbulancePending
	r.RequestedAt = time.Now()
	cp := *r
	m.ambulance[r.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAmbulanceRequest(ctx context.Context, id string) (*models.AmbulanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ambulance[id]
	if !ok {
		return nil, apperr.NotFound("ambulance request not found")
	}
	cp := copyAmbulance(r)
	return &cp, nil
}

func (m *MemoryStore) ListAmbulanceRequestsByDriver(ctx context.Context, driverID string) ([]models.AmbulanceRequest, error) {
	return m.listAmbulance(func(r *models.AmbulanceRequest) bool {
		return r.DriverID != nil && *r.DriverID == driverID
	})
}

func (m *MemoryStore) ListAmbulanceRequestsByPatient(ctx context.Context, patientID string) ([]models.AmbulanceRequest, error) {
	return m.listAmbulance(func(r *models.AmbulanceRequest) bool { return r.PatientID == patientID })
}

func (m *MemoryStore) listAmbulance(match func(*models.AmbulanceRequest) bool) ([]models.AmbulanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AmbulanceRequest{}
	for _, r := range m.ambulance {
		if match(r) {
			out = append(out, copyAmbulance(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (m *MemoryStore) AssignDriver(ctx context.Context, requestID, driverID string, estimatedMinutes *float64) (*models.AmbulanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ambulance[requestID]
	if !ok || r.Status != models.AmbulancePending {
		return nil, apperr.NotFound("ambulance request not found or no longer pending")
	}
	now := time.Now()
	d := driverID
	r.Status = models.AmbulanceAssigned
	r.DriverID = &d
	r.AssignedAt = &now
	r.EstimatedMinutes = estimatedMinutes
	cp := copyAmbulance(r)
	return &cp, nil
}

func (m *MemoryStore) TransitionAmbulance(ctx context.Context, requestID, driverID string, from, to models.AmbulanceStatus) (*models.AmbulanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ambulance[requestID]
	if !ok || r.DriverID == nil || *r.DriverID != driverID {
		return nil, apperr.NotFound("ambulance request not found")
	}
	if r.Status != from {
		return nil, apperr.InvalidTransition(string(r.Status), string(to))
	}
	r.Status = to
	if to == models.AmbulanceCompleted {
		now := time.Now()
		r.CompletedAt = &now
		if r.AssignedAt != nil {
			mins := now.Sub(*r.AssignedAt).Minutes()
			r.ActualMinutes = &mins
		}
	}
	cp := copyAmbulance(r)
	return &cp, nil
}

func (m *MemoryStore) CancelAmbulance(ctx context.Context, requestID, patientID string, from models.AmbulanceStatus) (*models.AmbulanceRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ambulance[requestID]
	if !ok || r.PatientID != patientID {
		return nil, apperr.NotFound("ambulance request not found")
	}
	if r.Status != from {
		return nil, apperr.InvalidTransition(string(r.Status), string(models.AmbulanceCancelled))
	}
	r.Status = models.AmbulanceCancelled
	cp := copyAmbulance(r)
	return &cp, nil
}

func (m *MemoryStore) AppendLocationUpdate(ctx context.Context, requestID, driverID string, p models.Point, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ambulance[requestID]
	if !ok || r.DriverID == nil || *r.DriverID != driverID {
		return false, apperr.NotFound("ambulance request not found")
	}
	if r.Status != models.AmbulanceInProgress {
		return false, nil
	}
	r.LocationUpdates = append(r.LocationUpdates, models.TrackPoint{Point: p, At: at})
	return true, nil
}

func copyAmbulance(r *models.AmbulanceRequest) models.AmbulanceRequest {
	cp := *r
	cp.LocationUpdates = append([]models.TrackPoint(nil), r.LocationUpdates...)
	return cp
}
