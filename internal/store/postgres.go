package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/example/lifeline/internal/apperr"
	"github.com/example/lifeline/internal/auth"
	"github.com/example/lifeline/internal/models"
)

type PostgresStore struct {
	db         *sqlx.DB
	bcryptCost int
}

func NewPostgresStore(dsn string, bcryptCost int) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, bcryptCost: bcryptCost}, nil
}

func (p *PostgresStore) DB() *sqlx.DB { return p.db }

type accountRow struct {
	ID         string    `db:"id"`
	Email      string    `db:"email"`
	SecretHash string    `db:"secret_hash"`
	Role       string    `db:"role"`
	Phone      string    `db:"phone"`
	Active     bool      `db:"active"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r accountRow) toModel() *models.Account {
	return &models.Account{
		ID:         r.ID,
		Email:      r.Email,
		SecretHash: r.SecretHash,
		Role:       models.Role(r.Role),
		Phone:      r.Phone,
		Active:     r.Active,
		CreatedAt:  r.CreatedAt,
	}
}

func (p *PostgresStore) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	if err := validateRegistration(in); err != nil {
		return nil, err
	}
	hash, err := auth.HashSecret(in.Secret, p.bcryptCost)
	if err != nil {
		return nil, err
	}

	// Account and profile commit or roll back together; an account must
	// never exist without its profile.
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	acc := &models.Account{
		ID:         uuid.NewString(),
		Email:      strings.ToLower(strings.TrimSpace(in.Email)),
		SecretHash: hash,
		Role:       in.Role,
		Phone:      in.Phone,
		Active:     true,
		CreatedAt:  time.Now(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts(id, email, secret_hash, role, phone, active, created_at) VALUES($1,$2,$3,$4,$5,$6,$7)`,
		acc.ID, acc.Email, acc.SecretHash, acc.Role, acc.Phone, acc.Active, acc.CreatedAt); err != nil {
		return nil, mapPQError(err)
	}

	switch in.Role {
	case models.RoleDonor:
		d := in.Profile.Donor
		_, err = tx.ExecContext(ctx,
			`INSERT INTO donor_profiles(account_id, name, age, blood_group, longitude, latitude, available, last_donation)
			 VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
			acc.ID, d.Name, d.Age, d.BloodGroup, d.Location.Longitude, d.Location.Latitude, d.Available, d.LastDonation)
	case models.RolePatient:
		pt := in.Profile.Patient
		_, err = tx.ExecContext(ctx,
			`INSERT INTO patient_profiles(account_id, name, age, blood_group) VALUES($1,$2,$3,$4)`,
			acc.ID, pt.Name, pt.Age, pt.BloodGroup)
	case models.RoleDriver:
		d := in.Profile.Driver
		_, err = tx.ExecContext(ctx,
			`INSERT INTO driver_profiles(account_id, name, license_number, vehicle_type, vehicle_registration, vehicle_capacity, longitude, latitude, available)
			 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			acc.ID, d.Name, d.LicenseNumber, d.Vehicle.Type, d.Vehicle.Registration, d.Vehicle.Capacity,
			d.Location.Longitude, d.Location.Latitude, d.Available)
	}
	if err != nil {
		return nil, mapPQError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return acc, nil
}

func (p *PostgresStore) Authenticate(ctx context.Context, email, secret string) (*models.Account, error) {
	var row accountRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM accounts WHERE email=$1`, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Unauthenticated("invalid email or secret")
	}
	if err != nil {
		return nil, err
	}
	if !auth.VerifySecret(row.SecretHash, secret) {
		return nil, apperr.Unauthenticated("invalid email or secret")
	}
	if !row.Active {
		return nil, apperr.Deactivated("account is deactivated")
	}
	return row.toModel(), nil
}

func (p *PostgresStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	var row accountRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM accounts WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("account not found")
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

type donorRow struct {
	AccountID    string     `db:"account_id"`
	Name         string     `db:"name"`
	Age          int        `db:"age"`
	BloodGroup   string     `db:"blood_group"`
	Longitude    float64    `db:"longitude"`
	Latitude     float64    `db:"latitude"`
	Available    bool       `db:"available"`
	LastDonation *time.Time `db:"last_donation"`
}

type driverRow struct {
	AccountID           string  `db:"account_id"`
	Name                string  `db:"name"`
	LicenseNumber       string  `db:"license_number"`
	VehicleType         string  `db:"vehicle_type"`
	VehicleRegistration string  `db:"vehicle_registration"`
	VehicleCapacity     int     `db:"vehicle_capacity"`
	Longitude           float64 `db:"longitude"`
	Latitude            float64 `db:"latitude"`
	Available           bool    `db:"available"`
}

func (p *PostgresStore) GetProfile(ctx context.Context, accountID string, role models.Role) (models.Profile, error) {
	switch role {
	case models.RoleDonor:
		var r donorRow
		err := p.db.GetContext(ctx, &r, `SELECT * FROM donor_profiles WHERE account_id=$1`, accountID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.Profile{}, apperr.NotFound("profile not found")
		}
		if err != nil {
			return models.Profile{}, err
		}
		return models.Profile{Donor: &models.DonorProfile{
			AccountID:    r.AccountID,
			Name:         r.Name,
			Age:          r.Age,
			BloodGroup:   models.BloodGroup(r.BloodGroup),
			Location:     models.Point{Longitude: r.Longitude, Latitude: r.Latitude},
			Available:    r.Available,
			LastDonation: r.LastDonation,
		}}, nil
	case models.RolePatient:
		var r struct {
			AccountID  string `db:"account_id"`
			Name       string `db:"name"`
			Age        int    `db:"age"`
			BloodGroup string `db:"blood_group"`
		}
		err := p.db.GetContext(ctx, &r, `SELECT * FROM patient_profiles WHERE account_id=$1`, accountID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.Profile{}, apperr.NotFound("profile not found")
		}
		if err != nil {
			return models.Profile{}, err
		}
		return models.Profile{Patient: &models.PatientProfile{
			AccountID:  r.AccountID,
			Name:       r.Name,
			Age:        r.Age,
			BloodGroup: models.BloodGroup(r.BloodGroup),
		}}, nil
	case models.RoleDriver:
		var r driverRow
		err := p.db.GetContext(ctx, &r, `SELECT * FROM driver_profiles WHERE account_id=$1`, accountID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.Profile{}, apperr.NotFound("profile not found")
		}
		if err != nil {
			return models.Profile{}, err
		}
		return models.Profile{Driver: &models.DriverProfile{
			AccountID:     r.AccountID,
			Name:          r.Name,
			LicenseNumber: r.LicenseNumber,
			Vehicle: models.Vehicle{
				Type:         r.VehicleType,
				Registration: r.VehicleRegistration,
				Capacity:     r.VehicleCapacity,
			},
			Location:  models.Point{Longitude: r.Longitude, Latitude: r.Latitude},
			Available: r.Available,
		}}, nil
	case models.RoleAdmin:
		return models.Profile{}, nil
	}
	return models.Profile{}, apperr.NotFound("profile not found")
}

func (p *PostgresStore) SetDonorAvailability(ctx context.Context, accountID string, available bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE donor_profiles SET available=$2 WHERE account_id=$1`, accountID, available)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("donor profile not found")
	}
	return nil
}

func (p *PostgresStore) UpdateDriverLocation(ctx context.Context, accountID string, pt models.Point) error {
	res, err := p.db.ExecContext(ctx, `UPDATE driver_profiles SET longitude=$2, latitude=$3 WHERE account_id=$1`,
		accountID, pt.Longitude, pt.Latitude)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("driver profile not found")
	}
	return nil
}

type bloodRow struct {
	ID             string         `db:"id"`
	PatientID      string         `db:"patient_id"`
	DonorID        sql.NullString `db:"donor_id"`
	BloodGroup     string         `db:"blood_group"`
	Units          int            `db:"units_required"`
	Urgency        string         `db:"urgency"`
	Longitude      float64        `db:"longitude"`
	Latitude       float64        `db:"latitude"`
	Hospital       string         `db:"hospital"`
	Status         string         `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	DistanceMeters float64        `db:"distance_meters"`
}

func (r bloodRow) toModel() models.BloodRequest {
	out := models.BloodRequest{
		ID:             r.ID,
		PatientID:      r.PatientID,
		BloodGroup:     models.BloodGroup(r.BloodGroup),
		Units:          r.Units,
		Urgency:        models.Urgency(r.Urgency),
		Location:       models.Point{Longitude: r.Longitude, Latitude: r.Latitude},
		Hospital:       r.Hospital,
		Status:         models.BloodStatus(r.Status),
		CreatedAt:      r.CreatedAt,
		DistanceMeters: r.DistanceMeters,
	}
	if r.DonorID.Valid {
		d := r.DonorID.String
		out.DonorID = &d
	}
	return out
}

const bloodCols = `id, patient_id, donor_id, blood_group, units_required, urgency, longitude, latitude, hospital, status, created_at`

func (p *PostgresStore) CreateBloodRequest(ctx context.Context, r *models.BloodRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = models.BloodPending
	r.CreatedAt = time.Now()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO blood_requests(`+bloodCols+`) VALUES($1,$2,NULL,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.PatientID, r.BloodGroup, r.Units, r.Urgency,
		r.Location.Longitude, r.Location.Latitude, r.Hospital, r.Status, r.CreatedAt)
	return mapPQError(err)
}

func (p *PostgresStore) GetBloodRequest(ctx context.Context, id string) (*models.BloodRequest, error) {
	var row bloodRow
	err := p.db.GetContext(ctx, &row, `SELECT `+bloodCols+`, 0 AS distance_meters FROM blood_requests WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("blood request not found")
	}
	if err != nil {
		return nil, err
	}
	out := row.toModel()
	return &out, nil
}

func (p *PostgresStore) ListBloodRequestsByPatient(ctx context.Context, patientID string) ([]models.BloodRequest, error) {
	var rows []bloodRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT `+bloodCols+`, 0 AS distance_meters FROM blood_requests WHERE patient_id=$1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	return bloodModels(rows), nil
}

// NearbyPendingBloodRequests computes the haversine distance in SQL and keeps
// only pending, group-matched rows inside the radius, nearest first.
func (p *PostgresStore) NearbyPendingBloodRequests(ctx context.Context, group models.BloodGroup, origin models.Point, radiusMeters float64) ([]models.BloodRequest, error) {
	var rows []bloodRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT * FROM (
			SELECT `+bloodCols+`,
				2*6371000*asin(sqrt(
					power(sin(radians(latitude-$2)/2),2) +
					cos(radians($2))*cos(radians(latitude))*power(sin(radians(longitude-$3)/2),2)
				)) AS distance_meters
			FROM blood_requests
			WHERE status='pending' AND blood_group=$1
		) q
		WHERE distance_meters <= $4
		ORDER BY distance_meters ASC`,
		group, origin.Latitude, origin.Longitude, radiusMeters)
	if err != nil {
		return nil, err
	}
	return bloodModels(rows), nil
}

func (p *PostgresStore) AcceptBloodRequest(ctx context.Context, requestID, donorID string) (*models.BloodRequest, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE blood_requests SET status='accepted', donor_id=$2 WHERE id=$1 AND status='pending'`,
		requestID, donorID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("blood request not found or no longer pending")
	}
	return p.GetBloodRequest(ctx, requestID)
}

func (p *PostgresStore) TransitionBloodRequest(ctx context.Context, requestID, patientID string, from, to models.BloodStatus) (*models.BloodRequest, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE blood_requests SET status=$4 WHERE id=$1 AND patient_id=$2 AND status=$3`,
		requestID, patientID, from, to)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := p.GetBloodRequest(ctx, requestID)
		if err != nil || cur.PatientID != patientID {
			return nil, apperr.NotFound("blood request not found")
		}
		return nil, apperr.InvalidTransition(string(cur.Status), string(to))
	}
	return p.GetBloodRequest(ctx, requestID)
}

type ambulanceRow struct {
	ID               string          `db:"id"`
	PatientID        string          `db:"patient_id"`
	DriverID         sql.NullString  `db:"driver_id"`
	PickupLongitude  float64         `db:"pickup_longitude"`
	PickupLatitude   float64         `db:"pickup_latitude"`
	PickupAddress    string          `db:"pickup_address"`
	DestLongitude    float64         `db:"dest_longitude"`
	DestLatitude     float64         `db:"dest_latitude"`
	DestAddress      string          `db:"dest_address"`
	Status           string          `db:"status"`
	RequestedAt      time.Time       `db:"requested_at"`
	AssignedAt       *time.Time      `db:"assigned_at"`
	CompletedAt      *time.Time      `db:"completed_at"`
	EstimatedMinutes sql.NullFloat64 `db:"estimated_minutes"`
	ActualMinutes    sql.NullFloat64 `db:"actual_minutes"`
}

func (r ambulanceRow) toModel() models.AmbulanceRequest {
	out := models.AmbulanceRequest{
		ID:        r.ID,
		PatientID: r.PatientID,
		Pickup: models.Site{
			Point:   models.Point{Longitude: r.PickupLongitude, Latitude: r.PickupLatitude},
			Address: r.PickupAddress,
		},
		Destination: models.Site{
			Point:   models.Point{Longitude: r.DestLongitude, Latitude: r.DestLatitude},
			Address: r.DestAddress,
		},
		Status:      models.AmbulanceStatus(r.Status),
		RequestedAt: r.RequestedAt,
		AssignedAt:  r.AssignedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.DriverID.Valid {
		d := r.DriverID.String
		out.DriverID = &d
	}
	if r.EstimatedMinutes.Valid {
		v := r.EstimatedMinutes.Float64
		out.EstimatedMinutes = &v
	}
	if r.ActualMinutes.Valid {
		v := r.ActualMinutes.Float64
		out.ActualMinutes = &v
	}
	return out
}

func (p *PostgresStore) CreateAmbulanceRequest(ctx context.Context, r *models.AmbulanceRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.Status = models.AmbulancePending
	r.RequestedAt = time.Now()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ambulance_requests(
			id, patient_id, driver_id,
			pickup_longitude, pickup_latitude, pickup_address,
			dest_longitude, dest_latitude, dest_address,
			status, requested_at
		) VALUES($1,$2,NULL,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.PatientID,
		r.Pickup.Longitude, r.Pickup.Latitude, r.Pickup.Address,
		r.Destination.Longitude, r.Destination.Latitude, r.Destination.Address,
		r.Status, r.RequestedAt)
	return mapPQError(err)
}

func (p *PostgresStore) GetAmbulanceRequest(ctx context.Context, id string) (*models.AmbulanceRequest, error) {
	var row ambulanceRow
	err := p.db.GetContext(ctx, &row, `SELECT * FROM ambulance_requests WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("ambulance request not found")
	}
	if err != nil {
		return nil, err
	}
	out := row.toModel()

	var tps []struct {
		Longitude  float64   `db:"longitude"`
		Latitude   float64   `db:"latitude"`
		RecordedAt time.Time `db:"recorded_at"`
	}
	if err := p.db.SelectContext(ctx, &tps,
		`SELECT longitude, latitude, recorded_at FROM ambulance_location_updates WHERE request_id=$1 ORDER BY recorded_at ASC`, id); err != nil {
		return nil, err
	}
	for _, tp := range tps {
		out.LocationUpdates = append(out.LocationUpdates, models.TrackPoint{
			Point: models.Point{Longitude: tp.Longitude, Latitude: tp.Latitude},
			At:    tp.RecordedAt,
		})
	}
	return &out, nil
}

func (p *PostgresStore) ListAmbulanceRequestsByDriver(ctx context.Context, driverID string) ([]models.AmbulanceRequest, error) {
	return p.listAmbulance(ctx, `driver_id=$1`, driverID)
}

func (p *PostgresStore) ListAmbulanceRequestsByPatient(ctx context.Context, patientID string) ([]models.AmbulanceRequest, error) {
	return p.listAmbulance(ctx, `patient_id=$1`, patientID)
}

func (p *PostgresStore) listAmbulance(ctx context.Context, where string, arg string) ([]models.AmbulanceRequest, error) {
	var rows []ambulanceRow
	err := p.db.SelectContext(ctx, &rows,
		`SELECT * FROM ambulance_requests WHERE `+where+` ORDER BY requested_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	out := make([]models.AmbulanceRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (p *PostgresStore) AssignDriver(ctx context.Context, requestID, driverID string, estimatedMinutes *float64) (*models.AmbulanceRequest, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ambulance_requests SET status='assigned', driver_id=$2, assigned_at=now(), estimated_minutes=$3
		 WHERE id=$1 AND status='pending'`,
		requestID, driverID, estimatedMinutes)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.NotFound("ambulance request not found or no longer pending")
	}
	return p.GetAmbulanceRequest(ctx, requestID)
}

func (p *PostgresStore) TransitionAmbulance(ctx context.Context, requestID, driverID string, from, to models.AmbulanceStatus) (*models.AmbulanceRequest, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE ambulance_requests SET
			status=$4,
			completed_at = CASE WHEN $4='completed' THEN now() ELSE completed_at END,
			actual_minutes = CASE WHEN $4='completed' AND assigned_at IS NOT NULL
				THEN EXTRACT(EPOCH FROM (now()-assigned_at))/60 ELSE actual_minutes END
		WHERE id=$1 AND driver_id=$2 AND status=$3`,
		requestID, driverID, from, to)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := p.GetAmbulanceRequest(ctx, requestID)
		if err != nil || cur.DriverID == nil || *cur.DriverID != driverID {
			return nil, apperr.NotFound("ambulance request not found")
		}
		return nil, apperr.InvalidTransition(string(cur.Status), string(to))
	}
	return p.GetAmbulanceRequest(ctx, requestID)
}

func (p *PostgresStore) CancelAmbulance(ctx context.Context, requestID, patientID string, from models.AmbulanceStatus) (*models.AmbulanceRequest, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ambulance_requests SET status='cancelled' WHERE id=$1 AND patient_id=$2 AND status=$3`,
		requestID, patientID, from)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		cur, err := p.GetAmbulanceRequest(ctx, requestID)
		if err != nil || cur.PatientID != patientID {
			return nil, apperr.NotFound("ambulance request not found")
		}
		return nil, apperr.InvalidTransition(string(cur.Status), string(models.AmbulanceCancelled))
	}
	return p.GetAmbulanceRequest(ctx, requestID)
}

func (p *PostgresStore) AppendLocationUpdate(ctx context.Context, requestID, driverID string, pt models.Point, at time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO ambulance_location_updates(request_id, longitude, latitude, recorded_at)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (
			SELECT 1 FROM ambulance_requests WHERE id=$1 AND driver_id=$5 AND status='in-progress'
		)`,
		requestID, pt.Longitude, pt.Latitude, at, driverID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	var one int
	err = p.db.GetContext(ctx, &one, `SELECT 1 FROM ambulance_requests WHERE id=$1 AND driver_id=$2`, requestID, driverID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperr.NotFound("ambulance request not found")
	}
	if err != nil {
		return false, err
	}
	// trip exists but is not in-progress: drop the ping silently
	return false, nil
}

func bloodModels(rows []bloodRow) []models.BloodRequest {
	out := make([]models.BloodRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

// mapPQError converts unique-violation errors into conflicts with a hint at
// the offending field.
func mapPQError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch {
		case strings.Contains(pqErr.Constraint, "email"):
			return apperr.Conflict("email already registered")
		case strings.Contains(pqErr.Constraint, "license"):
			return apperr.Conflict("license number already registered")
		case strings.Contains(pqErr.Constraint, "registration"):
			return apperr.Conflict("vehicle registration already registered")
		default:
			return apperr.Conflict("duplicate value")
		}
	}
	return err
}
