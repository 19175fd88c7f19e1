package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/lifelink/internal/donor/domain"
)

// Connect opens a pgx pool against the given DSN and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConnIdleTime = 15 * time.Minute
	poolConfig.MaxConnLifetime = 45 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PostgresRepository stores donors in a single donors table. Coordinates are
// persisted as longitude/latitude columns in that order, matching the
// geospatial [lng, lat] convention; the JSON boundary stays {lat, lng}.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs the store.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const donorColumns = `id, name, blood_type, longitude, latitude, district, state,
phone, email, last_donation_at, eligible_to_donate,
sms_enabled, email_enabled, alert_radius_km, created_at, updated_at`

// CreateDonor inserts the donor row.
func (r *PostgresRepository) CreateDonor(ctx context.Context, donor domain.Donor) (domain.Donor, error) {
	lng, lat := locationColumns(donor)
	_, err := r.pool.Exec(ctx, `INSERT INTO donors (`+donorColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		donor.ID, donor.Name, string(donor.BloodType), lng, lat, donor.District, donor.State,
		donor.Phone, donor.Email, donor.LastDonationAt, donor.EligibleToDonate,
		donor.Preferences.SMSEnabled, donor.Preferences.EmailEnabled, donor.Preferences.RadiusKM,
		donor.CreatedAt, donor.UpdatedAt)
	if err != nil {
		return domain.Donor{}, fmt.Errorf("insert donor: %w", err)
	}
	return donor, nil
}

// GetDonorByID fetches one donor row.
func (r *PostgresRepository) GetDonorByID(ctx context.Context, id uuid.UUID) (domain.Donor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+donorColumns+` FROM donors WHERE id = $1`, id)
	donor, err := scanDonor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Donor{}, domain.ErrDonorNotFound
		}
		return domain.Donor{}, fmt.Errorf("select donor: %w", err)
	}
	return donor, nil
}

// UpdateDonor replaces the mutable fields of the donor row.
func (r *PostgresRepository) UpdateDonor(ctx context.Context, donor domain.Donor) (domain.Donor, error) {
	lng, lat := locationColumns(donor)
	tag, err := r.pool.Exec(ctx, `UPDATE donors SET
name = $2, blood_type = $3, longitude = $4, latitude = $5, district = $6, state = $7,
phone = $8, email = $9, last_donation_at = $10, eligible_to_donate = $11,
sms_enabled = $12, email_enabled = $13, alert_radius_km = $14, updated_at = $15
WHERE id = $1`,
		donor.ID, donor.Name, string(donor.BloodType), lng, lat, donor.District, donor.State,
		donor.Phone, donor.Email, donor.LastDonationAt, donor.EligibleToDonate,
		donor.Preferences.SMSEnabled, donor.Preferences.EmailEnabled, donor.Preferences.RadiusKM,
		donor.UpdatedAt)
	if err != nil {
		return domain.Donor{}, fmt.Errorf("update donor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Donor{}, domain.ErrDonorNotFound
	}
	return donor, nil
}

// SetEligibleToDonate writes the derived flag as a single atomic column
// update rather than a read-modify-write of the full row.
func (r *PostgresRepository) SetEligibleToDonate(ctx context.Context, id uuid.UUID, eligible bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE donors SET eligible_to_donate = $2, updated_at = now() WHERE id = $1`, id, eligible)
	if err != nil {
		return fmt.Errorf("update eligibility flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDonorNotFound
	}
	return nil
}

// ListDonors loads the full donor snapshot for an in-process matching pass.
func (r *PostgresRepository) ListDonors(ctx context.Context) ([]domain.Donor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+donorColumns+` FROM donors`)
	if err != nil {
		return nil, fmt.Errorf("select donors: %w", err)
	}
	defer rows.Close()

	var donors []domain.Donor
	for rows.Next() {
		donor, err := scanDonor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donor: %w", err)
		}
		donors = append(donors, donor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate donors: %w", err)
	}
	return donors, nil
}

func locationColumns(donor domain.Donor) (lng, lat *float64) {
	if donor.Location == nil {
		return nil, nil
	}
	return &donor.Location.Lng, &donor.Location.Lat
}

func scanDonor(row pgx.Row) (domain.Donor, error) {
	var donor domain.Donor
	var bloodType string
	var lng, lat *float64
	err := row.Scan(&donor.ID, &donor.Name, &bloodType, &lng, &lat, &donor.District, &donor.State,
		&donor.Phone, &donor.Email, &donor.LastDonationAt, &donor.EligibleToDonate,
		&donor.Preferences.SMSEnabled, &donor.Preferences.EmailEnabled, &donor.Preferences.RadiusKM,
		&donor.CreatedAt, &donor.UpdatedAt)
	if err != nil {
		return domain.Donor{}, err
	}
	donor.BloodType = domain.BloodType(bloodType)
	if lng != nil && lat != nil {
		donor.Location = &domain.GeoPoint{Lat: *lat, Lng: *lng}
	}
	return donor, nil
}
