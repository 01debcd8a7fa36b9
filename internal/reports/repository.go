package reports

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// StatusCount is one row of the per-status dashboard aggregate.
type StatusCount struct {
	Status string `json:"status" db:"status"`
	Count  int    `json:"count" db:"count"`
}

// TypeCount is one row of the per-certificate-type aggregate.
type TypeCount struct {
	CertificateType string `json:"certificate_type" db:"certificate_type"`
	Count           int    `json:"count" db:"count"`
}

// RegisterRow is one line of the applications register export.
type RegisterRow struct {
	ApplicationID   string  `db:"application_id"`
	CertificateType string  `db:"certificate_type"`
	FullName        string  `db:"full_name"`
	Status          string  `db:"status"`
	Track           string  `db:"verification_track"`
	CreatedAt       string  `db:"created_at"`
	UpdatedAt       string  `db:"updated_at"`
	CertificateNo   *string `db:"certificate_number"`
}

type Repository interface {
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	CountByType(ctx context.Context) ([]TypeCount, error)
	CertificatesIssued(ctx context.Context) (int, error)
	Register(ctx context.Context) ([]RegisterRow, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	counts := []StatusCount{}
	err := r.db.SelectContext(ctx, &counts,
		"SELECT status, COUNT(*) AS count FROM applications GROUP BY status ORDER BY count DESC")
	return counts, err
}

func (r *postgresRepository) CountByType(ctx context.Context) ([]TypeCount, error) {
	counts := []TypeCount{}
	err := r.db.SelectContext(ctx, &counts,
		"SELECT certificate_type, COUNT(*) AS count FROM applications GROUP BY certificate_type ORDER BY count DESC")
	return counts, err
}

func (r *postgresRepository) CertificatesIssued(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM certificates")
	return count, err
}

func (r *postgresRepository) Register(ctx context.Context) ([]RegisterRow, error) {
	rows := []RegisterRow{}
	query := `
		SELECT
			a.application_id,
			a.certificate_type,
			a.full_name,
			a.status,
			a.verification_track,
			to_char(a.created_at, 'YYYY-MM-DD HH24:MI') AS created_at,
			to_char(a.updated_at, 'YYYY-MM-DD HH24:MI') AS updated_at,
			c.certificate_number
		FROM applications a
		LEFT JOIN certificates c ON c.application_id = a.id
		ORDER BY a.created_at DESC`
	err := r.db.SelectContext(ctx, &rows, query)
	return rows, err
}
