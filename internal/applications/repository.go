package applications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"edistrict/certificate-portal/portal-backend/internal/certificates"
	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

// ListFilter scopes application listings. Zero value lists everything.
type ListFilter struct {
	OwnerID *uuid.UUID
	Status  *workflows.Status
}

// TransitionUpdate is the unit of work for one workflow transition. The
// repository applies it atomically: a compare-and-swap on status, the audit
// append, and the certificate insert (approvals only) either all happen or
// none do.
type TransitionUpdate struct {
	ApplicationID uuid.UUID
	FromStatus    workflows.Status
	ToStatus      workflows.Status
	Audit         AuditEntry

	RejectionReason   *string
	InfoRequested     *string
	InfoRequestedFrom *workflows.Status
	ClearInfoRequest  bool
	AdditionalInfo    *string

	Certificate *certificates.Certificate
}

type Repository interface {
	CreateApplication(ctx context.Context, app *Application) error
	GetApplicationByID(ctx context.Context, id uuid.UUID) (*Application, error)
	ListApplications(ctx context.Context, filter ListFilter) ([]Application, error)
	UpdateApplicantFields(ctx context.Context, app *Application) error
	Transition(ctx context.Context, update TransitionUpdate) error
	ListAuditEntries(ctx context.Context, applicationID uuid.UUID) ([]AuditEntry, error)
	ListStale(ctx context.Context, olderThan time.Time) ([]Application, error)
}

// errStaleStatus is returned by Transition when the compare-and-swap finds a
// different current status than expected.
var errStaleStatus = errors.New("status changed since read")

const pqUniqueViolation = "23505"

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateApplication(ctx context.Context, app *Application) error {
	query := `
		INSERT INTO applications (
			id, application_id, owner_id, certificate_type, full_name, father_name,
			date_of_birth, address, phone_number, email, purpose, additional_info,
			status, verification_track, created_at, updated_at
		) VALUES (
			:id, :application_id, :owner_id, :certificate_type, :full_name, :father_name,
			:date_of_birth, :address, :phone_number, :email, :purpose, :additional_info,
			:status, :verification_track, :created_at, :updated_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, app)
	if isUniqueViolation(err, "applications_application_id_key") {
		return errDuplicateCode
	}
	return err
}

func (r *postgresRepository) GetApplicationByID(ctx context.Context, id uuid.UUID) (*Application, error) {
	var app Application
	err := r.db.GetContext(ctx, &app, "SELECT * FROM applications WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &app, err
}

func (r *postgresRepository) ListApplications(ctx context.Context, filter ListFilter) ([]Application, error) {
	apps := []Application{}
	query := "SELECT * FROM applications WHERE 1=1"
	var args []interface{}
	argCount := 1

	if filter.OwnerID != nil {
		query += fmt.Sprintf(" AND owner_id = $%d", argCount)
		args = append(args, *filter.OwnerID)
		argCount++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filter.Status)
		argCount++
	}
	query += " ORDER BY created_at DESC"

	err := r.db.SelectContext(ctx, &apps, query, args...)
	return apps, err
}

func (r *postgresRepository) UpdateApplicantFields(ctx context.Context, app *Application) error {
	query := `
		UPDATE applications SET
			full_name = :full_name,
			father_name = :father_name,
			date_of_birth = :date_of_birth,
			address = :address,
			phone_number = :phone_number,
			email = :email,
			purpose = :purpose,
			additional_info = :additional_info,
			updated_at = :updated_at
		WHERE id = :id AND status = 'pending'`
	res, err := r.db.NamedExecContext(ctx, query, app)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errStaleStatus
	}
	return nil
}

func (r *postgresRepository) Transition(ctx context.Context, update TransitionUpdate) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.swapStatus(ctx, tx, update); err != nil {
		return err
	}

	if err := insertAudit(ctx, tx, update.Audit); err != nil {
		return err
	}

	if update.Certificate != nil {
		if err := insertCertificate(ctx, tx, update.Certificate); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *postgresRepository) swapStatus(ctx context.Context, tx *sqlx.Tx, update TransitionUpdate) error {
	query := `
		UPDATE applications SET
			status = $1,
			rejection_reason = COALESCE($2, rejection_reason),
			additional_info_requested = CASE WHEN $6 THEN NULL ELSE COALESCE($3, additional_info_requested) END,
			info_requested_from = CASE WHEN $6 THEN NULL ELSE COALESCE($4, info_requested_from) END,
			additional_info = COALESCE($5, additional_info),
			updated_at = now()
		WHERE id = $7 AND status = $8`
	res, err := tx.ExecContext(ctx, query,
		update.ToStatus,
		update.RejectionReason,
		update.InfoRequested,
		update.InfoRequestedFrom,
		update.AdditionalInfo,
		update.ClearInfoRequest,
		update.ApplicationID,
		update.FromStatus,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errStaleStatus
	}
	return nil
}

func insertAudit(ctx context.Context, tx *sqlx.Tx, entry AuditEntry) error {
	query := `
		INSERT INTO application_audit (
			id, application_id, from_status, to_status, actor_id, actor_role, reason, created_at
		) VALUES (
			:id, :application_id, :from_status, :to_status, :actor_id, :actor_role, :reason, :created_at
		)`
	_, err := tx.NamedExecContext(ctx, query, entry)
	return err
}

func insertCertificate(ctx context.Context, tx *sqlx.Tx, cert *certificates.Certificate) error {
	query := `
		INSERT INTO certificates (
			id, certificate_number, certificate_type, issued_to, application_id,
			application_code, issued_date, valid_until, digital_signature, created_at
		) VALUES (
			:id, :certificate_number, :certificate_type, :issued_to, :application_id,
			:application_code, :issued_date, :valid_until, :digital_signature, :created_at
		)`
	_, err := tx.NamedExecContext(ctx, query, cert)
	if isUniqueViolation(err, "certificates_application_id_key") {
		return certificates.ErrDuplicateForApplication
	}
	if isUniqueViolation(err, "certificates_certificate_number_key") {
		return certificates.ErrDuplicateNumber
	}
	return err
}

func (r *postgresRepository) ListAuditEntries(ctx context.Context, applicationID uuid.UUID) ([]AuditEntry, error) {
	entries := []AuditEntry{}
	err := r.db.SelectContext(ctx, &entries,
		"SELECT * FROM application_audit WHERE application_id = $1 ORDER BY created_at ASC", applicationID)
	return entries, err
}

func (r *postgresRepository) ListStale(ctx context.Context, olderThan time.Time) ([]Application, error) {
	apps := []Application{}
	err := r.db.SelectContext(ctx, &apps,
		"SELECT * FROM applications WHERE status NOT IN ('approved', 'rejected') AND updated_at < $1 ORDER BY updated_at ASC",
		olderThan)
	return apps, err
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
	}
	return false
}
