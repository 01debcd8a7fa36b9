package documents

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListDocuments(ctx context.Context, applicationID uuid.UUID) ([]Document, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateDocument(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (
			id, application_id, document_type, file_name, file_size,
			storage_path, uploaded_by, uploaded_at
		) VALUES (
			:id, :application_id, :document_type, :file_name, :file_size,
			:storage_path, :uploaded_by, :uploaded_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, doc)
	return err
}

func (r *postgresRepository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := r.db.GetContext(ctx, &doc, "SELECT * FROM documents WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &doc, err
}

func (r *postgresRepository) ListDocuments(ctx context.Context, applicationID uuid.UUID) ([]Document, error) {
	docs := []Document{}
	err := r.db.SelectContext(ctx, &docs,
		"SELECT * FROM documents WHERE application_id = $1 ORDER BY uploaded_at DESC", applicationID)
	return docs, err
}
