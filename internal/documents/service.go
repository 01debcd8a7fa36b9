package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"edistrict/certificate-portal/portal-backend/internal/applications"
	"edistrict/certificate-portal/portal-backend/pkg/storage"
	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

var (
	// ErrNotFound indicates the document does not exist or is not visible to
	// the requesting actor.
	ErrNotFound = errors.New("document not found")

	// ErrApplicationClosed indicates uploads are no longer accepted because
	// the application reached a terminal state.
	ErrApplicationClosed = errors.New("application is closed for uploads")
)

type Service interface {
	Upload(ctx context.Context, req UploadRequest) (*Document, error)
	List(ctx context.Context, applicationID uuid.UUID, actor applications.Actor) ([]Document, error)
	Download(ctx context.Context, id uuid.UUID, actor applications.Actor) (io.ReadCloser, *Document, error)
}

// UploadRequest carries one supporting file destined for the blob store.
type UploadRequest struct {
	ApplicationID uuid.UUID
	DocumentType  string
	FileName      string
	FileSize      int64
	FileContent   io.Reader
	Actor         applications.Actor
}

type documentService struct {
	repo   Repository
	apps   applications.Repository
	blobs  storage.S3Client
	bucket string
	logger *zap.Logger
}

func NewService(repo Repository, apps applications.Repository, blobs storage.S3Client, bucket string, logger *zap.Logger) Service {
	return &documentService{
		repo:   repo,
		apps:   apps,
		blobs:  blobs,
		bucket: bucket,
		logger: logger,
	}
}

func (s *documentService) Upload(ctx context.Context, req UploadRequest) (*Document, error) {
	docType, err := ParseDocumentType(req.DocumentType)
	if err != nil {
		return nil, &applications.ValidationError{Field: "document_type", Message: err.Error()}
	}
	if req.FileName == "" {
		return nil, &applications.ValidationError{Field: "file_name", Message: "must not be blank"}
	}

	app, err := s.apps.GetApplicationByID(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app == nil || app.OwnerID != req.Actor.ID {
		return nil, applications.ErrNotFound
	}
	if workflows.IsTerminal(app.Status) {
		return nil, ErrApplicationClosed
	}

	docID := uuid.New()
	key := storageKey(req.ApplicationID, docType, docID, req.FileName)
	if err := s.blobs.Upload(ctx, s.bucket, key, req.FileContent); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:            docID,
		ApplicationID: req.ApplicationID,
		DocumentType:  docType,
		FileName:      req.FileName,
		FileSize:      req.FileSize,
		StoragePath:   key,
		UploadedBy:    req.Actor.ID,
		UploadedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("document uploaded",
		zap.String("application_id", req.ApplicationID.String()),
		zap.String("document_type", string(docType)),
		zap.String("file_name", req.FileName))

	return doc, nil
}

func (s *documentService) List(ctx context.Context, applicationID uuid.UUID, actor applications.Actor) ([]Document, error) {
	if err := s.checkVisibility(ctx, applicationID, actor); err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, applicationID)
}

func (s *documentService) Download(ctx context.Context, id uuid.UUID, actor applications.Actor) (io.ReadCloser, *Document, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, ErrNotFound
	}
	if err := s.checkVisibility(ctx, doc.ApplicationID, actor); err != nil {
		return nil, nil, err
	}

	reader, err := s.blobs.Download(ctx, s.bucket, doc.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return reader, doc, nil
}

// checkVisibility enforces the same read scoping as application reads:
// citizens see only their own applications' documents.
func (s *documentService) checkVisibility(ctx context.Context, applicationID uuid.UUID, actor applications.Actor) error {
	app, err := s.apps.GetApplicationByID(ctx, applicationID)
	if err != nil {
		return err
	}
	if app == nil {
		return applications.ErrNotFound
	}
	if !actor.IsOfficial() && app.OwnerID != actor.ID {
		return applications.ErrNotFound
	}
	return nil
}

func storageKey(applicationID uuid.UUID, docType DocumentType, docID uuid.UUID, fileName string) string {
	return fmt.Sprintf("applications/%s/documents/%s/%s_%s", applicationID, docType, docID, fileName)
}
