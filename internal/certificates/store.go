package certificates

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store reads issued certificates. Writes happen inside the approval
// transaction owned by the applications repository, except for the memory
// store used in tests, which exposes Create with the same uniqueness
// semantics as the database constraints.
type Store interface {
	GetByNumber(ctx context.Context, number string) (*Certificate, error)
	GetByApplicationID(ctx context.Context, applicationID uuid.UUID) (*Certificate, error)
}

type postgresStore struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) GetByNumber(ctx context.Context, number string) (*Certificate, error) {
	var cert Certificate
	err := s.db.GetContext(ctx, &cert, "SELECT * FROM certificates WHERE certificate_number = $1", number)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (s *postgresStore) GetByApplicationID(ctx context.Context, applicationID uuid.UUID) (*Certificate, error) {
	var cert Certificate
	err := s.db.GetContext(ctx, &cert, "SELECT * FROM certificates WHERE application_id = $1", applicationID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// MemoryStore is a mutex-guarded in-memory certificate store mirroring the
// database uniqueness constraints.
type MemoryStore struct {
	mu            sync.RWMutex
	byNumber      map[string]*Certificate
	byApplication map[uuid.UUID]*Certificate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byNumber:      make(map[string]*Certificate),
		byApplication: make(map[uuid.UUID]*Certificate),
	}
}

// Create persists a certificate, enforcing one per application and globally
// unique numbers.
func (s *MemoryStore) Create(_ context.Context, cert *Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byApplication[cert.ApplicationID]; ok {
		return ErrDuplicateForApplication
	}
	if _, ok := s.byNumber[cert.CertificateNumber]; ok {
		return ErrDuplicateNumber
	}
	cp := *cert
	s.byNumber[cert.CertificateNumber] = &cp
	s.byApplication[cert.ApplicationID] = &cp
	return nil
}

func (s *MemoryStore) GetByNumber(_ context.Context, number string) (*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.byNumber[number]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cert
	return &cp, nil
}

func (s *MemoryStore) GetByApplicationID(_ context.Context, applicationID uuid.UUID) (*Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.byApplication[applicationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cert
	return &cp, nil
}

// Count returns the number of stored certificates.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byNumber)
}
