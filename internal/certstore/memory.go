package certstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"commonsource/internal/certificate"
	"commonsource/pkg/platform/sentinel"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore mirrors the postgres semantics for tests and single-node
// development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

func (s *MemoryStore) Claim(_ context.Context, subjectKey, serialNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[subjectKey]; ok {
		if existing.Live() {
			return fmt.Errorf("subject already has a certificate: %w", sentinel.ErrConflict)
		}
		existing.SerialNumber = serialNumber
		existing.IssuedAt = s.now()
		existing.RevokedAt = nil
		return nil
	}

	s.records[subjectKey] = &Record{
		SubjectKey:   subjectKey,
		SerialNumber: serialNumber,
		IssuedAt:     s.now(),
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, subjectKey, serialNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[subjectKey]
	if !ok || existing.Live() || existing.SerialNumber != serialNumber {
		return nil
	}
	if existing.DID == "" && len(existing.VCData) == 0 {
		delete(s.records, subjectKey)
		return nil
	}
	existing.SerialNumber = ""
	return nil
}

func (s *MemoryStore) SaveCertificate(_ context.Context, subjectKey, serialNumber string, doc *certificate.Document, did string, vcData, keyring json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[subjectKey]
	if !ok || existing.Live() || existing.SerialNumber != serialNumber {
		return fmt.Errorf("no claim for subject: %w", sentinel.ErrNotFound)
	}

	existing.Certificate = doc
	existing.Keyring = keyring
	existing.IssuedAt = s.now()
	existing.RevokedAt = nil
	if did != "" {
		existing.DID = did
	}
	if len(vcData) > 0 {
		existing.VCData = vcData
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, subjectKey string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, ok := s.records[subjectKey]
	if !ok {
		return nil, fmt.Errorf("no record for subject: %w", sentinel.ErrNotFound)
	}
	copied := *existing
	return &copied, nil
}

func (s *MemoryStore) ClearCertificate(_ context.Context, subjectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[subjectKey]
	if !ok || !existing.Live() {
		return fmt.Errorf("no live certificate for subject: %w", sentinel.ErrNotFound)
	}

	revokedAt := s.now()
	existing.Certificate = nil
	existing.Keyring = nil
	existing.RevokedAt = &revokedAt
	return nil
}
