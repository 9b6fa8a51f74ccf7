package certstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"commonsource/internal/certificate"
	"commonsource/pkg/platform/sentinel"
)

// Schema is the certificates table DDL. Applied on startup; idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS certificates (
	subject_key   TEXT PRIMARY KEY,
	serial_number TEXT,
	certificate   JSONB,
	did           TEXT NOT NULL DEFAULT '',
	vc_data       JSONB,
	keyring       JSONB,
	issued_at     TIMESTAMPTZ NOT NULL,
	revoked_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS certificates_serial_idx ON certificates (serial_number);
`

var _ Store = (*PostgresStore)(nil)

// Clock abstracts time for testability.
type Clock func() time.Time

// PostgresStore persists certificate records in PostgreSQL. The subject-key
// primary key plus conditional updates give the atomic first-writer-wins
// claim without a separate lock.
type PostgresStore struct {
	db    *sql.DB
	clock Clock
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed certificate store.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// EnsureSchema applies the table DDL.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure certificates schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Claim(ctx context.Context, subjectKey, serialNumber string) error {
	// The conditional upsert only takes the slot when no live certificate
	// occupies it; zero affected rows means another issuance won the race.
	query := `
		INSERT INTO certificates (subject_key, serial_number, issued_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_key) DO UPDATE SET
			serial_number = EXCLUDED.serial_number,
			issued_at     = EXCLUDED.issued_at,
			revoked_at    = NULL
		WHERE certificates.certificate IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, subjectKey, serialNumber, s.clock())
	if err != nil {
		return fmt.Errorf("claim subject slot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim subject slot: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("subject already has a certificate: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) Release(ctx context.Context, subjectKey, serialNumber string) error {
	// Drop bare claim rows; keep rows carrying DID continuity data.
	delQuery := `
		DELETE FROM certificates
		WHERE subject_key = $1 AND serial_number = $2 AND certificate IS NULL
		  AND did = '' AND vc_data IS NULL
	`
	result, err := s.db.ExecContext(ctx, delQuery, subjectKey, serialNumber)
	if err != nil {
		return fmt.Errorf("release subject slot: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		return nil
	}

	clearQuery := `
		UPDATE certificates SET serial_number = NULL
		WHERE subject_key = $1 AND serial_number = $2 AND certificate IS NULL
	`
	if _, err := s.db.ExecContext(ctx, clearQuery, subjectKey, serialNumber); err != nil {
		return fmt.Errorf("release subject slot: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveCertificate(ctx context.Context, subjectKey, serialNumber string, doc *certificate.Document, did string, vcData, keyring json.RawMessage) error {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode certificate: %w", err)
	}

	query := `
		UPDATE certificates SET
			certificate = $3,
			did         = CASE WHEN $4 = '' THEN did ELSE $4 END,
			vc_data     = COALESCE($5, vc_data),
			keyring     = $6,
			issued_at   = $7,
			revoked_at  = NULL
		WHERE subject_key = $1 AND serial_number = $2 AND certificate IS NULL
	`
	var vcArg any
	if len(vcData) > 0 {
		vcArg = []byte(vcData)
	}
	var keyringArg any
	if len(keyring) > 0 {
		keyringArg = []byte(keyring)
	}
	result, err := s.db.ExecContext(ctx, query, subjectKey, serialNumber, encoded, did, vcArg, keyringArg, s.clock())
	if err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no claim for subject: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, subjectKey string) (*Record, error) {
	query := `
		SELECT subject_key, COALESCE(serial_number, ''), certificate, did, vc_data, keyring, issued_at, revoked_at
		FROM certificates WHERE subject_key = $1
	`
	record := &Record{}
	var certRaw, vcRaw, keyringRaw []byte
	var revokedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, subjectKey).Scan(
		&record.SubjectKey,
		&record.SerialNumber,
		&certRaw,
		&record.DID,
		&vcRaw,
		&keyringRaw,
		&record.IssuedAt,
		&revokedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no record for subject: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get certificate record: %w", err)
	}

	if len(certRaw) > 0 {
		doc := &certificate.Document{}
		if err := json.Unmarshal(certRaw, doc); err != nil {
			return nil, fmt.Errorf("decode certificate record: %w", err)
		}
		record.Certificate = doc
	}
	if len(vcRaw) > 0 {
		record.VCData = json.RawMessage(vcRaw)
	}
	if len(keyringRaw) > 0 {
		record.Keyring = json.RawMessage(keyringRaw)
	}
	if revokedAt.Valid {
		record.RevokedAt = &revokedAt.Time
	}
	return record, nil
}

func (s *PostgresStore) ClearCertificate(ctx context.Context, subjectKey string) error {
	query := `
		UPDATE certificates SET certificate = NULL, keyring = NULL, revoked_at = $2
		WHERE subject_key = $1 AND certificate IS NOT NULL
	`
	result, err := s.db.ExecContext(ctx, query, subjectKey, s.clock())
	if err != nil {
		return fmt.Errorf("clear certificate: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("clear certificate: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no live certificate for subject: %w", sentinel.ErrNotFound)
	}
	return nil
}
