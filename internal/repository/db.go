package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = pgx.ErrNoRows

// ErrRevisionConflict is returned when an update loses an optimistic concurrency check.
var ErrRevisionConflict = errors.New("revision conflict")

// ErrDuplicate is returned when a write violates a uniqueness constraint.
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Page bounds list queries.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized(defaultLimit int) Page {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Repositories groups every store the lifecycle core touches.
type Repositories struct {
	Tickets     TicketRepository
	Policies    SlaPolicyRepository
	Tracking    SlaTrackingRepository
	History     TicketHistoryRepository
	Staff       StaffRepository
	Departments DepartmentRepository
}

// Store exposes repositories and a transaction boundary over them.
type Store interface {
	Repos() Repositories
	// WithinTx runs fn against repositories bound to a single transaction.
	// A non-nil error from fn rolls every write back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds a Store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) Repos() Repositories {
	return newRepositories(s.pool)
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, newRepositories(tx))
	})
}

func newRepositories(db DBTX) Repositories {
	return Repositories{
		Tickets:     NewTicketRepository(db),
		Policies:    NewSlaPolicyRepository(db),
		Tracking:    NewSlaTrackingRepository(db),
		History:     NewTicketHistoryRepository(db),
		Staff:       NewStaffRepository(db),
		Departments: NewDepartmentRepository(db),
	}
}
