package holders

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// CountStore persists the holder count per marker mint. Persistence is
// best-effort: the in-memory count stays authoritative for the process
// lifetime when writes fail.
type CountStore interface {
	Load(ctx context.Context, mint solana.PublicKey) (uint64, error)
	Upsert(ctx context.Context, mint solana.PublicKey, count uint64) error
}

// PGStore is the Postgres CountStore. Writes are idempotent upserts keyed by
// mint, so sharing the table across processes is safe.
type PGStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewPGStore(log *slog.Logger, pool *pgxpool.Pool) (*PGStore, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &PGStore{log: log, pool: pool}, nil
}

func (s *PGStore) Load(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT count FROM holder_counts WHERE mint = $1`,
		mint.String(),
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load holder count: %w", err)
	}
	return uint64(count), nil
}

func (s *PGStore) Upsert(ctx context.Context, mint solana.PublicKey, count uint64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO holder_counts (mint, count, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (mint) DO UPDATE SET count = EXCLUDED.count, updated_at = now()`,
		mint.String(), int64(count),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert holder count: %w", err)
	}
	return nil
}

// RunMigrations brings the holder_counts schema up to date using goose.
func RunMigrations(log *slog.Logger, connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	log.Info("holders: running database migrations")
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
