package favorites

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autofilter/autofilter/internal/observability"
)

//go:embed sql/postgres/*.sql
var migrationsFS embed.FS

const pgErrUniqueViolation = "23505"

// NewPool connects to Postgres and verifies the connection.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema files in lexical order. Every file is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := fs.ReadDir(migrationsFS, "sql/postgres")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := fs.ReadFile(migrationsFS, "sql/postgres/"+f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
	}
	return nil
}

// PostgresStore keeps favorites in the dexscreener_filter table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Add(ctx context.Context, rec Record) (err error) {
	defer func() { observability.RecordFavoritesQuery("add", err) }()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dexscreener_filter (id, filter, user_id, created_at) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.Filter, rec.UserID, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert favorite: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, userID string) (out []Record, err error) {
	defer func() { observability.RecordFavoritesQuery("list", err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT id, filter, user_id, created_at
		FROM dexscreener_filter
		WHERE user_id = $1
		ORDER BY created_at DESC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	out, err = pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("scan favorites: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string, id uuid.UUID) (rec Record, err error) {
	defer func() { observability.RecordFavoritesQuery("get", err) }()

	rows, err := s.pool.Query(ctx, `
		SELECT id, filter, user_id, created_at
		FROM dexscreener_filter
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return Record{}, fmt.Errorf("get favorite: %w", err)
	}
	rec, err = pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get favorite: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string, id uuid.UUID) (err error) {
	defer func() { observability.RecordFavoritesQuery("delete", err) }()

	tag, err := s.pool.Exec(ctx, `DELETE FROM dexscreener_filter WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Filter, &r.UserID, &r.CreatedAt)
	return r, err
}
