package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/models"
)

// registrationLockKey is the pg_advisory_lock key serializing registrations
// across every process sharing the database.
const registrationLockKey int64 = 0x66616365 // "face"

const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(context.Background(), cfg.DSN(), cfg.MaxConns)
}

func NewPostgresStoreFromDSN(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const identityColumns = `identifier, display_name, embedding, embedding_ref, image_ref, created_at, updated_at`

func scanIdentity(row pgx.Row) (*models.Identity, error) {
	var (
		id  models.Identity
		vec pgvector.Vector
	)
	if err := row.Scan(&id.Identifier, &id.DisplayName, &vec, &id.EmbeddingRef, &id.ImageRef, &id.CreatedAt, &id.UpdatedAt); err != nil {
		return nil, err
	}
	id.Embedding = vec.Slice()
	return &id, nil
}

// Insert stores a new identity. Retired identifiers are refused the same way
// as active ones.
func (s *PostgresStore) Insert(ctx context.Context, identity *models.Identity) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (identifier, display_name, embedding, embedding_ref, image_ref)
		 SELECT $1, $2, $3, $4, $5
		 WHERE NOT EXISTS (SELECT 1 FROM retired_identifiers WHERE identifier = $1)
		 RETURNING created_at, updated_at`,
		identity.Identifier, identity.DisplayName, pgvector.NewVector(identity.Embedding),
		identity.EmbeddingRef, identity.ImageRef,
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("insert identity %s: %w", identity.Identifier, ErrIdentifierExists)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert identity %s: %w", identity.Identifier, ErrIdentifierExists)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, identifier string) (*models.Identity, error) {
	id, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE identifier = $1`, identifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.Identity, error) {
	id, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE display_name = $1
		 ORDER BY created_at DESC, identifier DESC LIMIT 1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find identity by name: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) IdentifierTaken(ctx context.Context, identifier string) (bool, error) {
	var taken bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE identifier = $1)
		     OR EXISTS (SELECT 1 FROM retired_identifiers WHERE identifier = $1)`, identifier,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check identifier: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) MaxIdentifier(ctx context.Context, prefix string) (string, error) {
	var max *string
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(identifier) FROM (
		     SELECT identifier FROM identities WHERE starts_with(identifier, $1)
		     UNION ALL
		     SELECT identifier FROM retired_identifiers WHERE starts_with(identifier, $1)
		 ) ids`, prefix,
	).Scan(&max)
	if err != nil {
		return "", fmt.Errorf("max identifier: %w", err)
	}
	if max == nil {
		return "", nil
	}
	return *max, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM identities ORDER BY created_at, identifier`)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, *id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

func (s *PostgresStore) List(ctx context.Context, q models.ListQuery) ([]models.Identity, int, error) {
	where := ""
	args := []interface{}{}
	if q.Search != "" {
		where = `WHERE identifier ILIKE '%' || $1 || '%' OR display_name ILIKE '%' || $1 || '%'`
		args = append(args, q.Search)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count identities: %w", err)
	}

	query := `SELECT identifier, display_name, embedding_ref, image_ref, created_at, updated_at
		FROM identities ` + where + ` ORDER BY created_at DESC, identifier DESC`
	if q.PageSize > 0 {
		args = append(args, q.PageSize, q.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		var id models.Identity
		if err := rows.Scan(&id.Identifier, &id.DisplayName, &id.EmbeddingRef, &id.ImageRef, &id.CreatedAt, &id.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, total, nil
}

// Delete removes the row and records the identifier as retired in one transaction.
func (s *PostgresStore) Delete(ctx context.Context, identifier string) (bool, error) {
	var deleted bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM identities WHERE identifier = $1`, identifier)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		deleted = true
		_, err = tx.Exec(ctx,
			`INSERT INTO retired_identifiers (identifier) VALUES ($1) ON CONFLICT DO NOTHING`, identifier)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete identity: %w", err)
	}
	return deleted, nil
}

func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (models.Stats, error) {
	var st models.Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM identities),
		     (SELECT COUNT(*) FROM identities WHERE created_at >= $1),
		     (SELECT COUNT(*) FROM retired_identifiers),
		     (SELECT MAX(created_at) FROM identities)`, since,
	).Scan(&st.TotalIdentities, &st.RegisteredToday, &st.RetiredCount, &st.LastRegisteredAt)
	if err != nil {
		return models.Stats{}, fmt.Errorf("identity stats: %w", err)
	}
	return st, nil
}

// LockRegistrations takes a session-level advisory lock on a dedicated
// connection. The returned func releases the lock and the connection.
func (s *PostgresStore) LockRegistrations(ctx context.Context) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, registrationLockKey); err != nil {
		conn.Release()
		return nil, fmt.Errorf("lock registrations: %w", err)
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, registrationLockKey); err != nil {
			// A session lock outlives a failed unlock; drop the connection so the server frees it.
			slog.Error("unlock registrations", "error", err)
			_ = conn.Conn().Close(unlockCtx)
		}
		conn.Release()
	}, nil
}
