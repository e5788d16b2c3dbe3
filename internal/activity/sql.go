package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/evansims/fgacache/internal/ranking"
	"github.com/evansims/fgacache/pkg/tuple"
)

// candidateFactor controls how many raw rows a TopTuples query pulls per
// requested tuple, so the ranking pass has a cold tail to cut.
const candidateFactor = 4

// SQLTracker persists check activity in a relational store so warming
// survives restarts and can aggregate across several agent processes.
type SQLTracker struct {
	db      *sql.DB
	engine  string
	builder sq.StatementBuilderType
}

var _ Tracker = (*SQLTracker)(nil)

// NewSQLTracker opens the activity store. engine is "postgres", "mysql" or
// "sqlite". The schema must already be migrated (fgacache migrate).
func NewSQLTracker(engine, uri string) (*SQLTracker, error) {
	var driver string
	builder := sq.StatementBuilder.PlaceholderFormat(sq.Question)

	switch engine {
	case "postgres":
		driver = "pgx"
		builder = builder.PlaceholderFormat(sq.Dollar)
	case "mysql":
		driver = "mysql"
	case "sqlite":
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported activity store engine %q", engine)
	}

	db, err := sql.Open(driver, uri)
	if err != nil {
		return nil, fmt.Errorf("open activity store: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping activity store: %w", err)
	}

	return &SQLTracker{db: db, engine: engine, builder: builder}, nil
}

func (t *SQLTracker) RecordCheck(ctx context.Context, connection string, k tuple.TupleKey, at time.Time) error {
	insert := t.builder.
		Insert("check_activity").
		Columns("connection_name", "user_key", "relation", "object", "checks", "last_checked_at").
		Values(connection, k.User, k.Relation, k.Object, 1, at)

	switch t.engine {
	case "mysql":
		insert = insert.Suffix("ON DUPLICATE KEY UPDATE checks = checks + 1, last_checked_at = VALUES(last_checked_at)")
	default:
		insert = insert.Suffix("ON CONFLICT (connection_name, user_key, relation, object) DO UPDATE SET checks = check_activity.checks + 1, last_checked_at = excluded.last_checked_at")
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build activity upsert: %w", err)
	}

	if _, err := t.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record check activity: %w", err)
	}

	return nil
}

func (t *SQLTracker) TopTuples(ctx context.Context, connection string, limit int) ([]tuple.TupleKey, error) {
	if limit <= 0 {
		return nil, nil
	}

	query, args, err := t.builder.
		Select("user_key", "relation", "object", "checks", "last_checked_at").
		From("check_activity").
		Where(sq.Eq{"connection_name": connection}).
		OrderBy("checks DESC", "last_checked_at DESC").
		Limit(uint64(limit * candidateFactor)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build activity query: %w", err)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query check activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []ranking.Candidate
	for rows.Next() {
		var c ranking.Candidate
		if err := rows.Scan(&c.Tuple.User, &c.Tuple.Relation, &c.Tuple.Object, &c.Checks, &c.LastCheck); err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}

	return ranking.Rank(candidates, time.Now().UTC(), limit), nil
}

func (t *SQLTracker) Close() error {
	return t.db.Close()
}
