// Package relational implements sessionmap.Map against the single-table
// schema spec.md §6 defines:
//
//	CREATE TABLE sessions_map (
//	  session_ids  TEXT PRIMARY KEY,
//	  session_uri  TEXT NOT NULL,
//	  session_caps TEXT NULL        -- JSON
//	);
//
// Grounded on the pgxpool client in
// lk2023060901-xDooria/pkg/database/postgres (a struct wrapping a pool,
// context-scoped Exec/Query calls, errors wrapped with fmt.Errorf/%w)
// and on squirrel for building the three parameterized statement shapes,
// the way the rest of the pack reaches for a query builder rather than
// hand-concatenating SQL.
package relational

import (
	"context"
	"encoding/json"
	"net/url"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/graverr"
)

const table = "sessions_map"

// Map is the Postgres-backed sessionmap.Map.
type Map struct {
	pool   *pgxpool.Pool
	owned  bool
	closed bool
}

// New wraps an already-open pgxpool.Pool. The caller owns the pool's
// lifecycle; Close on this Map does not close it.
func New(pool *pgxpool.Pool) *Map {
	return &Map{pool: pool}
}

// Connect opens a new pool for connString and ensures sessions_map
// exists. Returns a graverr.Config error on connect or migrate failure,
// per spec.md §6's CONFIG taxonomy entry for startup-time backend
// initialization failures.
func Connect(ctx context.Context, connString string) (*Map, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, graverr.NewConfig("failed to open session map database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, graverr.NewConfig("failed to connect to session map database", err)
	}
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
		session_ids  TEXT PRIMARY KEY,
		session_uri  TEXT NOT NULL,
		session_caps TEXT NULL
	)`); err != nil {
		pool.Close()
		return nil, graverr.NewConfig("failed to migrate session map database", err)
	}
	return &Map{pool: pool, owned: true}, nil
}

// capsToJSON JSON-encodes caps for storage in session_caps.
func capsToJSON(caps domain.Capabilities) (string, error) {
	b, err := json.Marshal(caps)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// jsonToCaps decodes session_caps back into Capabilities. A NULL column
// (nil raw) decodes to an empty, non-nil Capabilities, per spec.md §4.5.
func jsonToCaps(raw *string) (domain.Capabilities, error) {
	caps := domain.Capabilities{}
	if raw == nil {
		return caps, nil
	}
	if err := json.Unmarshal([]byte(*raw), &caps); err != nil {
		return nil, err
	}
	return caps, nil
}

func (m *Map) Add(ctx context.Context, session domain.SessionRecord) (bool, error) {
	capsJSON, err := capsToJSON(session.Capabilities)
	if err != nil {
		return false, graverr.NewStorage("failed to marshal session capabilities", err)
	}
	query, args, err := sq.Insert(table).
		Columns("session_ids", "session_uri", "session_caps").
		Values(session.SessionID.String(), session.URI, capsJSON).
		Suffix("ON CONFLICT (session_ids) DO UPDATE SET session_uri = EXCLUDED.session_uri, session_caps = EXCLUDED.session_caps").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, graverr.NewInternal("failed to build insert statement", err)
	}
	tag, err := m.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, graverr.NewStorage("failed to write session", err)
	}
	return tag.RowsAffected() >= 1, nil
}

func (m *Map) Get(ctx context.Context, id uuid.UUID) (domain.SessionRecord, error) {
	query, args, err := sq.Select("session_uri", "session_caps").
		From(table).
		Where(sq.Eq{"session_ids": id.String()}).
		Limit(1).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return domain.SessionRecord{}, graverr.NewInternal("failed to build select statement", err)
	}
	row := m.pool.QueryRow(ctx, query, args...)
	var uriStr string
	var capsJSON *string
	if err := row.Scan(&uriStr, &capsJSON); err != nil {
		if err == pgx.ErrNoRows {
			return domain.SessionRecord{}, graverr.NewNoSuchSession("no session with id "+id.String(), nil)
		}
		return domain.SessionRecord{}, graverr.NewStorage("failed to read session", err)
	}
	if _, err := url.Parse(uriStr); err != nil {
		return domain.SessionRecord{}, graverr.NewNoSuchSession("stored session uri is invalid: "+uriStr, err)
	}
	caps, err := jsonToCaps(capsJSON)
	if err != nil {
		return domain.SessionRecord{}, graverr.NewStorage("failed to unmarshal session capabilities", err)
	}
	return domain.SessionRecord{SessionID: id, URI: uriStr, Capabilities: caps}, nil
}

func (m *Map) Remove(ctx context.Context, id uuid.UUID) error {
	query, args, err := sq.Delete(table).
		Where(sq.Eq{"session_ids": id.String()}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return graverr.NewInternal("failed to build delete statement", err)
	}
	if _, err := m.pool.Exec(ctx, query, args...); err != nil {
		return graverr.NewStorage("failed to delete session", err)
	}
	return nil
}

func (m *Map) IsReady() bool {
	if m.closed {
		return false
	}
	return m.pool.Ping(context.Background()) == nil
}

// Close releases the connection pool if this Map opened it via Connect;
// a Map wrapping a caller-supplied pool (New) leaves the pool open.
func (m *Map) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.owned {
		m.pool.Close()
	}
	return nil
}
