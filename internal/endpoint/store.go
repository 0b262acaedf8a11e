package endpoint

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/autopeer-io/agentupgrade/pkg/log"
	"github.com/autopeer-io/agentupgrade/pkg/options"
)

const agentTable = "agent"

// ErrNotFound is returned when the registry holds no agent with the requested ID.
var ErrNotFound = errors.New("agent does not exist")

// Store is the read side of the agent registry.
type Store interface {
	// Get loads the current record of a single agent.
	Get(ctx context.Context, id string) (*Endpoint, error)

	// ListOutdated returns the agents running a version older than reference.
	ListOutdated(ctx context.Context, reference string) ([]*Endpoint, error)
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore reads agent records from the SQLite registry maintained by the manager.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens the registry at opts.Path read-only. The file must already exist;
// the manager owns its schema and contents.
func Open(opts *options.DatabaseOptions) (*SQLiteStore, error) {
	if _, err := os.Stat(opts.Path); err != nil {
		return nil, errors.Wrapf(err, "agent registry %s is not accessible", opts.Path)
	}

	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve agent registry path %s", opts.Path)
	}
	dsn := (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open agent registry %s failed", opts.Path)
	}
	stmt := fmt.Sprintf("PRAGMA busy_timeout=%d;", opts.BusyTimeout.Milliseconds())
	if _, err := db.Exec(stmt); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "open agent registry %s failed", opts.Path)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSchema creates the agent table on a writable connection if it does
// not exist yet. It is meant for demo and test registries.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'never_connected',
		version TEXT NOT NULL DEFAULT '',
		last_keepalive INTEGER
	)`, agentTable)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "create agent table failed")
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Endpoint, error) {
	query := fmt.Sprintf(`SELECT id, name, ip, status, version, last_keepalive FROM %s WHERE id = ?`, agentTable)
	row := s.db.QueryRowContext(ctx, query, id)

	ep, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "agent %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load agent %s failed", id)
	}
	return ep, nil
}

// ListOutdated implements Store. The manager's own record and agents that never
// reported a parseable version are left out. An unparseable reference is an error.
func (s *SQLiteStore) ListOutdated(ctx context.Context, reference string) ([]*Endpoint, error) {
	ref, err := parseVersion(reference)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid reference version %q", reference)
	}

	query := fmt.Sprintf(`SELECT id, name, ip, status, version, last_keepalive FROM %s WHERE id != ? ORDER BY id`, agentTable)
	rows, err := s.db.QueryContext(ctx, query, ManagerID)
	if err != nil {
		return nil, errors.Wrap(err, "query agents failed")
	}
	defer rows.Close()

	var outdated []*Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan agent row failed")
		}
		if ep.Version == "" {
			continue
		}
		v, err := parseVersion(ep.Version)
		if err != nil {
			log.Debug("Skipping agent with unparseable version", "agent", ep.ID, "version", ep.Version, err)
			continue
		}
		if v.LT(ref) {
			outdated = append(outdated, ep)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate agents failed")
	}
	return outdated, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row scanner) (*Endpoint, error) {
	var (
		ep        Endpoint
		status    string
		keepAlive sql.NullInt64
	)
	if err := row.Scan(&ep.ID, &ep.Name, &ep.IP, &status, &ep.Version, &keepAlive); err != nil {
		return nil, err
	}
	ep.Status = Status(status)
	if keepAlive.Valid {
		ep.LastKeepAlive = time.Unix(keepAlive.Int64, 0).UTC()
	}
	return &ep, nil
}
