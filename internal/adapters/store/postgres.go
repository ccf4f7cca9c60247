package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/ports"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config describes the readings table and the pool in front of it.
type Config struct {
	ConnString   string        `yaml:"conn_string"`
	Table        string        `yaml:"table"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
	AutoMigrate  bool          `yaml:"auto_migrate"`
}

func (c *Config) ApplyDefaults() {
	if c.Table == "" {
		c.Table = "sensor_data"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 5
	}
	if c.ConnLifetime <= 0 {
		c.ConnLifetime = 30 * time.Minute
	}
}

func (c *Config) Validate() error {
	if c.ConnString == "" {
		return fmt.Errorf("conn_string is required")
	}
	if !tableNamePattern.MatchString(c.Table) {
		return fmt.Errorf("table %q is not a plain identifier", c.Table)
	}
	return nil
}

// Open creates the connection pool. No connection is made until first use.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)
	return db, nil
}

// Postgres persists readings and serves the most recent ones.
type Postgres struct {
	db        *sql.DB
	tableName string

	insertSQL string
	latestSQL string
}

func NewPostgres(db *sql.DB, table string) *Postgres {
	return &Postgres{
		db:        db,
		tableName: table,
		insertSQL: "INSERT INTO " + table + " (machine_id, ts, temperature, pressure) VALUES ($1, $2, $3, $4)",
		latestSQL: "SELECT id, machine_id, ts, temperature, pressure FROM " + table + " ORDER BY ts DESC, id DESC LIMIT $1",
	}
}

func (p *Postgres) Name() string { return "postgres" }

// OpenConnections reports the pool's current open connections.
func (p *Postgres) OpenConnections() float64 {
	return float64(p.db.Stats().OpenConnections)
}

// Migrate creates the readings table when it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + p.tableName + ` (
	id          BIGSERIAL PRIMARY KEY,
	machine_id  TEXT NOT NULL,
	ts          TIMESTAMP NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	pressure    DOUBLE PRECISION NOT NULL
)`,
		"CREATE INDEX IF NOT EXISTS " + p.tableName + "_ts_idx ON " + p.tableName + " (ts DESC)",
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", p.tableName, err)
		}
	}
	return nil
}

// Acquire takes a dedicated connection from the pool and checks it is alive.
func (p *Postgres) Acquire(ctx context.Context) (ports.ReadingSession, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping connection: %w", err)
	}
	return &session{conn: conn, insertSQL: p.insertSQL}, nil
}

func (p *Postgres) Latest(ctx context.Context, n int) ([]domain.Reading, error) {
	rows, err := p.db.QueryContext(ctx, p.latestSQL, n)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Reading, 0, n)
	for rows.Next() {
		var r domain.Reading
		if err := rows.Scan(&r.ID, &r.MachineID, &r.Timestamp, &r.Temperature, &r.Pressure); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return out, nil
}

type session struct {
	conn      *sql.Conn
	insertSQL string
}

func (s *session) Insert(ctx context.Context, r domain.Reading) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.insertSQL,
		r.MachineID,
		domain.FormatStoreTime(r.Timestamp),
		r.Temperature,
		r.Pressure,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert reading: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

var (
	_ ports.ReadingStore   = (*Postgres)(nil)
	_ ports.SnapshotSource = (*Postgres)(nil)
)
