package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"
)

func TestPostgresInsertCommitsOneRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgres(db, "sensor_data")
	ts := time.Date(2025, 3, 28, 5, 46, 57, 0, time.UTC)

	expectedQuery := regexp.QuoteMeta("INSERT INTO sensor_data (machine_id, ts, temperature, pressure) VALUES ($1, $2, $3, $4)")
	mock.ExpectBegin()
	mock.ExpectExec(expectedQuery).
		WithArgs("Machine1", "2025-03-28 05:46:57", 25.5, 1001.25).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	sess, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := sess.Insert(ctx, domain.Reading{MachineID: "Machine1", Timestamp: ts, Temperature: 25.5, Pressure: 1001.25}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresInsertRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	store := NewPostgres(db, "sensor_data")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sensor_data").WillReturnError(errors.New("constraint violated"))
	mock.ExpectRollback()

	ctx := context.Background()
	sess, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer sess.Close()

	if err := sess.Insert(ctx, domain.Reading{MachineID: "Machine2", Timestamp: time.Now()}); err == nil {
		t.Fatalf("expected insert error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresAcquireFailsWhenPingFails(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	if _, err := NewPostgres(db, "sensor_data").Acquire(context.Background()); err == nil {
		t.Fatalf("expected acquire to fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresLatestOrdersNewestFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	t1 := time.Date(2025, 3, 28, 5, 47, 0, 0, time.UTC)
	t2 := t1.Add(-5 * time.Second)
	rows := sqlmock.NewRows([]string{"id", "machine_id", "ts", "temperature", "pressure"}).
		AddRow(int64(12), "Machine1", t1, 25.5, 1001.25).
		AddRow(int64(11), "Machine2", t2, 30.0, 999.5)

	expectedQuery := regexp.QuoteMeta("SELECT id, machine_id, ts, temperature, pressure FROM sensor_data ORDER BY ts DESC, id DESC LIMIT $1")
	mock.ExpectQuery(expectedQuery).WithArgs(10).WillReturnRows(rows)

	got, err := NewPostgres(db, "sensor_data").Latest(context.Background(), 10)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(got))
	}
	want := domain.Reading{ID: 12, MachineID: "Machine1", Timestamp: t1, Temperature: 25.5, Pressure: 1001.25}
	if !got[0].Equal(want) {
		t.Fatalf("expected %+v, got %+v", want, got[0])
	}
	if got[1].ID != 11 {
		t.Fatalf("expected second row id 11, got %d", got[1].ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresLatestEmptyTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, machine_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "machine_id", "ts", "temperature", "pressure"}))

	got, err := NewPostgres(db, "sensor_data").Latest(context.Background(), 10)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestPostgresMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS sensor_data")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS sensor_data_ts_idx")).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewPostgres(db, "sensor_data").Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConfigValidateRejectsOddTableNames(t *testing.T) {
	cfg := Config{ConnString: "postgres://localhost/db", Table: "sensor_data; DROP TABLE x"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected odd table name to be rejected")
	}

	cfg = Config{ConnString: "postgres://localhost/db"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Table != "sensor_data" || cfg.MaxOpenConns != 5 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestPostgresName(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer db.Close()

	if NewPostgres(db, "sensor_data").Name() != "postgres" {
		t.Fatalf("expected store name postgres")
	}
}

func TestPostgresOpenConnections(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	pg := NewPostgres(db, "sensor_data")
	sess, err := pg.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := pg.OpenConnections(); got != 1 {
		t.Fatalf("expected 1 open connection while a session is held, got %v", got)
	}
	_ = sess.Close()
}
