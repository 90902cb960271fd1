// Package history keeps sampled meter readings in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"

	_ "modernc.org/sqlite"
)

const (
	DRIVER_NAME = "sqlite"

	createReadingsTable = `CREATE TABLE IF NOT EXISTS meter_readings (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	serial      INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL,
	power       TEXT NOT NULL,
	power_l1    TEXT NOT NULL,
	power_l2    TEXT NOT NULL,
	power_l3    TEXT NOT NULL
)`
	createReadingsIndex = `CREATE INDEX IF NOT EXISTS idx_meter_readings_serial_time
	ON meter_readings (serial, recorded_at)`
)

type Store struct {
	db *sql.DB
}

// Open creates the database at path if needed. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open(DRIVER_NAME, path)
	if err != nil {
		return nil, err
	}
	// one connection, an in-memory database only lives as long as it does
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	for _, stmt := range []string{createReadingsTable, createReadingsIndex} {
		if _, err = db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: create schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, record domain.HistoryRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meter_readings (serial, recorded_at, power, power_l1, power_l2, power_l3) "+
			"VALUES (?, ?, ?, ?, ?, ?)",
		int64(record.Serial),
		record.RecordedAt.UnixMilli(),
		record.Power3f,
		record.PowerL1,
		record.PowerL2,
		record.PowerL3,
	)
	return err
}

// Latest returns up to limit records of a meter, newest first.
func (s *Store) Latest(ctx context.Context, serial uint32, limit int) ([]domain.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT serial, recorded_at, power, power_l1, power_l2, power_l3 FROM meter_readings "+
			"WHERE serial = ? ORDER BY recorded_at DESC, id DESC LIMIT ?",
		int64(serial),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []domain.HistoryRecord{}
	for rows.Next() {
		var (
			serial     int64
			recordedAt int64
			record     domain.HistoryRecord
		)
		if err := rows.Scan(&serial, &recordedAt, &record.Power3f, &record.PowerL1, &record.PowerL2, &record.PowerL3); err != nil {
			return nil, err
		}
		record.Serial = uint32(serial)
		record.RecordedAt = time.UnixMilli(recordedAt)
		records = append(records, record)
	}
	return records, rows.Err()
}

// Prune deletes every record older than before and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM meter_readings WHERE recorded_at < ?", before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
