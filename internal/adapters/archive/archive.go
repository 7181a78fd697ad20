// Package archive keeps finished jobs in SQLite so results survive a restart.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/pkg/logger"
	"github.com/okian/pickle/pkg/metrics"
)

// Summary is one row of the archive listing.
type Summary struct {
	ID        string       `json:"job_id"`
	Status    model.Status `json:"status"`
	Score     model.Score  `json:"score"`
	Rallies   int          `json:"rally_count"`
	Error     string       `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Archive is a SQLite-backed store of terminal job records.
type Archive struct {
	db  *sql.DB
	log logger.Logger
}

// Open opens (or creates) the archive database at path and migrates it.
func Open(ctx context.Context, path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// Single writer; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure archive: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &Archive{db: db, log: logger.Named("archive")}
	a.log.Info(ctx, "archive ready", logger.String("path", path))
	return a, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Version reports the schema migration version.
func (a *Archive) Version() (uint, error) {
	v, dirty, err := schemaVersion(a.db)
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("archive schema version %d is dirty", v)
	}
	return v, nil
}

// Save upserts a terminal record.
func (a *Archive) Save(ctx context.Context, rec model.Record) error {
	if !rec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, rec.ID, rec.Status)
	}
	start := time.Now()

	statsJSON, err := marshalNullable(rec.LatestStats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	resultJSON, err := marshalNullable(rec.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	var score model.Score
	var rallies int
	if rec.LatestStats != nil {
		score = rec.LatestStats.Score
		rallies = rec.LatestStats.RallyCount
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, status, progress, error, stats_json, result_json,
			player_heatmap, ball_heatmap, created_at, updated_at,
			player_a_top, player_b_bottom, rally_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			error = excluded.error,
			stats_json = excluded.stats_json,
			result_json = excluded.result_json,
			player_heatmap = excluded.player_heatmap,
			ball_heatmap = excluded.ball_heatmap,
			updated_at = excluded.updated_at,
			player_a_top = excluded.player_a_top,
			player_b_bottom = excluded.player_b_bottom,
			rally_count = excluded.rally_count`,
		rec.ID, string(rec.Status), rec.Progress, rec.Error, statsJSON, resultJSON,
		rec.PlayerHeatmap, rec.BallHeatmap, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(),
		score.Top, score.Bottom, rallies,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", rec.ID, err)
	}
	metrics.RecordArchiveWrite(float64(time.Since(start).Milliseconds()))
	a.log.Debug(ctx, "job archived", logger.JobID(rec.ID), logger.String("status", string(rec.Status)))
	return nil
}

// Load returns the archived record for id.
func (a *Archive) Load(ctx context.Context, id string) (model.Record, error) {
	start := time.Now()
	defer func() {
		metrics.RecordArchiveLatency(float64(time.Since(start).Milliseconds()))
	}()

	row := a.db.QueryRowContext(ctx, `
		SELECT job_id, status, progress, error, stats_json, result_json,
			player_heatmap, ball_heatmap, created_at, updated_at
		FROM jobs WHERE job_id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// All streams every archived record to fn in update order.
func (a *Archive) All(ctx context.Context, fn func(model.Record) error) error {
	rows, err := a.db.QueryContext(ctx, `
		SELECT job_id, status, progress, error, stats_json, result_json,
			player_heatmap, ball_heatmap, created_at, updated_at
		FROM jobs ORDER BY updated_at`)
	if err != nil {
		return fmt.Errorf("query archive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// List returns the most recently finished jobs, newest first.
func (a *Archive) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT job_id, status, error, player_a_top, player_b_bottom, rally_count, updated_at
		FROM jobs ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var (
			s       Summary
			status  string
			updated int64
		)
		if err := rows.Scan(&s.ID, &status, &s.Error, &s.Score.Top, &s.Score.Bottom, &s.Rallies, &updated); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Status = model.Status(status)
		s.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (model.Record, error) {
	var (
		rec                  model.Record
		status               string
		statsJSON, resJSON   sql.NullString
		created, updated     int64
		playerHeat, ballHeat []byte
	)
	if err := s.Scan(&rec.ID, &status, &rec.Progress, &rec.Error, &statsJSON, &resJSON,
		&playerHeat, &ballHeat, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Record{}, err
		}
		return model.Record{}, fmt.Errorf("scan job: %w", err)
	}
	rec.Status = model.Status(status)
	rec.PlayerHeatmap = playerHeat
	rec.BallHeatmap = ballHeat
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()

	if statsJSON.Valid {
		var st model.Stats
		if err := json.Unmarshal([]byte(statsJSON.String), &st); err != nil {
			return model.Record{}, fmt.Errorf("decode stats for %s: %w", rec.ID, err)
		}
		rec.LatestStats = &st
	}
	if resJSON.Valid {
		var r model.Result
		if err := json.Unmarshal([]byte(resJSON.String), &r); err != nil {
			return model.Record{}, fmt.Errorf("decode result for %s: %w", rec.ID, err)
		}
		rec.Result = &r
	}
	return rec, nil
}

// marshalNullable encodes v, mapping a nil pointer to SQL NULL.
func marshalNullable[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
