package taskstore

import (
	"database/sql"
	"errors"

	"github.com/opsdeck/cos/internal/domain"
)

// RecordSample appends a completion sample for a bucket and recomputes the
// bucket's aggregate row. The percentile is taken over the bucket's full
// history, not a window.
func (s *Store) RecordSample(bucket string, durationMs int64, success bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO duration_samples (bucket, duration_ms, success) VALUES (?, ?, ?)`,
		bucket, durationMs, success); err != nil {
		return err
	}

	if err := recomputeStat(tx, bucket); err != nil {
		return err
	}

	return tx.Commit()
}

// recomputeStat rebuilds the aggregate row for a bucket from its samples.
// P80 uses the nearest-rank method: the value at position ceil(0.8*n) of
// the sorted durations.
func recomputeStat(tx *sql.Tx, bucket string) error {
	var n int
	var avgMs, successRate float64
	err := tx.QueryRow(`
		SELECT COUNT(*), AVG(duration_ms), AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END)
		FROM duration_samples WHERE bucket = ?
	`, bucket).Scan(&n, &avgMs, &successRate)
	if err != nil {
		return err
	}

	rank := (n*8 + 9) / 10 // ceil(0.8*n)
	if rank < 1 {
		rank = 1
	}
	var p80 int64
	err = tx.QueryRow(`
		SELECT duration_ms FROM duration_samples WHERE bucket = ?
		ORDER BY duration_ms LIMIT 1 OFFSET ?
	`, bucket, rank-1).Scan(&p80)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO duration_stats (bucket, completed, avg_duration_min, p80_duration_ms, success_rate)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(bucket) DO UPDATE SET
			completed = excluded.completed,
			avg_duration_min = excluded.avg_duration_min,
			p80_duration_ms = excluded.p80_duration_ms,
			success_rate = excluded.success_rate
	`, bucket, n, avgMs/60000.0, p80, successRate)
	return err
}

// GetStat returns the aggregate for a bucket, or nil when the bucket has
// no samples yet.
func (s *Store) GetStat(bucket string) (*domain.DurationStat, error) {
	row := s.db.QueryRow(`SELECT bucket, completed, avg_duration_min, p80_duration_ms, success_rate
		FROM duration_stats WHERE bucket = ?`, bucket)
	stat, err := scanStat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return stat, err
}

// ListStats returns the full aggregate table.
func (s *Store) ListStats() ([]*domain.DurationStat, error) {
	rows, err := s.db.Query(`SELECT bucket, completed, avg_duration_min, p80_duration_ms, success_rate
		FROM duration_stats ORDER BY bucket`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*domain.DurationStat
	for rows.Next() {
		stat, err := scanStat(rows)
		if err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

func scanStat(row scanner) (*domain.DurationStat, error) {
	var stat domain.DurationStat
	err := row.Scan(&stat.Bucket, &stat.Completed, &stat.AvgDurationMin, &stat.P80DurationMs, &stat.SuccessRate)
	if err != nil {
		return nil, err
	}
	return &stat, nil
}
