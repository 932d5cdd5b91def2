package downloads

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// downloadsSchema works on both postgres and sqlite. Dates are bound as
// YYYY-MM-DD strings; both drivers store and compare them consistently.
const downloadsSchema = `
CREATE TABLE IF NOT EXISTS version_downloads (
	package TEXT NOT NULL,
	version TEXT NOT NULL,
	date DATE NOT NULL,
	downloads BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (package, version, date)
);

CREATE INDEX IF NOT EXISTS idx_version_downloads_package_date
	ON version_downloads (package, date);
`

// upsert is additive so concurrent flushes from multiple registry
// instances never lose counts. Unqualified "downloads" on the right-hand
// side refers to the existing row on both backends.
const upsertDownloads = `
INSERT INTO version_downloads (package, version, date, downloads)
VALUES ($1, $2, $3, $4)
ON CONFLICT (package, version, date)
DO UPDATE SET downloads = downloads + excluded.downloads`

// DayCount is a per-day download total
type DayCount struct {
	Date      time.Time
	Downloads int64
}

// Store persists download counts to the SQL backend
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database handle
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the download tables if they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, downloadsSchema); err != nil {
		return fmt.Errorf("failed to create downloads schema: %w", err)
	}
	return nil
}

// FlushShard persists one drained shard in a single transaction and
// returns the number of downloads written. The transaction either lands
// every bucket or none, so a failure can safely merge the whole shard
// back into the counter.
func (s *Store) FlushShard(ctx context.Context, pending map[PendingKey]int64) (int64, error) {
	if len(pending) == 0 {
		return 0, nil
	}

	// Deterministic ordering keeps concurrent flushes from deadlocking
	keys := make([]PendingKey, 0, len(pending))
	for pk := range pending {
		keys = append(keys, pk)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Key.Package != b.Key.Package {
			return a.Key.Package < b.Key.Package
		}
		if a.Key.Version != b.Key.Version {
			return a.Key.Version < b.Key.Version
		}
		return a.Day < b.Day
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin flush transaction: %w", err)
	}
	defer tx.Rollback()

	var persisted int64
	for _, pk := range keys {
		n := pending[pk]
		if _, err := tx.ExecContext(ctx, upsertDownloads, pk.Key.Package, pk.Key.Version, pk.Day, n); err != nil {
			return 0, fmt.Errorf("failed to upsert downloads for %s@%s on %s: %w",
				pk.Key.Package, pk.Key.Version, pk.Day, err)
		}
		persisted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit flush transaction: %w", err)
	}

	return persisted, nil
}

// VersionDownloads returns per-day counts for one version between start
// and end inclusive, ordered by date
func (s *Store) VersionDownloads(ctx context.Context, key VersionKey, start, end string) ([]DayCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, downloads FROM version_downloads
		 WHERE package = $1 AND version = $2 AND date BETWEEN $3 AND $4
		 ORDER BY date`,
		key.Package, key.Version, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query version downloads: %w", err)
	}
	defer rows.Close()

	return scanDayCounts(rows)
}

// PackageDownloads returns per-day counts summed across all versions of a
// package between start and end inclusive, ordered by date
func (s *Store) PackageDownloads(ctx context.Context, pkg string, start, end string) ([]DayCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, SUM(downloads) FROM version_downloads
		 WHERE package = $1 AND date BETWEEN $2 AND $3
		 GROUP BY date ORDER BY date`,
		pkg, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query package downloads: %w", err)
	}
	defer rows.Close()

	return scanDayCounts(rows)
}

func scanDayCounts(rows *sql.Rows) ([]DayCount, error) {
	var counts []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Date, &dc.Downloads); err != nil {
			return nil, fmt.Errorf("failed to scan download row: %w", err)
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}
