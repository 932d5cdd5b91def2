package downloads

import (
	"context"
	"time"

	"github.com/pkgvault/registry/pkg/observability"
)

// Service is the download-counting entry point used by the API layer
type Service struct {
	counter    *Counter
	store      *Store
	windowDays int
	now        func() time.Time
	metrics    *observability.Metrics
}

// NewService creates a download service. windowDays bounds history
// queries; the standard window is 90 days.
func NewService(counter *Counter, store *Store, windowDays int, metrics *observability.Metrics) *Service {
	if windowDays <= 0 {
		windowDays = 90
	}
	return &Service{
		counter:    counter,
		store:      store,
		windowDays: windowDays,
		now:        time.Now,
		metrics:    metrics,
	}
}

// WindowDays returns the history window size
func (s *Service) WindowDays() int {
	return s.windowDays
}

// RecordDownload counts one download of a version. It only touches
// memory and cannot fail; persistence happens on the next flush cycle.
// The day bucket is fixed at record time in UTC.
func (s *Service) RecordDownload(key VersionKey) {
	day := s.now().UTC().Format(DateFormat)
	s.counter.Increment(key, day)

	if s.metrics != nil {
		s.metrics.DownloadsRecordedTotal.Inc()
	}
}

// QueryVersionDownloads returns per-day counts for a version over the
// window ending at end (inclusive). Days with no downloads have no row.
func (s *Service) QueryVersionDownloads(ctx context.Context, key VersionKey, end time.Time) ([]DayCount, error) {
	start := end.AddDate(0, 0, -(s.windowDays - 1))
	return s.store.VersionDownloads(ctx, key,
		start.Format(DateFormat), end.Format(DateFormat))
}

// QueryPackageDownloads returns per-day counts summed across all versions
// of a package for the trailing window ending today. The window is always
// anchored to the current date; clients cannot shift it.
func (s *Service) QueryPackageDownloads(ctx context.Context, pkg string) ([]DayCount, error) {
	end := s.now().UTC()
	start := end.AddDate(0, 0, -(s.windowDays - 1))
	return s.store.PackageDownloads(ctx, pkg,
		start.Format(DateFormat), end.Format(DateFormat))
}
