package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/pkgvault/registry/pkg/downloads"
	"github.com/pkgvault/registry/pkg/httputil"
	"github.com/pkgvault/registry/pkg/observability"
	"github.com/pkgvault/registry/pkg/registry"
)

// DownloadResponse is returned when the client asks for JSON instead of
// a redirect
type DownloadResponse struct {
	URL string `json:"url"`
}

// DayDownloads is one day's download count on the wire
type DayDownloads struct {
	Date      string `json:"date"`
	Downloads int64  `json:"downloads"`
}

// DownloadsResponse is the download history payload. The wire key is
// version_downloads on the package-level endpoint too; clients share
// one schema for both.
type DownloadsResponse struct {
	Downloads []DayDownloads `json:"version_downloads"`
}

// FlushResponse summarizes an admin-triggered flush
type FlushResponse struct {
	Persisted     int64    `json:"persisted"`
	ShardsFlushed int      `json:"shards_flushed"`
	ShardsFailed  int      `json:"shards_failed"`
	Errors        []string `json:"errors,omitempty"`
}

// download serves GET /api/v1/packages/{name}/{version}/download.
//
// The download is counted before the redirect is issued; whether the
// client completes the archive fetch does not matter.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}
	version, ok := httputil.ParsePathStringOrError(w, r, "version")
	if !ok {
		return
	}

	v, ok := s.findVersion(w, r, name, version)
	if !ok {
		return
	}

	s.service.RecordDownload(downloads.VersionKey{Package: v.Package, Version: v.Version})

	url, err := s.resolver.DownloadURL(r.Context(), v.Package, v.Version)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to resolve download URL")
		httputil.WriteInternalError(w, errors.New("failed to resolve download location"))
		return
	}

	if httputil.WantsJSON(r) {
		httputil.WriteSuccess(w, DownloadResponse{URL: url})
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// versionDownloads serves GET /api/v1/packages/{name}/{version}/downloads.
//
// The history window ends at before_date (inclusive) and spans the
// standard window size. A missing or malformed before_date means today.
func (s *Server) versionDownloads(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}
	version, ok := httputil.ParsePathStringOrError(w, r, "version")
	if !ok {
		return
	}

	v, ok := s.findVersion(w, r, name, version)
	if !ok {
		return
	}

	end := httputil.ParseQueryDate(r, "before_date", time.Now().UTC())

	counts, err := s.service.QueryVersionDownloads(r.Context(),
		downloads.VersionKey{Package: v.Package, Version: v.Version}, end)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to query version downloads")
		httputil.WriteInternalError(w, errors.New("failed to query downloads"))
		return
	}

	httputil.WriteSuccess(w, toDownloadsResponse(counts))
}

// packageDownloads serves GET /api/v1/packages/{name}/downloads.
//
// The window is always the trailing one ending today. before_date is
// accepted but ignored, matching long-standing client expectations.
func (s *Server) packageDownloads(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	if _, err := s.catalog.FindPackage(r.Context(), name); err != nil {
		s.writeLookupError(w, r, err)
		return
	}
	s.recordLookup("found")

	counts, err := s.service.QueryPackageDownloads(r.Context(), name)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to query package downloads")
		httputil.WriteInternalError(w, errors.New("failed to query downloads"))
		return
	}

	httputil.WriteSuccess(w, toDownloadsResponse(counts))
}

// flush serves POST /api/v1/admin/flush, forcing a full flush cycle.
// Shard failures are reported in the response body, not as an HTTP
// error; the failed counts stay in memory for the next cycle.
func (s *Server) flush(w http.ResponseWriter, r *http.Request) {
	outcome := s.coordinator.FlushAll(r.Context())

	resp := FlushResponse{
		Persisted:     outcome.Persisted,
		ShardsFlushed: outcome.ShardsFlushed,
		ShardsFailed:  outcome.ShardsFailed,
	}
	for _, e := range outcome.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}

	httputil.WriteSuccess(w, resp)
}

// findVersion resolves a version and writes the appropriate not-found
// response, distinguishing an unknown package from an unknown version
func (s *Server) findVersion(w http.ResponseWriter, r *http.Request, name, version string) (*registry.Version, bool) {
	v, err := s.finder.FindVersion(r.Context(), name, version)
	if err != nil {
		s.writeLookupError(w, r, err)
		return nil, false
	}
	s.recordLookup("found")
	return v, true
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrPackageNotFound):
		s.recordLookup("package_not_found")
		httputil.WriteNotFoundError(w, "package not found")
	case errors.Is(err, registry.ErrVersionNotFound):
		s.recordLookup("version_not_found")
		httputil.WriteNotFoundError(w, "version not found")
	default:
		s.recordLookup("error")
		observability.FromContext(r.Context()).WithError(err).Error("catalog lookup failed")
		httputil.WriteInternalError(w, errors.New("catalog lookup failed"))
	}
}

func (s *Server) recordLookup(result string) {
	if s.metrics != nil {
		s.metrics.CatalogLookupsTotal.WithLabelValues(result).Inc()
	}
}

func toDownloadsResponse(counts []downloads.DayCount) DownloadsResponse {
	resp := DownloadsResponse{Downloads: make([]DayDownloads, 0, len(counts))}
	for _, dc := range counts {
		resp.Downloads = append(resp.Downloads, DayDownloads{
			Date:      dc.Date.Format(httputil.DateFormat),
			Downloads: dc.Downloads,
		})
	}
	return resp
}
