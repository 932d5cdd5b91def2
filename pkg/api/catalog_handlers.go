package api

import (
	"errors"
	"net/http"

	"github.com/pkgvault/registry/pkg/httputil"
	"github.com/pkgvault/registry/pkg/observability"
	"github.com/pkgvault/registry/pkg/registry"
)

// CreatePackageRequest is the payload for registering a package name
type CreatePackageRequest struct {
	Name string `json:"name"`
}

// PublishVersionRequest is the payload for publishing a version
type PublishVersionRequest struct {
	Version string `json:"version"`
}

// VersionsResponse lists a package's published versions
type VersionsResponse struct {
	Versions []registry.Version `json:"versions"`
}

// createPackage serves POST /api/v1/packages
func (s *Server) createPackage(w http.ResponseWriter, r *http.Request) {
	var req CreatePackageRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	if err := s.catalog.CreatePackage(r.Context(), req.Name); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to create package")
		httputil.WriteInternalError(w, errors.New("failed to create package"))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, registry.Package{Name: req.Name})
}

// publishVersion serves POST /api/v1/packages/{name}/versions
func (s *Server) publishVersion(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	var req PublishVersionRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if req.Version == "" {
		httputil.WriteBadRequest(w, "version is required")
		return
	}

	if err := s.catalog.PublishVersion(r.Context(), name, req.Version); err != nil {
		if errors.Is(err, registry.ErrPackageNotFound) {
			httputil.WriteNotFoundError(w, "package not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to publish version")
		httputil.WriteInternalError(w, errors.New("failed to publish version"))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, registry.Version{Package: name, Version: req.Version})
}

// listVersions serves GET /api/v1/packages/{name}/versions
func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	name, ok := httputil.ParsePathStringOrError(w, r, "name")
	if !ok {
		return
	}

	versions, err := s.catalog.ListVersions(r.Context(), name)
	if err != nil {
		if errors.Is(err, registry.ErrPackageNotFound) {
			httputil.WriteNotFoundError(w, "package not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to list versions")
		httputil.WriteInternalError(w, errors.New("failed to list versions"))
		return
	}

	if versions == nil {
		versions = []registry.Version{}
	}
	httputil.WriteSuccess(w, VersionsResponse{Versions: versions})
}
