package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePackage(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/packages", CreatePackageRequest{Name: "serde"})
	require.Equal(t, http.StatusCreated, w.Code)

	// creating the same name again is idempotent
	w = ts.do(t, http.MethodPost, "/api/v1/packages", CreatePackageRequest{Name: "serde"})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestCreatePackageValidation(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/packages", CreatePackageRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "name is required", errorMessage(t, w))

	w = ts.do(t, http.MethodPost, "/api/v1/packages", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishVersion(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/packages", CreatePackageRequest{Name: "serde"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/packages/serde/versions", PublishVersionRequest{Version: "1.0.0"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/packages/tokio/versions", PublishVersionRequest{Version: "1.0.0"})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "package not found", errorMessage(t, w))

	w = ts.do(t, http.MethodPost, "/api/v1/packages/serde/versions", PublishVersionRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "version is required", errorMessage(t, w))
}

func TestListVersions(t *testing.T) {
	ts := setupServer(t)
	ts.seed(t, "serde", "1.0.0")

	w := ts.do(t, http.MethodPost, "/api/v1/packages/serde/versions", PublishVersionRequest{Version: "1.1.0"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/packages/serde/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp VersionsResponse
	decodeBody(t, w, &resp)
	require.Len(t, resp.Versions, 2)
	for _, v := range resp.Versions {
		assert.Equal(t, "serde", v.Package)
	}
}

func TestListVersionsEmpty(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/packages", CreatePackageRequest{Name: "serde"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/packages/serde/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp VersionsResponse
	decodeBody(t, w, &resp)
	assert.NotNil(t, resp.Versions)
	assert.Empty(t, resp.Versions)
}

func TestListVersionsUnknownPackage(t *testing.T) {
	ts := setupServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/packages/tokio/versions", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "package not found", errorMessage(t, w))
}
