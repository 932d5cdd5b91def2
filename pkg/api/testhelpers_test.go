package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for testing

	"github.com/pkgvault/registry/pkg/downloads"
	"github.com/pkgvault/registry/pkg/observability"
	"github.com/pkgvault/registry/pkg/registry"
)

const testCDN = "https://static.pkgvault.test"

// testServer wires a full server over an in-memory database
type testServer struct {
	server  *Server
	catalog *registry.Catalog
	counter *downloads.Counter
	store   *downloads.Store
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	catalog := registry.NewCatalog(db)
	require.NoError(t, catalog.EnsureSchema(ctx))

	store := downloads.NewStore(db)
	require.NoError(t, store.EnsureSchema(ctx))

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	counter := downloads.NewCounter(4)
	coordinator := downloads.NewCoordinator(counter, store, 2, nil, logger)
	service := downloads.NewService(counter, store, 90, nil)

	server := NewServer(catalog, catalog, service, coordinator,
		registry.NewCDNResolver(testCDN), nil, logger)

	return &testServer{
		server:  server,
		catalog: catalog,
		counter: counter,
		store:   store,
	}
}

func (ts *testServer) seed(t *testing.T, pkg, version string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, ts.catalog.CreatePackage(ctx, pkg))
	require.NoError(t, ts.catalog.PublishVersion(ctx, pkg, version))
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(dest))
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, w, &body)
	return body["error"]
}
