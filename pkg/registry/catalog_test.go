package registry

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for testing
)

// setupCatalog creates a catalog over an in-memory SQLite database
func setupCatalog(t *testing.T) *Catalog {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog := NewCatalog(db)
	require.NoError(t, catalog.EnsureSchema(context.Background()))
	return catalog
}

func seedVersion(t *testing.T, catalog *Catalog, pkg, version string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, catalog.CreatePackage(ctx, pkg))
	require.NoError(t, catalog.PublishVersion(ctx, pkg, version))
}

func TestFindVersion(t *testing.T) {
	catalog := setupCatalog(t)
	seedVersion(t, catalog, "serde", "1.0.0")
	ctx := context.Background()

	v, err := catalog.FindVersion(ctx, "serde", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "serde", v.Package)
	assert.Equal(t, "1.0.0", v.Version)
	assert.False(t, v.CreatedAt.IsZero())
}

func TestFindVersionUnknownPackage(t *testing.T) {
	catalog := setupCatalog(t)
	seedVersion(t, catalog, "serde", "1.0.0")

	_, err := catalog.FindVersion(context.Background(), "does-not-exist", "1.0.0")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestFindVersionUnknownVersion(t *testing.T) {
	catalog := setupCatalog(t)
	seedVersion(t, catalog, "serde", "1.0.0")

	_, err := catalog.FindVersion(context.Background(), "serde", "9.9.9")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestFindVersionCaseSensitive(t *testing.T) {
	catalog := setupCatalog(t)
	seedVersion(t, catalog, "serde", "1.0.0")
	ctx := context.Background()

	// Uppercased name is a different, unknown package
	_, err := catalog.FindVersion(ctx, "SERDE", "1.0.0")
	assert.ErrorIs(t, err, ErrPackageNotFound)

	_, err = catalog.FindVersion(ctx, "Serde", "1.0.0")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestFindVersionMalformedVersionString(t *testing.T) {
	catalog := setupCatalog(t)
	seedVersion(t, catalog, "serde", "1.0.0")

	// A malformed version string simply never matches a published version
	_, err := catalog.FindVersion(context.Background(), "serde", "not-a-version")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestFindPackage(t *testing.T) {
	catalog := setupCatalog(t)
	seedVersion(t, catalog, "serde", "1.0.0")
	ctx := context.Background()

	p, err := catalog.FindPackage(ctx, "serde")
	require.NoError(t, err)
	assert.Equal(t, "serde", p.Name)

	_, err = catalog.FindPackage(ctx, "tokio")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestCreatePackageIdempotent(t *testing.T) {
	catalog := setupCatalog(t)
	ctx := context.Background()

	require.NoError(t, catalog.CreatePackage(ctx, "serde"))
	require.NoError(t, catalog.CreatePackage(ctx, "serde"))

	_, err := catalog.FindPackage(ctx, "serde")
	assert.NoError(t, err)
}

func TestPublishVersionRequiresPackage(t *testing.T) {
	catalog := setupCatalog(t)

	err := catalog.PublishVersion(context.Background(), "unknown", "1.0.0")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestListVersions(t *testing.T) {
	catalog := setupCatalog(t)
	ctx := context.Background()

	require.NoError(t, catalog.CreatePackage(ctx, "serde"))
	require.NoError(t, catalog.PublishVersion(ctx, "serde", "1.0.0"))
	require.NoError(t, catalog.PublishVersion(ctx, "serde", "1.0.1"))

	versions, err := catalog.ListVersions(ctx, "serde")
	require.NoError(t, err)
	require.Len(t, versions, 2)

	_, err = catalog.ListVersions(ctx, "unknown")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}
