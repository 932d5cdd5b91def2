package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// catalogSchema works on both postgres and sqlite. Name and version
// columns use plain TEXT so comparisons stay byte-exact on both backends.
const catalogSchema = `
CREATE TABLE IF NOT EXISTS packages (
	name TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS package_versions (
	package TEXT NOT NULL REFERENCES packages(name),
	version TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (package, version)
);
`

// Catalog provides package and version lookup against the SQL backend
type Catalog struct {
	db  *sql.DB
	log *logrus.Entry
}

// NewCatalog creates a catalog over an open database handle
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{
		db:  db,
		log: logrus.WithField("component", "catalog"),
	}
}

// EnsureSchema creates the catalog tables if they do not exist
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, catalogSchema); err != nil {
		return fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return nil
}

// FindVersion looks up a published version. The lookup distinguishes an
// unknown package from an unknown version of a known package so callers
// can report which one is missing.
func (c *Catalog) FindVersion(ctx context.Context, pkg, version string) (*Version, error) {
	var v Version
	err := c.db.QueryRowContext(ctx,
		`SELECT package, version, created_at FROM package_versions WHERE package = $1 AND version = $2`,
		pkg, version,
	).Scan(&v.Package, &v.Version, &v.CreatedAt)
	if err == nil {
		return &v, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query version: %w", err)
	}

	var name string
	err = c.db.QueryRowContext(ctx,
		`SELECT name FROM packages WHERE name = $1`, pkg,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query package: %w", err)
	}

	return nil, ErrVersionNotFound
}

// FindPackage looks up a package by exact name
func (c *Catalog) FindPackage(ctx context.Context, pkg string) (*Package, error) {
	var p Package
	err := c.db.QueryRowContext(ctx,
		`SELECT name, created_at FROM packages WHERE name = $1`, pkg,
	).Scan(&p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query package: %w", err)
	}
	return &p, nil
}

// CreatePackage registers a new package name. Creating an existing
// package is not an error.
func (c *Catalog) CreatePackage(ctx context.Context, pkg string) error {
	if pkg == "" {
		return fmt.Errorf("package name is required")
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO packages (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, pkg)
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	return nil
}

// PublishVersion records a new version of a package. The package must
// already exist.
func (c *Catalog) PublishVersion(ctx context.Context, pkg, version string) error {
	if pkg == "" || version == "" {
		return fmt.Errorf("package and version are required")
	}

	if _, err := c.FindPackage(ctx, pkg); err != nil {
		return err
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO package_versions (package, version) VALUES ($1, $2)
		 ON CONFLICT (package, version) DO NOTHING`, pkg, version)
	if err != nil {
		return fmt.Errorf("failed to publish version: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"package": pkg,
		"version": version,
	}).Info("version published")
	return nil
}

// ListVersions returns all published versions of a package, newest first
func (c *Catalog) ListVersions(ctx context.Context, pkg string) ([]Version, error) {
	if _, err := c.FindPackage(ctx, pkg); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT package, version, created_at FROM package_versions
		 WHERE package = $1 ORDER BY created_at DESC, version DESC`, pkg)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.Package, &v.Version, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
