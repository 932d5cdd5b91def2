package registry

import (
	"errors"
	"time"
)

// Package is a published package in the catalog
type Package struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Version is a published version of a package
type Version struct {
	Package   string    `json:"package"`
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	// ErrPackageNotFound is returned when the package name does not exist
	ErrPackageNotFound = errors.New("package not found")

	// ErrVersionNotFound is returned when the package exists but the
	// requested version does not
	ErrVersionNotFound = errors.New("version not found")
)
