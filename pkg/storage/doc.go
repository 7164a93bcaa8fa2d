// Package storage is the parent of this core's two repository-port
// implementations: pkg/storage/postgres (the production backend) and
// pkg/storage/memstore (an in-memory equivalent for local development
// and tests). Neither sub-package defines a shared store-wide
// interface; each repository port lives beside the domain it serves
// (pkg/poi.Repository, pkg/preferences.Repository, and so on), and both
// backends implement every port independently.
package storage
