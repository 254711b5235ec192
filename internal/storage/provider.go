// Package storage gives confined access to a directory of prepared HUC12
// bundles and to the output directories maps are exported into.
package storage

import "time"

// ManifestFile marks a directory as a bundle.
const ManifestFile = "manifest.yaml"

// BundleInfo describes one bundle directory under the root.
type BundleInfo struct {
	Name      string    `json:"name"`
	Checksum  string    `json:"manifest_checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for bundle file operations. Paths are relative
// to the provider root and may not escape it.
type Provider interface {
	// List returns every directory under the root that holds a manifest.
	List() ([]BundleInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Sub returns a provider rooted at dir.
	Sub(dir string) (Provider, error)
}
