// Package features ships the built-in feature catalog: one YAML
// definition per feature under features/, and the templates their
// outputs reference under templates/.
package features

import (
	"embed"
	"io/fs"
)

//go:embed features templates
var catalogFS embed.FS

// Catalog returns the built-in catalog filesystem, in the layout
// registry.Load expects.
func Catalog() fs.FS {
	return catalogFS
}
