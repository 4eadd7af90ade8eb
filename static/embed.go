// Package static holds the browser assets served under /static/.
package static

import (
	"embed"
	"io/fs"
)

//go:embed css/*.css js/*.js
var assets embed.FS

func FS() fs.FS {
	return assets
}
