// Package data holds the bundled element-set histories and pair profiles.
package data

import (
	"embed"
	"io/fs"
)

// Files holds seeds/<norad_id>.tle and profiles.json.
//
//go:embed seeds/*.tle profiles.json
var Files embed.FS

// Seeds returns the seeds directory as its own file system, laid out the
// way tle.FSSource expects.
func Seeds() fs.FS {
	sub, err := fs.Sub(Files, "seeds")
	if err != nil {
		panic(err) // constant, valid path
	}
	return sub
}
