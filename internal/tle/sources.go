package tle

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strconv"
)

// FSSource loads "<norad_id>.tle" (TLE text) or "<norad_id>.json" (OMM
// array) from a file system. It backs both the embedded bundle and on-disk
// data directories.
type FSSource struct {
	fsys   fs.FS
	logger *slog.Logger
}

// NewFSSource returns a Source reading from fsys.
func NewFSSource(fsys fs.FS, logger *slog.Logger) *FSSource {
	return &FSSource{fsys: fsys, logger: logger}
}

// NewDirSource returns a Source reading from directory dir. A missing
// directory yields no data rather than an error.
func NewDirSource(dir string, logger *slog.Logger) *FSSource {
	return NewFSSource(os.DirFS(dir), logger)
}

// Load implements Source.
func (s *FSSource) Load(id int) ([]ElementSet, error) {
	base := strconv.Itoa(id)

	data, err := fs.ReadFile(s.fsys, base+".tle")
	if err == nil {
		return Parse(bytes.NewReader(data), s.logger)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s.tle: %w", base, err)
	}

	data, err = fs.ReadFile(s.fsys, base+".json")
	if err == nil {
		return ParseOMM(data, s.logger)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s.json: %w", base, err)
	}

	return nil, nil
}

// LoadFile reads a TLE text file, or an OMM JSON file when the name ends in
// ".json".
func LoadFile(fsys fs.FS, name string, logger *slog.Logger) ([]ElementSet, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if path.Ext(name) == ".json" {
		return ParseOMM(data, logger)
	}
	return Parse(bytes.NewReader(data), logger)
}
