package tle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"time"
)

// ErrUnknownProfile is returned by FindProfile for a name not in the list.
var ErrUnknownProfile = errors.New("unknown profile")

// Profile names a satellite pair and the anchor instant of its search
// window, as stored in profiles.json.
type Profile struct {
	Name       string             `json:"name"`
	Anchor     time.Time          `json:"anchor"`
	Satellites []ProfileSatellite `json:"satellites"`

	dir string
}

// ProfileSatellite is one member of a Profile. TLEFile is relative to the
// directory holding profiles.json.
type ProfileSatellite struct {
	Name    string `json:"name"`
	NORADID int    `json:"noradId"`
	TLEFile string `json:"tleFile"`
}

// LoadProfiles reads a profiles.json array from fsys.
func LoadProfiles(fsys fs.FS, name string) ([]Profile, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("decoding profiles %s: %w", name, err)
	}

	dir := path.Dir(name)
	for i := range profiles {
		if len(profiles[i].Satellites) != 2 {
			return nil, fmt.Errorf("profile %q: want 2 satellites, got %d",
				profiles[i].Name, len(profiles[i].Satellites))
		}
		profiles[i].dir = dir
	}
	return profiles, nil
}

// FindProfile returns the profile called name.
func FindProfile(profiles []Profile, name string) (Profile, error) {
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}
	names := make([]string, len(profiles))
	for i, p := range profiles {
		names[i] = p.Name
	}
	return Profile{}, fmt.Errorf("%w %q (available: %v)", ErrUnknownProfile, name, names)
}

// Window returns [Anchor - days, Anchor + days].
func (p Profile) Window(days float64) (time.Time, time.Time) {
	return AnchorWindow(p.Anchor, days)
}

// Load reads both satellites' element sets from their TLE files.
func (p Profile) Load(fsys fs.FS, logger *slog.Logger) ([]ElementSet, []ElementSet, error) {
	if len(p.Satellites) != 2 {
		return nil, nil, fmt.Errorf("profile %q: want 2 satellites, got %d", p.Name, len(p.Satellites))
	}
	var out [2][]ElementSet
	for i, sat := range p.Satellites {
		if sat.TLEFile == "" {
			return nil, nil, fmt.Errorf("profile %q: satellite %q has no tleFile", p.Name, sat.Name)
		}
		sets, err := LoadFile(fsys, path.Join(p.dir, sat.TLEFile), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
		out[i] = sets
	}
	return out[0], out[1], nil
}

// AnchorWindow returns [anchor - days, anchor + days].
func AnchorWindow(anchor time.Time, days float64) (time.Time, time.Time) {
	half := time.Duration(days * float64(24*time.Hour))
	return anchor.Add(-half), anchor.Add(half)
}
