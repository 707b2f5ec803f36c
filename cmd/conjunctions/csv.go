package main

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kvsankar/sattosat/internal/conjunction"
)

// csvTimeLayout is UTC with millisecond precision.
const csvTimeLayout = "2006-01-02T15:04:05.000Z"

var csvHeader = []string{
	"time_utc", "distance_km", "relative_velocity_km_s",
	"sat_a_lat", "sat_a_lon", "sat_b_lat", "sat_b_lon",
}

func writeCSV(w io.Writer, found []conjunction.Conjunction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range found {
		a, b := c.A.State.Geodetic, c.B.State.Geodetic
		row := []string{
			c.Time.UTC().Format(csvTimeLayout),
			fixed(c.DistanceKm),
			fixed(c.RelativeVelocityKmS),
			fixed(a.LatDeg),
			fixed(a.LonDeg),
			fixed(b.LatDeg),
			fixed(b.LonDeg),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeCSVFile(path string, found []conjunction.Conjunction) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeCSV(f, found); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fixed(f float64) string { return strconv.FormatFloat(f, 'f', 6, 64) }
