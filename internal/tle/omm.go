package tle

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/akhenakh/sgp4"
)

// ParseOMM reads a JSON array of CCSDS OMM records and converts each to an
// element set. The TLE lines are rendered with FormatLines so every backend
// sees the same input regardless of source format. Records that fail
// conversion are skipped with a warning log.
func ParseOMM(data []byte, logger *slog.Logger) ([]ElementSet, error) {
	omms, err := sgp4.ParseOMMs(data)
	if err != nil {
		return nil, fmt.Errorf("parsing OMM: %w", err)
	}

	sets := make([]ElementSet, 0, len(omms))
	for i := range omms {
		parsed, err := omms[i].ToTLE()
		if err != nil {
			logger.Warn("skipping OMM record", "index", i, "object", omms[i].ObjectName, "error", err)
			continue
		}
		line1, line2 := FormatLines(parsed)
		es, err := NewElementSet(parsed.Name, line1, line2)
		if err != nil {
			logger.Warn("skipping OMM record", "index", i, "object", omms[i].ObjectName, "error", err)
			continue
		}
		sets = append(sets, es)
	}

	SortByEpoch(sets)
	return sets, nil
}

// FormatLines renders parsed elements as a fixed-column TLE line pair with
// valid checksums.
func FormatLines(t *sgp4.TLE) (string, string) {
	class := t.Classification
	if class == 0 {
		class = 'U'
	}

	l1 := fmt.Sprintf("1 %05d%c %-8s %02d%012.8f %s %s %s 0 %4d",
		t.SatelliteNumber%100000,
		class,
		truncate(t.International, 8),
		t.EpochYear%100,
		t.EpochDay,
		formatDecimal(t.MeanMotionDot),
		formatExponent(t.MeanMotionDot2),
		formatExponent(t.Bstar),
		t.ElementNumber%10000,
	)

	l2 := fmt.Sprintf("2 %05d %8.4f %8.4f %07d %8.4f %8.4f %11.8f%5d",
		t.SatelliteNumber%100000,
		t.Inclination,
		normalizeDeg(t.RightAscension),
		int(math.Round(t.Eccentricity*1e7)),
		normalizeDeg(t.ArgOfPerigee),
		normalizeDeg(t.MeanAnomaly),
		t.MeanMotion,
		t.RevolutionNumber%100000,
	)

	return l1 + checksum(l1), l2 + checksum(l2)
}

// formatDecimal renders |v| < 1 as the 10-column " .dddddddd" field.
func formatDecimal(v float64) string {
	sign := " "
	if v < 0 {
		sign = "-"
	}
	s := fmt.Sprintf("%.8f", math.Min(math.Abs(v), 0.99999999))
	return sign + strings.TrimPrefix(s, "0")
}

// formatExponent renders v in the 8-column implied-decimal form " ddddd-e",
// meaning 0.ddddd × 10^-e. Zero is " 00000-0".
func formatExponent(v float64) string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return " 00000-0"
	}
	sign := ' '
	if v < 0 {
		sign = '-'
	}
	a := math.Abs(v)
	exp := int(math.Floor(math.Log10(a))) + 1
	mant := int(math.Round(a / math.Pow(10, float64(exp)) * 1e5))
	if mant >= 100000 {
		mant /= 10
		exp++
	}
	if exp < -9 {
		return " 00000-0"
	}
	if exp > 9 {
		exp, mant = 9, 99999
	}
	expSign := '+'
	if exp < 0 {
		expSign = '-'
	}
	return fmt.Sprintf("%c%05d%c%d", sign, mant, expSign, absInt(exp))
}

func checksum(line string) string {
	sum := 0
	for _, c := range line {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return fmt.Sprintf("%d", sum%10)
}

func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
