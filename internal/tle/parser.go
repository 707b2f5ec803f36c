package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// Parse reads TLE text from r and returns the element sets sorted ascending
// by epoch. Both the 2-line form and the 3-line form (name line first) are
// accepted, and may be mixed in one input. Malformed records are skipped with
// a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]ElementSet, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var sets []ElementSet
	name := ""
	for i := 0; i < len(lines); {
		line := lines[i]

		if !strings.HasPrefix(line, "1 ") {
			if strings.HasPrefix(line, "2 ") {
				logger.Warn("skipping orphan TLE line 2", "line_index", i)
			}
			// Anything else is taken as the name line of the next record.
			name = strings.TrimSpace(strings.TrimPrefix(line, "0 "))
			i++
			continue
		}

		if i+1 >= len(lines) || !strings.HasPrefix(lines[i+1], "2 ") {
			logger.Warn("skipping TLE line 1 without line 2", "line_index", i, "name", name)
			name = ""
			i++
			continue
		}

		es, err := NewElementSet(name, line, lines[i+1])
		if err != nil {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name, "error", err)
		} else {
			sets = append(sets, es)
		}
		name = ""
		i += 2
	}

	SortByEpoch(sets)
	return sets, nil
}

// SortByEpoch sorts sets ascending by epoch. Ties keep their input order.
func SortByEpoch(sets []ElementSet) {
	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].Epoch.Before(sets[j].Epoch)
	})
}

// GroupByNORAD splits a mixed list into per-satellite lists, each still
// sorted by epoch.
func GroupByNORAD(sets []ElementSet) map[int][]ElementSet {
	out := make(map[int][]ElementSet)
	for _, s := range sets {
		out[s.NORADID] = append(out[s.NORADID], s)
	}
	for _, v := range out {
		SortByEpoch(v)
	}
	return out
}
