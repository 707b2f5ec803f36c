// Command conjunctions searches a satellite pair for close approaches and
// writes them to CSV.
//
// The pair comes either from a bundled profile (--profile) or from two TLE
// files and an anchor time (--tle-a, --tle-b, --anchor). The window is
// anchor ± days.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kvsankar/sattosat/data"
	"github.com/kvsankar/sattosat/internal/conjunction"
	"github.com/kvsankar/sattosat/internal/propagation"
	"github.com/kvsankar/sattosat/internal/tle"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "conjunctions",
	Short: "Find close approaches between two satellites and write them to CSV",
	Long: `
Find every local minimum of the distance between two satellites within
anchor ± days and write the ones under --threshold to CSV, closest first.

Examples:
  # Bundled profile
  conjunctions --profile WV3-STARLINK35956-Picture

  # Custom TLE files
  conjunctions --tle-a wv3.tle --tle-b starlink.tle --anchor 2025-12-19T01:30:19Z -o out.csv
`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringP("profile", "p", "", "profile name from the bundled profiles.json")
	f.String("tle-a", "", "TLE file for satellite A")
	f.String("tle-b", "", "TLE file for satellite B")
	f.String("anchor", "", "anchor time, RFC 3339 (required with --tle-a/--tle-b)")
	f.StringP("output", "o", "", "output CSV path (default: conjunctions-<profile>.csv)")
	f.Float64("threshold", 1000, "maximum distance in km")
	f.Float64("days", 3, "half-width of the search window in days")
	f.Duration("step", conjunction.DefaultStep, "coarse scan step")
	f.String("gap-policy", conjunction.GapAsInfinity.String(), "how failed samples are scanned: infinity or skip")
	f.String("backend", propagation.BackendGoSatellite, "SGP4 implementation: go-satellite or libsgp4")
	f.BoolP("quiet", "q", false, "suppress progress output")

	v.SetEnvPrefix("SATTOSAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(f)
	// Share the service's variable name for the backend.
	_ = v.BindEnv("backend", "SATTOSAT_PROPAGATION_BACKEND")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// pairInput is a resolved satellite pair and its search window.
type pairInput struct {
	setsA, setsB []tle.ElementSet
	start, end   time.Time
	outputName   string
}

func run(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	in, err := resolveInput(logger)
	if err != nil {
		return err
	}

	gaps, err := conjunction.ParseGapPolicy(v.GetString("gap-policy"))
	if err != nil {
		return err
	}
	factory, err := propagation.NewFactory(v.GetString("backend"))
	if err != nil {
		return err
	}

	out := io.Discard
	if !v.GetBool("quiet") {
		out = cmd.OutOrStdout()
	}
	threshold := v.GetFloat64("threshold")

	fmt.Fprintf(out, "Loaded %d TLEs for Sat A\n", len(in.setsA))
	fmt.Fprintf(out, "Loaded %d TLEs for Sat B\n", len(in.setsB))
	fmt.Fprintf(out, "Search window: %s to %s\n", in.start.Format(time.RFC3339), in.end.Format(time.RFC3339))
	fmt.Fprintf(out, "Finding conjunctions < %g km...\n", threshold)

	engine := conjunction.NewEngine(factory, logger)
	found, err := engine.FindConjunctions(cmd.Context(), in.setsA, in.setsB, in.start, in.end, conjunction.Options{
		Step:          v.GetDuration("step"),
		MaxDistanceKm: threshold,
		GapPolicy:     gaps,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Found %d conjunctions\n", len(found))

	path := v.GetString("output")
	if path == "" {
		path = in.outputName
	}
	if err := writeCSVFile(path, found); err != nil {
		return err
	}
	fmt.Fprintf(out, "Output written to: %s\n", path)

	if len(found) > 0 {
		c := found[0]
		fmt.Fprintf(out, "\nClosest approach:\n")
		fmt.Fprintf(out, "  Time: %s UTC\n", c.Time.UTC().Format("2006-01-02 15:04:05.000"))
		fmt.Fprintf(out, "  Distance: %.2f km\n", c.DistanceKm)
		fmt.Fprintf(out, "  Relative velocity: %.2f km/s\n", c.RelativeVelocityKmS)
	}
	return nil
}

func resolveInput(logger *slog.Logger) (pairInput, error) {
	name := v.GetString("profile")
	fileA, fileB := v.GetString("tle-a"), v.GetString("tle-b")
	days := v.GetFloat64("days")
	if !(days > 0) {
		return pairInput{}, fmt.Errorf("--days must be positive, got %g", days)
	}

	switch {
	case name != "" && (fileA != "" || fileB != ""):
		return pairInput{}, errors.New("cannot use --profile with --tle-a/--tle-b")
	case name == "" && (fileA == "" || fileB == ""):
		return pairInput{}, errors.New("specify either --profile or both --tle-a and --tle-b")
	}

	if name != "" {
		profiles, err := tle.LoadProfiles(data.Files, "profiles.json")
		if err != nil {
			return pairInput{}, err
		}
		p, err := tle.FindProfile(profiles, name)
		if err != nil {
			return pairInput{}, err
		}
		a, b, err := p.Load(data.Files, logger)
		if err != nil {
			return pairInput{}, err
		}
		start, end := p.Window(days)
		return pairInput{a, b, start, end, "conjunctions-" + name + ".csv"}, nil
	}

	anchorText := v.GetString("anchor")
	if anchorText == "" {
		return pairInput{}, errors.New("--anchor is required with --tle-a/--tle-b")
	}
	anchor, err := time.Parse(time.RFC3339, anchorText)
	if err != nil {
		return pairInput{}, fmt.Errorf("--anchor: %w", err)
	}
	a, err := loadTLEFile(fileA, logger)
	if err != nil {
		return pairInput{}, err
	}
	b, err := loadTLEFile(fileB, logger)
	if err != nil {
		return pairInput{}, err
	}
	start, end := tle.AnchorWindow(anchor, days)
	return pairInput{a, b, start, end, "conjunctions-custom.csv"}, nil
}

// loadTLEFile reads a TLE or OMM JSON file from the local filesystem.
func loadTLEFile(path string, logger *slog.Logger) ([]tle.ElementSet, error) {
	sets, err := tle.LoadFile(os.DirFS(filepath.Dir(path)), filepath.Base(path), logger)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%s: no valid element sets", path)
	}
	return sets, nil
}
