package coverage

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"golang.org/x/tools/cover"
)

// FileSummary is statement coverage for one source file.
type FileSummary struct {
	Name       string
	Statements int
	Missed     int
}

// Percent returns the covered-statement percentage for the file.
func (f FileSummary) Percent() float64 {
	if f.Statements == 0 {
		return 100.0
	}
	return float64(f.Statements-f.Missed) / float64(f.Statements) * 100
}

// Summary is statement coverage for a whole merged run.
type Summary struct {
	Files      []FileSummary
	Statements int
	Missed     int
}

// Percent returns the total covered-statement percentage.
func (s *Summary) Percent() float64 {
	if s.Statements == 0 {
		return 100.0
	}
	return float64(s.Statements-s.Missed) / float64(s.Statements) * 100
}

// Summarize computes per-file and total statement coverage from merged
// profiles. A block counts as missed when it was never executed.
func Summarize(profiles []*cover.Profile) *Summary {
	s := &Summary{}
	for _, p := range profiles {
		fs := FileSummary{Name: p.FileName}
		for _, b := range p.Blocks {
			fs.Statements += b.NumStmt
			if b.Count == 0 {
				fs.Missed += b.NumStmt
			}
		}
		s.Files = append(s.Files, fs)
		s.Statements += fs.Statements
		s.Missed += fs.Missed
	}
	return s
}

// Config holds configuration for a Reporter.
type Config struct {
	// FS is the filesystem holding profile data (optional, defaults to the
	// OS filesystem).
	FS afero.Fs

	// Dir is the directory where instrumented runs accumulate profiles.
	Dir string

	// Pattern is the glob matched within Dir (optional).
	Pattern string

	// Out is the destination for the combined profile (optional; when
	// empty the merged profile is not persisted).
	Out string

	// Logger (optional).
	Logger hclog.Logger
}

// DefaultPattern matches the profile files instrumented test runs drop in
// the coverage directory.
const DefaultPattern = "*.cov"

// Reporter merges accumulated cover profiles and prints the summary table.
type Reporter struct {
	fs      afero.Fs
	dir     string
	pattern string
	out     string
	logger  hclog.Logger
}

// NewReporter creates a Reporter from the given configuration.
func NewReporter(cfg Config) (*Reporter, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("coverage directory is required")
	}
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Reporter{
		fs:      cfg.FS,
		dir:     cfg.Dir,
		pattern: cfg.Pattern,
		out:     cfg.Out,
		logger:  cfg.Logger.Named("coverage"),
	}, nil
}

// Merge scans, parses and merges every accumulated profile, persists the
// combined profile when configured, and returns the summary. ErrNoData is
// returned when no profile files exist.
func (r *Reporter) Merge() (*Summary, error) {
	paths, err := Scan(r.fs, r.dir, r.pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s (pattern %s)", ErrNoData, r.dir, r.pattern)
	}
	r.logger.Debug("merging coverage profiles", "count", len(paths))

	profiles, err := Load(r.fs, paths)
	if err != nil {
		return nil, err
	}
	merged, err := Merge(profiles)
	if err != nil {
		return nil, err
	}

	if r.out != "" {
		if err := WriteProfile(r.fs, r.out, merged); err != nil {
			return nil, err
		}
		r.logger.Info("wrote combined coverage profile", "path", r.out)
	}

	return Summarize(merged), nil
}

// Print writes the human-readable coverage table, one row per file plus a
// TOTAL row.
func (r *Reporter) Print(w io.Writer, s *Summary) {
	nameWidth := len("TOTAL")
	for _, f := range s.Files {
		if len(f.Name) > nameWidth {
			nameWidth = len(f.Name)
		}
	}

	rule := strings.Repeat("-", nameWidth+24)
	fmt.Fprintf(w, "%-*s  %7s  %6s  %6s\n", nameWidth, "Name", "Stmts", "Miss", "Cover")
	fmt.Fprintln(w, rule)
	for _, f := range s.Files {
		fmt.Fprintf(w, "%-*s  %7d  %6d  %s\n",
			nameWidth, f.Name, f.Statements, f.Missed, coverCell(f.Percent()))
	}
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-*s  %7d  %6d  %s\n",
		nameWidth, "TOTAL", s.Statements, s.Missed, coverCell(s.Percent()))
}

// coverCell renders a percentage, colorized by how healthy it is.
func coverCell(pct float64) string {
	cell := fmt.Sprintf("%5.1f%%", pct)
	switch {
	case pct >= 80:
		return color.GreenString(cell)
	case pct >= 50:
		return color.YellowString(cell)
	default:
		return color.RedString(cell)
	}
}
