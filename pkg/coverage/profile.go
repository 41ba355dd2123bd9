// Package coverage merges Go cover profiles accumulated by instrumented
// test runs and renders a per-file summary, the moral equivalent of
// combining per-process coverage data files and printing the report.
package coverage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/tools/cover"
)

// ErrNoData is returned when the coverage directory holds no profile files.
var ErrNoData = fmt.Errorf("no coverage data found")

// Scan returns the profile files under dir matching pattern, sorted.
func Scan(fs afero.Fs, dir, pattern string) ([]string, error) {
	matches, err := afero.Glob(fs, filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("scanning %s for %s: %w", dir, pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Load parses every profile file in paths.
func Load(fs afero.Fs, paths []string) ([]*cover.Profile, error) {
	var profiles []*cover.Profile
	for _, path := range paths {
		f, err := fs.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening profile %s: %w", path, err)
		}
		parsed, err := cover.ParseProfilesFromReader(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing profile %s: %w", path, err)
		}
		profiles = append(profiles, parsed...)
	}
	return profiles, nil
}

type blockKey struct {
	startLine, startCol int
	endLine, endCol     int
	numStmt             int
}

// Merge folds profiles from any number of runs into one profile per file,
// sorted by file name with blocks in source order. Counts for the same
// block are summed, except in set mode where they are ORed. Mixing
// coverage modes is an error.
func Merge(profiles []*cover.Profile) ([]*cover.Profile, error) {
	if len(profiles) == 0 {
		return nil, ErrNoData
	}

	mode := profiles[0].Mode
	files := make(map[string]map[blockKey]int)
	for _, p := range profiles {
		if p.Mode != mode {
			return nil, fmt.Errorf("cannot merge %s-mode profile for %s into %s-mode data",
				p.Mode, p.FileName, mode)
		}
		blocks := files[p.FileName]
		if blocks == nil {
			blocks = make(map[blockKey]int)
			files[p.FileName] = blocks
		}
		for _, b := range p.Blocks {
			key := blockKey{b.StartLine, b.StartCol, b.EndLine, b.EndCol, b.NumStmt}
			if mode == "set" {
				if b.Count > 0 {
					blocks[key] = 1
				} else if _, ok := blocks[key]; !ok {
					blocks[key] = 0
				}
			} else {
				blocks[key] += b.Count
			}
		}
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	merged := make([]*cover.Profile, 0, len(names))
	for _, name := range names {
		p := &cover.Profile{FileName: name, Mode: mode}
		for key, count := range files[name] {
			p.Blocks = append(p.Blocks, cover.ProfileBlock{
				StartLine: key.startLine,
				StartCol:  key.startCol,
				EndLine:   key.endLine,
				EndCol:    key.endCol,
				NumStmt:   key.numStmt,
				Count:     count,
			})
		}
		sort.Slice(p.Blocks, func(a, b int) bool {
			ba, bb := p.Blocks[a], p.Blocks[b]
			if ba.StartLine != bb.StartLine {
				return ba.StartLine < bb.StartLine
			}
			return ba.StartCol < bb.StartCol
		})
		merged = append(merged, p)
	}

	return merged, nil
}

// WriteProfile writes merged profiles in the standard cover text format so
// downstream tooling (go tool cover, CI uploaders) can consume the result.
func WriteProfile(fs afero.Fs, path string, profiles []*cover.Profile) error {
	if len(profiles) == 0 {
		return ErrNoData
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "mode: %s\n", profiles[0].Mode)
	for _, p := range profiles {
		for _, b := range p.Blocks {
			fmt.Fprintf(&buf, "%s:%d.%d,%d.%d %d %d\n",
				p.FileName,
				b.StartLine, b.StartCol, b.EndLine, b.EndCol,
				b.NumStmt, b.Count)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing merged profile %s: %w", path, err)
	}
	return nil
}
