// Package shell is a thin convenience layer over syntax+interp: open a
// script file (or a glob of them) from disk, parse it, and run it with a
// fresh Runner, the way the teacher's own shell package wraps its
// syntax+interp packages for one-shot sourcing (shell/source.go).
package shell

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/cormacrelf/plux/interp"
	"github.com/cormacrelf/plux/syntax"
)

// RunFile parses and runs a single script file with its own fresh
// ScriptEnv and Runner.
func RunFile(path string, cfg interp.Config, appLog zerolog.Logger, progress io.Writer) (*interp.ScriptResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shell: could not open %s: %w", path, err)
	}
	defer f.Close()

	env := syntax.NewScriptEnv()
	script, err := syntax.Parse(f, path, env)
	if err != nil {
		return nil, fmt.Errorf("shell: could not parse %s: %w", path, err)
	}

	r := interp.New(cfg, env, appLog, progress)
	defer r.Close()
	return r.Run(script), nil
}

// Glob expands the given patterns (each run through filepath.Glob) into a
// deduplicated list of matching paths in first-seen order: patterns in the
// order given, each pattern's matches sorted as filepath.Glob returns
// them, per spec §6.2's CLI argument handling.
func Glob(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, fmt.Errorf("shell: bad glob %q: %w", pat, err)
		}
		if len(matches) == 0 {
			// A literal path with no glob metacharacters that doesn't
			// match anything is still passed through, so a typo'd
			// filename surfaces as a file-not-found error later rather
			// than silently vanishing.
			matches = []string{pat}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// RunAll runs every path returned by Glob(patterns) in sequence, sharing
// nothing between runs (each gets its own ScriptEnv and Runner), and
// returns one ScriptResult per file in the same order. A file that fails
// to open or parse still produces a StatusError result slot at line 0,
// carrying RunFile's open/parse error as Err.
func RunAll(patterns []string, cfg interp.Config, appLog zerolog.Logger, progress io.Writer) ([]*interp.ScriptResult, error) {
	paths, err := Glob(patterns)
	if err != nil {
		return nil, err
	}
	results := make([]*interp.ScriptResult, len(paths))
	for i, path := range paths {
		res, err := RunFile(path, cfg, appLog, progress)
		if err != nil {
			results[i] = &interp.ScriptResult{
				Status: interp.StatusError,
				File:   path,
				Err:    err,
			}
			continue
		}
		results[i] = res
	}
	return results, nil
}
