package interp

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cormacrelf/plux/expand"
	"github.com/cormacrelf/plux/pattern"
	"github.com/cormacrelf/plux/syntax"
)

// matchResult is what evaluateMatch needs to tell the caller: whether the
// match line is satisfied yet, and (for regex matches) the capture groups
// to bind.
type matchResult struct {
	ok     bool
	groups []string
}

// evaluateMatch implements spec §4.3 against a single Process's buffered
// lines: scan completed lines in order, consuming up to and including the
// first match; failing that, try the partial tail and mark it consumed on
// success; otherwise report no match so the Runner keeps polling.
func evaluateMatch(proc Process, kind syntax.LineKind, rawPattern string, env expand.Lookup, shell string) (matchResult, error) {
	pat := rawPattern
	var re *regexRunner
	switch kind {
	case syntax.KindMatchVar:
		expanded, err := expand.Expand(env, shell, rawPattern)
		if err != nil {
			return matchResult{}, &ScriptError{Reason: "expanding match pattern", Cause: err}
		}
		pat = expanded
	case syntax.KindMatchRegex:
		expanded, err := expand.Expand(env, shell, rawPattern)
		if err != nil {
			return matchResult{}, &ScriptError{Reason: "expanding match pattern", Cause: err}
		}
		pat = expanded
		compiled, err := pattern.Compile(pat)
		if err != nil {
			return matchResult{}, &ScriptError{Reason: "compiling match pattern", Cause: err}
		}
		re = &regexRunner{re: compiled, anchoredEOL: pattern.EndsInDollar(pat)}
	case syntax.KindMatchExact:
		// pattern used verbatim, no expansion
	}

	lines := proc.Lines()
	for i, line := range lines {
		if res := tryMatch(kind, pat, re, line, true); res.ok {
			proc.ConsumeUpTo(i + 1)
			return res, nil
		}
	}
	tail := proc.Buf()
	if res := tryMatch(kind, pat, re, tail, false); res.ok {
		proc.ConsumeUpTo(len(lines))
		proc.ConsumeBuf()
		return res, nil
	}
	return matchResult{ok: false}, nil
}

type regexRunner struct {
	re          *regexp.Regexp
	anchoredEOL bool
}

func tryMatch(kind syntax.LineKind, pat string, re *regexRunner, candidate string, isFullLine bool) matchResult {
	switch kind {
	case syntax.KindMatchExact, syntax.KindMatchVar:
		if strings.Contains(candidate, pat) {
			return matchResult{ok: true}
		}
		return matchResult{}
	case syntax.KindMatchRegex:
		if !isFullLine && re.anchoredEOL {
			// An end-anchored pattern cannot match against a partial,
			// not-yet-newline-terminated tail; short-circuit per §4.3.
			return matchResult{}
		}
		groups := re.re.FindStringSubmatch(candidate)
		if groups == nil {
			return matchResult{}
		}
		return matchResult{ok: true, groups: groups[1:]}
	default:
		return matchResult{}
	}
}

// bindGroups stores regex capture groups 1..n as shell-scoped variables
// named "1", "2", ... per spec §4.3.
func bindGroups(store *expand.VarStore, shell string, groups []string) {
	for i, g := range groups {
		_ = store.Set(expand.Shell, shell, strconv.Itoa(i+1), g)
	}
}
