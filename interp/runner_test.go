//go:build unix

package interp

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/cormacrelf/plux/syntax"
)

func runScript(t *testing.T, src string) *ScriptResult {
	t.Helper()
	env := syntax.NewScriptEnv()
	script, err := syntax.Parse(strings.NewReader(src), t.Name()+".plux", env)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	dir := t.TempDir()
	r := New(Config{
		DefaultTimeout: 3 * time.Second,
		LogRoot:        dir,
	}, env, zerolog.Nop(), nil)
	t.Cleanup(r.Close)
	return r.Run(script)
}

func TestRunEchoAndMatch(t *testing.T) {
	res := runScript(t, `[doc]echo[enddoc]

[shell sh]
!echo hello world
?hello world
`)
	if res.Status != StatusOK {
		t.Fatalf("got %s", res)
	}
}

func TestRunTimeout(t *testing.T) {
	res := runScript(t, `[doc]timeout[enddoc]

[shell sh]
[timeout 1]
?this-will-never-appear
`)
	if res.Status != StatusTimeout {
		t.Fatalf("want TIMEOUT, got %s", res)
	}
}

func TestRunRegexCapture(t *testing.T) {
	res := runScript(t, `[doc]capture[enddoc]

[shell sh]
!echo VERSION-1.2.3
?VERSION-([0-9.]+)
[global v=${1}]
!echo GOT:${v}
?GOT:1.2.3
`)
	if res.Status != StatusOK {
		t.Fatalf("got %s", res)
	}
}

func TestRunFunctionCallScope(t *testing.T) {
	res := runScript(t, `[doc]call[enddoc]

[shell sh]
[function greet name]
!echo hi ${name}
??hi ${name}
[endfunction]
[call greet world]
`)
	if res.Status != StatusOK {
		t.Fatalf("got %s", res)
	}
}

func TestRunCleanupAlwaysRuns(t *testing.T) {
	env := syntax.NewScriptEnv()
	script, err := syntax.Parse(strings.NewReader(`[doc]cleanup[enddoc]

[shell sh]
!echo ok
?this-never-matches-so-body-fails

[cleanup]
!echo cleaning up
?cleaning up
[global DONE=1]
`), t.Name()+".plux", env)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := New(Config{DefaultTimeout: 3 * time.Second, LogRoot: t.TempDir()}, env, zerolog.Nop(), nil)
	t.Cleanup(r.Close)
	res := r.Run(script)
	if res.Status != StatusTimeout {
		t.Fatalf("want TIMEOUT from body failure, got %s", res)
	}
	if got, ok := r.Env().Get("", "DONE"); !ok || got != "1" {
		t.Errorf("cleanup section did not run: DONE = %q (set: %v)", got, ok)
	}
}

func TestRunInclude(t *testing.T) {
	dir := t.TempDir()
	helper := dir + "/helper.plux"
	if err := os.WriteFile(helper, []byte(`[doc]helper[enddoc]

[function say_hi]
!echo hi-from-include
??hi-from-include
[endfunction]
`), 0o644); err != nil {
		t.Fatalf("write helper: %v", err)
	}
	main := dir + "/main.plux"
	if err := os.WriteFile(main, []byte(`[doc]main[enddoc]
[include helper.plux]

[shell sh]
[call say_hi]
`), 0o644); err != nil {
		t.Fatalf("write main: %v", err)
	}

	env := syntax.NewScriptEnv()
	f, err := os.Open(main)
	if err != nil {
		t.Fatalf("open main: %v", err)
	}
	defer f.Close()
	script, err := syntax.Parse(f, main, env)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r := New(Config{DefaultTimeout: 3 * time.Second, LogRoot: dir}, env, zerolog.Nop(), nil)
	t.Cleanup(r.Close)
	res := r.Run(script)
	if res.Status != StatusOK {
		t.Fatalf("got %s", res)
	}
}

func TestRunShellHookInitStdlibFallback(t *testing.T) {
	res := runScript(t, `[doc]hookinit[enddoc]
[config set shell_hook_init=set_sh_prompt]

[shell sh]
!echo hook-ran
?hook-ran
`)
	if res.Status != StatusOK {
		t.Fatalf("got %s", res)
	}
}

func TestRunErrorPattern(t *testing.T) {
	res := runScript(t, `[doc]errpattern[enddoc]

[shell sh]
-PANIC
!echo about to PANIC now
?never-reached-because-error-pattern-fires-first
`)
	if res.Status != StatusError {
		t.Fatalf("want ERROR from error-pattern trip, got %s", res)
	}
}

func TestRunBuiltinStdlibCall(t *testing.T) {
	res := runScript(t, `[doc]builtin[enddoc]

[shell sh]
[call set_sh_prompt]
!echo builtin-ran
?builtin-ran
`)
	if res.Status != StatusOK {
		t.Fatalf("got %s", res)
	}
}
