// Package interp is the execution engine: shell dispatch, per-shell
// timeout, multi-fd readiness poll, function-call stack, include loader,
// and signal reaping described in spec §4.5 and §5.
package interp

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cormacrelf/plux/expand"
	"github.com/cormacrelf/plux/internal/logging"
	"github.com/cormacrelf/plux/internal/signalbus"
	"github.com/cormacrelf/plux/stdlib"
	"github.com/cormacrelf/plux/syntax"
)

// Config holds the Runner's tunables, mirroring the teacher's pattern of a
// mostly-exported options struct on the Runner itself (spec §4.5).
type Config struct {
	// DefaultTimeout applies to any shell that hasn't had [timeout] set.
	DefaultTimeout time.Duration
	// ShellPath is the interactive shell spawned for a bare [shell NAME]
	// with no matching [process] declaration.
	ShellPath string
	// StdlibDir overrides where builtin-function include files are
	// loaded from; falls back to the package's embedded copies when empty.
	StdlibDir string
	// LogRoot is the base directory for per-shell input/output logs
	// (spec §6.4); defaults to "./plux".
	LogRoot string
	// TailToStderr mirrors every shell input write to stderr (-t/--tail).
	TailToStderr bool
}

func (c *Config) setDefaults() {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 10 * time.Second
	}
	if c.ShellPath == "" {
		c.ShellPath = "/bin/sh"
	}
	if c.LogRoot == "" {
		c.LogRoot = "./plux"
	}
}

// shellCtx bundles a live Process with its per-shell log sinks.
type shellCtx struct {
	proc      Process
	inputLog  io.Writer
	outputLog io.Writer
}

// Runner is the single-threaded cooperative scheduler described in spec
// §4.5/§5: it owns every live Process, the VarStore, the function-call
// stack, and the signal bus, and is the only thing that ever mutates any
// of them.
type Runner struct {
	Config   Config
	Log      zerolog.Logger
	Progress io.Writer

	env        *expand.VarStore
	scriptEnv  *syntax.ScriptEnv
	shells     map[string]*shellCtx
	shellOrder []string

	callStack     []Frame
	shellHookInit string

	signals *signalbus.Bus
	wake    chan struct{}

	scriptDirs []string // stack of dirname(current script), for include resolution
}

// New builds a Runner ready to Run scripts. scriptEnv may be shared across
// multiple Runner instances/scripts; nil gets a fresh, empty one.
func New(cfg Config, scriptEnv *syntax.ScriptEnv, appLog zerolog.Logger, progress io.Writer) *Runner {
	cfg.setDefaults()
	if scriptEnv == nil {
		scriptEnv = syntax.NewScriptEnv()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Runner{
		Config:    cfg,
		Log:       appLog,
		Progress:  progress,
		env:       expand.NewVarStore(),
		scriptEnv: scriptEnv,
		shells:    map[string]*shellCtx{},
		signals:   signalbus.New(),
		wake:      make(chan struct{}, 1),
	}
}

// Close releases the signal bus and stops every live shell. Call once the
// Runner is done with all scripts.
func (r *Runner) Close() {
	for _, sc := range r.shells {
		_ = sc.proc.Stop()
	}
	r.signals.Close()
}

// Stop cooperatively requests that the run abort at the next line
// boundary (spec §5).
func (r *Runner) Stop() { r.signals.RequestStop() }

// Env exposes the VarStore, for a host embedding plux as a library that
// wants to seed globals before Run or inspect variables after it.
func (r *Runner) Env() *expand.VarStore { return r.env }

// Run executes one script's headers, then (if headers succeeded) its
// body, then always its cleanup section, per spec §4.5: "run(script) =
// run_lines(headers) ; if OK run_lines(body) ; always run_lines(cleanup)".
func (r *Runner) Run(script *syntax.Script) *ScriptResult {
	dir := filepath.Dir(script.File)
	r.scriptDirs = append(r.scriptDirs, dir)
	defer func() { r.scriptDirs = r.scriptDirs[:len(r.scriptDirs)-1] }()

	first := r.runLines(script, script.Headers)
	if first == nil {
		first = r.runLines(script, script.Body)
	}
	cleanupResult := r.runLines(script, script.Cleanup)
	if first != nil {
		return first
	}
	if cleanupResult != nil {
		return cleanupResult
	}
	return &ScriptResult{Status: StatusOK, File: script.File}
}

func (r *Runner) runLines(script *syntax.Script, lines []syntax.Line) *ScriptResult {
	for _, line := range lines {
		if r.signals.Stopped() {
			return resultFrom(line.Source(), r.callStack, fmt.Errorf("run stopped"))
		}
		if res := r.runLine(script, line); res != nil {
			return res
		}
	}
	return nil
}

// resolveShell expands a line's raw shell selector, falling back to the
// calling function's shell when empty, per spec §4.5 step 1.
func (r *Runner) resolveShell(line syntax.Line) (string, error) {
	raw := line.ShellSel()
	if raw == "" {
		if len(r.callStack) > 0 {
			return r.callStack[len(r.callStack)-1].Shell, nil
		}
		return "", nil
	}
	return expand.Expand(r.env, "", raw)
}

// runLine dispatches a single parsed Line. It returns nil on success and a
// *ScriptResult describing the first failure otherwise; CALL/INCLUDE/SET
// are handled inline rather than surfaced to the caller, per spec §4.5.
func (r *Runner) runLine(script *syntax.Script, line syntax.Line) *ScriptResult {
	fail := func(err error) *ScriptResult { return resultFrom(line.Source(), r.callStack, err) }

	switch v := line.(type) {
	case syntax.HeaderRequireLine:
		val, ok := r.env.Get("", v.Key)
		if !ok || (v.HasVal && val != v.Val) {
			return fail(&ScriptError{Reason: fmt.Sprintf("required config %q not satisfied", v.Key)})
		}
		return nil

	case syntax.HeaderSetLine:
		if v.Key == "shell_hook_init" {
			r.shellHookInit = v.Val
		}
		// Every other key is silently ignored, per spec §9's open
		// question: SET is only ever consumed for shell_hook_init.
		return nil

	case syntax.HeaderIncludeLine:
		if err := r.runInclude(v.Path); err != nil {
			return fail(err)
		}
		return nil

	case syntax.AssignGlobalLine:
		shell, err := r.resolveShell(v)
		if err != nil {
			return fail(err)
		}
		val, err := expand.Expand(r.env, shell, v.Val)
		if err != nil {
			return fail(&ScriptError{Reason: "expanding [global] value", Cause: err})
		}
		_ = r.env.Set(expand.Global, "", v.Key, val)
		return nil

	case syntax.AssignShellLine:
		shell, err := r.resolveShell(v)
		if err != nil {
			return fail(err)
		}
		val, err := expand.Expand(r.env, shell, v.Val)
		if err != nil {
			return fail(&ScriptError{Reason: "expanding [local] value", Cause: err})
		}
		_ = r.env.Set(expand.Shell, shell, v.Key, val)
		return nil

	case syntax.SendOutputLine:
		return r.runSendOutput(script, v, fail)

	case syntax.MatchExactLine:
		return r.runMatch(script, v, v.Pattern, fail)
	case syntax.MatchVarLine:
		return r.runMatch(script, v, v.Pattern, fail)
	case syntax.MatchRegexLine:
		return r.runMatch(script, v, v.Pattern, fail)

	case syntax.SetErrorPatternLine:
		shell, err := r.resolveShell(v)
		if err != nil {
			return fail(err)
		}
		sc, err := r.ensureShell(script, shell)
		if err != nil {
			return fail(err)
		}
		if v.Clear {
			_ = sc.proc.SetErrorPattern("")
			return nil
		}
		pat, err := expand.Expand(r.env, shell, v.Pattern)
		if err != nil {
			return fail(&ScriptError{Reason: "expanding error pattern", Cause: err})
		}
		if err := sc.proc.SetErrorPattern(pat); err != nil {
			return fail(err)
		}
		return nil

	case syntax.TimeoutLine:
		shell, err := r.resolveShell(v)
		if err != nil {
			return fail(err)
		}
		sc, err := r.ensureShell(script, shell)
		if err != nil {
			return fail(err)
		}
		if v.Ms == 0 {
			sc.proc.SetTimeout(r.Config.DefaultTimeout)
		} else {
			sc.proc.SetTimeout(time.Duration(v.Ms) * time.Millisecond)
		}
		return nil

	case syntax.CallLine:
		return r.runCall(script, v, fail)

	case syntax.ProgressLine:
		shell, _ := r.resolveShell(v)
		text, err := expand.Expand(r.env, shell, v.Text)
		if err != nil {
			return fail(&ScriptError{Reason: "expanding [progress] text", Cause: err})
		}
		fmt.Fprintln(r.Progress, text)
		return nil

	case syntax.LogLine:
		shell, _ := r.resolveShell(v)
		text, err := expand.Expand(r.env, shell, v.Text)
		if err != nil {
			return fail(&ScriptError{Reason: "expanding [log] text", Cause: err})
		}
		r.Log.Info().Str("shell", shell).Msg(text)
		return nil
	}
	return fail(&ScriptError{Reason: fmt.Sprintf("unhandled line kind %v", line.Kind())})
}

func (r *Runner) runSendOutput(script *syntax.Script, v syntax.SendOutputLine, fail func(error) *ScriptResult) *ScriptResult {
	shell, err := r.resolveShell(v)
	if err != nil {
		return fail(err)
	}
	sc, err := r.ensureShell(script, shell)
	if err != nil {
		return fail(err)
	}
	text, err := expand.Expand(r.env, shell, v.Text)
	if err != nil {
		return fail(&ScriptError{Reason: "expanding send text", Cause: err})
	}
	payload := syntax.UnescapeSendText(text)
	if payload != "\x03" {
		payload += "\n"
	}
	if r.Config.TailToStderr {
		fmt.Fprint(os.Stderr, payload)
	}
	fmt.Fprint(sc.inputLog, payload)
	if ok, err := sc.proc.Write([]byte(payload)); err != nil {
		return fail(&ShellError{Shell: shell, Reason: "write failed: " + err.Error()})
	} else if !ok {
		return fail(&ShellError{Shell: shell, Reason: "write would block"})
	}
	return nil
}

// matchLike is implemented by the three match Line structs so runMatch
// can stay generic over them.
type matchLike interface {
	syntax.Line
}

func (r *Runner) runMatch(script *syntax.Script, line matchLike, rawPattern string, fail func(error) *ScriptResult) *ScriptResult {
	shell, err := r.resolveShell(line)
	if err != nil {
		return fail(err)
	}
	sc, err := r.ensureShell(script, shell)
	if err != nil {
		return fail(err)
	}
	sc.proc.SetTimeout(firstNonZero(sc.proc.Timeout(), r.Config.DefaultTimeout))
	deadline := time.Now().Add(sc.proc.Timeout())

	for {
		// A dead shell can still satisfy a match against buffered output
		// (e.g. the synthetic PROCESS-EXIT line), so liveness is checked
		// only as part of the poll below, never here.
		res, err := evaluateMatch(sc.proc, line.Kind(), rawPattern, r.env, shell)
		if err != nil {
			return fail(err)
		}
		if res.ok {
			if line.Kind() == syntaxKindMatchRegex {
				bindGroups(r.env, shell, res.groups)
			}
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fail(&TimeoutError{Shell: shell})
		}
		if err := r.pollOnce(remaining); err != nil {
			return fail(err)
		}
		if r.signals.Stopped() {
			return fail(fmt.Errorf("run stopped"))
		}
	}
}

func firstNonZero(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (r *Runner) runCall(script *syntax.Script, v syntax.CallLine, fail func(error) *ScriptResult) *ScriptResult {
	shell, err := r.resolveShell(v)
	if err != nil {
		return fail(err)
	}
	name, err := expand.Expand(r.env, shell, v.Name)
	if err != nil {
		return fail(&ScriptError{Reason: "expanding call name", Cause: err})
	}
	args := make([]string, len(v.Args))
	for i, a := range v.Args {
		expanded, err := expand.Expand(r.env, shell, a)
		if err != nil {
			return fail(&ScriptError{Reason: "expanding call argument", Cause: err})
		}
		args[i] = expanded
	}

	fn, err := r.resolveFunction(name)
	if err != nil {
		return fail(err)
	}
	if len(fn.Params) != len(args) {
		return fail(&UndefinedArgumentError{Function: name, WantArgs: len(fn.Params), Got: len(args)})
	}
	return r.runFunction(script, fn, shell, args)
}

// resolveFunction looks up name in the script-wide function table, falling
// back to loading it as a stdlib builtin (and re-looking it up) on a miss,
// so [call] and shell_hook_init can both reach a builtin without an
// explicit [include].
func (r *Runner) resolveFunction(name string) (*syntax.Function, error) {
	if fn, ok := r.scriptEnv.Lookup(name); ok {
		return fn, nil
	}
	stdlibFile, isBuiltin := stdlib.Builtins[name]
	if !isBuiltin {
		return nil, &UndefinedFunctionError{Name: name}
	}
	if err := r.includeStdlib(stdlibFile); err != nil {
		return nil, err
	}
	fn, ok := r.scriptEnv.Lookup(name)
	if !ok {
		return nil, &UndefinedFunctionError{Name: name}
	}
	return fn, nil
}

// runFunction implements spec §4.5.2: push a call-stack frame and a fresh
// VarStore function scope, bind parameters under shell="" plus
// FUNCTION_SHELL, run the body, then always pop both, balanced even on
// failure (spec invariant 6).
func (r *Runner) runFunction(script *syntax.Script, fn *syntax.Function, callerShell string, args []string) *ScriptResult {
	r.callStack = append(r.callStack, Frame{Function: fn.Name, Shell: callerShell})
	r.env.PushFunction(fn.Name)
	defer func() {
		r.env.PopFunction()
		r.callStack = r.callStack[:len(r.callStack)-1]
	}()

	for i, param := range fn.Params {
		if i >= len(args) {
			break
		}
		_ = r.env.Set(expand.Function, "", param, args[i])
	}
	_ = r.env.Set(expand.Function, "", "FUNCTION_SHELL", callerShell)

	return r.runLines(script, fn.Body)
}

// runInclude implements spec §4.5.3: resolve path against the current
// script's directory, parse into a fresh Script sharing this Runner's
// ScriptEnv, and run it (headers + body + cleanup) inline.
func (r *Runner) runInclude(path string) error {
	resolved := path
	if !filepath.IsAbs(path) && len(r.scriptDirs) > 0 {
		resolved = filepath.Join(r.scriptDirs[len(r.scriptDirs)-1], path)
	}
	return r.includeFile(resolved)
}

func (r *Runner) includeStdlib(filename string) error {
	dir := r.Config.StdlibDir
	if dir != "" {
		return r.includeFile(filepath.Join(dir, filename))
	}
	data, err := stdlib.ReadFile(filename)
	if err != nil {
		return &ScriptError{Reason: "loading stdlib file " + filename, Cause: err}
	}
	sub, err := syntax.Parse(strings.NewReader(string(data)), "stdlib/"+filename, r.scriptEnv)
	if err != nil {
		return &ScriptError{Reason: "parsing stdlib file " + filename, Cause: err}
	}
	if res := r.Run(sub); res.Status != StatusOK {
		return res.Err
	}
	return nil
}

func (r *Runner) includeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &ScriptError{Reason: "opening include " + path, Cause: err}
	}
	defer f.Close()
	sub, err := syntax.Parse(f, path, r.scriptEnv)
	if err != nil {
		return &ScriptError{Reason: "parsing include " + path, Cause: err}
	}
	if res := r.Run(sub); res.Status != StatusOK {
		return res.Err
	}
	return nil
}

// ensureShell lazily spawns a shell/process on first use (spec §4.5.1):
// look up a [process] definition by name in the current script, else
// spawn a plain PTY shell; attach file-backed logs; and, for each newly
// spawned PTY shell if shell_hook_init is set, run that hook function
// against it.
func (r *Runner) ensureShell(script *syntax.Script, name string) (*shellCtx, error) {
	if sc, ok := r.shells[name]; ok {
		return sc, nil
	}

	inputLog, outputLog := io.Writer(io.Discard), io.Writer(io.Discard)
	isPTY := true
	var proc Process
	var err error

	env := r.mergedOSEnv()
	if argv, ok := script.ProcessDefs[name]; ok {
		isPTY = false
		proc, err = spawnPipe(name, env, argv, r.wake)
	} else {
		proc, err = spawnPTY(name, env, r.Config.ShellPath, r.wake)
	}
	if err != nil {
		return nil, err
	}
	proc.SetTimeout(r.Config.DefaultTimeout)

	if name != "" {
		dir := filepath.Join(r.Config.LogRoot, baseNoExt(script.File))
		if err := os.MkdirAll(dir, 0o755); err == nil {
			if f, err := logging.NewFileWriter(filepath.Join(dir, name+"_input.log")); err == nil {
				inputLog = f
			}
			if f, err := logging.NewFileWriter(filepath.Join(dir, name+"_output.log")); err == nil {
				outputLog = f
			}
		}
	}

	sc := &shellCtx{proc: proc, inputLog: inputLog, outputLog: outputLog}
	r.shells[name] = sc
	r.shellOrder = append(r.shellOrder, name)

	if isPTY && r.shellHookInit != "" {
		fn, err := r.resolveFunction(r.shellHookInit)
		if err != nil {
			return sc, err
		}
		if res := r.runFunction(script, fn, name, nil); res != nil && res.Status != StatusOK {
			return sc, res.Err
		}
	}
	return sc, nil
}

// mergedOSEnv renders the current process environment as a KEY=VALUE
// slice for exec.Cmd.Env, followed by the forced ENV/PS1 overrides spec
// §6.3 requires.
func (r *Runner) mergedOSEnv() []string {
	var out []string
	for _, kv := range os.Environ() {
		out = append(out, kv)
	}
	out = append(out, "ENV=/dev/null", "PS1=SH-PROMPT:")
	return out
}

func baseNoExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// syntaxKindMatchRegex avoids importing syntax's constant under a
// different name in every call site above.
const syntaxKindMatchRegex = syntax.KindMatchRegex
