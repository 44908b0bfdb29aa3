// Command plux runs one or more .plux scripts against real shells and
// processes, reporting each as PASS, FAIL or TIMEOUT (spec §6.2).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/cormacrelf/plux/internal/logging"
	"github.com/cormacrelf/plux/interp"
	"github.com/cormacrelf/plux/shell"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("plux", pflag.ContinueOnError)
	dump := flags.BoolP("dump", "d", false, "emit the parsed model for each script and exit")
	help := flags.BoolP("help", "h", false, "show this help text")
	logLevel := flags.StringP("log-level", "l", "INFO", "TRACE, DEBUG, INFO, WARNING, or ERROR")
	tail := flags.BoolP("tail", "t", false, "mirror shell input to stderr")
	timeoutMs := flags.IntP("timeout", "T", 10000, "override the default per-shell timeout, in milliseconds")
	noColor := flags.Bool("no-color", false, "disable ANSI colors in status output")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, "plux:", err)
		return 1
	}
	if *help {
		fmt.Fprintln(os.Stderr, "usage: plux [flags] <script-glob>...")
		flags.PrintDefaults()
		return 0
	}
	patterns := flags.Args()
	if len(patterns) == 0 {
		fmt.Fprintln(os.Stderr, "plux: no script paths given")
		return 1
	}

	level, ok := logging.ParseLevel(*logLevel)
	if !ok {
		fmt.Fprintf(os.Stderr, "plux: unrecognized log level %q\n", *logLevel)
		return 1
	}
	appLogFile, err := logging.NewFileWriter("./plux.log")
	if err != nil {
		fmt.Fprintln(os.Stderr, "plux:", err)
		return 1
	}
	defer appLogFile.Close()
	appLog := logging.New(appLogFile, level)

	progressFile, err := logging.NewFileWriter("./plux.progress.log")
	if err != nil {
		fmt.Fprintln(os.Stderr, "plux:", err)
		return 1
	}
	defer progressFile.Close()

	color.NoColor = *noColor

	cfg := interp.Config{
		DefaultTimeout: time.Duration(*timeoutMs) * time.Millisecond,
		TailToStderr:   *tail,
	}
	if dir := os.Getenv("PLUX_STDLIB_PATH"); dir != "" {
		cfg.StdlibDir = dir
	}

	if *dump {
		return dumpAll(patterns)
	}

	results, err := shell.RunAll(patterns, cfg, appLog, progressFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "plux:", err)
		return 1
	}

	var failed []string
	for _, res := range results {
		printResult(res)
		if res.Status != interp.StatusOK {
			failed = append(failed, res.File)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(os.Stderr, "\nfailed scripts:")
		for _, f := range failed {
			fmt.Fprintln(os.Stderr, " ", f)
		}
		return 1
	}
	return 0
}

func printResult(res *interp.ScriptResult) {
	switch res.Status {
	case interp.StatusOK:
		fmt.Println(color.New(color.FgGreen, color.Bold).Sprint("PASS"), res.File)
	case interp.StatusTimeout:
		fmt.Println(color.New(color.FgYellow, color.Bold).Sprint("TIMEOUT"), res.File)
		fmt.Println(" ", res)
	default:
		fmt.Println(color.New(color.FgRed, color.Bold).Sprint("FAIL"), res.File)
		fmt.Println(" ", res)
	}
}
