package main

import (
	"fmt"
	"os"

	"github.com/cormacrelf/plux/shell"
	"github.com/cormacrelf/plux/syntax"
)

// dumpAll implements -d/--dump: parse every matched script (never run it)
// and print its structure, for inspecting what the parser produced.
func dumpAll(patterns []string) int {
	paths, err := shell.Glob(patterns)
	if err != nil {
		fmt.Fprintln(os.Stderr, "plux:", err)
		return 1
	}
	status := 0
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "plux: %s: %v\n", path, err)
			status = 1
			continue
		}
		env := syntax.NewScriptEnv()
		script, err := syntax.Parse(f, path, env)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "plux: %s: %v\n", path, err)
			status = 1
			continue
		}
		dumpScript(script)
	}
	return status
}

func dumpScript(s *syntax.Script) {
	fmt.Printf("%s\n", s.File)
	if s.Doc != "" {
		fmt.Printf("  doc: %s\n", s.Doc)
	}
	fmt.Printf("  headers: %d\n", len(s.Headers))
	for _, line := range s.Headers {
		dumpLine(line, "    ")
	}
	fmt.Printf("  body: %d\n", len(s.Body))
	for _, line := range s.Body {
		dumpLine(line, "    ")
	}
	if len(s.Cleanup) > 0 {
		fmt.Printf("  cleanup: %d\n", len(s.Cleanup))
		for _, line := range s.Cleanup {
			dumpLine(line, "    ")
		}
	}
	if len(s.ProcessDefs) > 0 {
		fmt.Printf("  process defs: %d\n", len(s.ProcessDefs))
		for name, argv := range s.ProcessDefs {
			fmt.Printf("    %s: %v\n", name, argv)
		}
	}
}

func dumpLine(line syntax.Line, indent string) {
	pos := line.Source()
	shellSel := line.ShellSel()
	if shellSel == "" {
		shellSel = "-"
	}
	fmt.Printf("%s%s:%d [%s] %s\n", indent, pos.File, pos.Line, shellSel, line.Kind())
}
