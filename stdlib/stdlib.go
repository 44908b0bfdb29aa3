// Package stdlib holds plux's builtin function table: a small set of
// [call]-able helpers every script gets for free, without an explicit
// [include], the way the original ecosystem ships wait_prompt and
// friends (spec §6.5).
package stdlib

import "embed"

//go:embed files/*.plux
var fs embed.FS

// Builtins maps a builtin function name to the embedded file that
// defines it. runner.go's includeStdlib loads and parses the file on
// first [call] of a name not already registered by the script itself or
// an explicit [include].
var Builtins = map[string]string{
	"wait_prompt":      "wait_prompt.plux",
	"assert_exit_zero": "assert_exit_zero.plux",
	"set_sh_prompt":    "set_sh_prompt.plux",
}

// ReadFile returns the embedded contents of one of the files named in
// Builtins.
func ReadFile(name string) ([]byte, error) {
	return fs.ReadFile("files/" + name)
}
