package pattern

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestCompileShorthand(t *testing.T) {
	tests := []struct {
		pat   string
		match string
		want  bool
	}{
		{`\d+`, "42", true},
		{`\d+`, "abc", false},
		{`\w+@\w+`, "user@host", true},
		{`\s+`, "   ", true},
		{`[\d]`, "5", false}, // shorthand inside a user class is NOT special-cased
		{`hello ([a-z]+) and ([0-9]+)!`, "hello world and 2021!", true},
	}
	for _, tc := range tests {
		c := qt.New(t)
		re, err := Compile(tc.pat)
		c.Assert(err, qt.IsNil, qt.Commentf("Compile(%q)", tc.pat))
		got := re.MatchString(tc.match)
		c.Check(got, qt.Equals, tc.want, qt.Commentf("Compile(%q).MatchString(%q)", tc.pat, tc.match))
	}
}

func TestCompileInvalid(t *testing.T) {
	c := qt.New(t)
	_, err := Compile(`(unterminated`)
	c.Check(err, qt.IsNotNil, qt.Commentf("unterminated group"))
	_, err = Compile(`[unterminated`)
	c.Check(err, qt.IsNotNil, qt.Commentf("unterminated character class"))
}

func TestEndsInDollar(t *testing.T) {
	tests := []struct {
		pat  string
		want bool
	}{
		{"foo$", true},
		{"foo", false},
		{`foo\$`, false},
		{`foo\\$`, true},
	}
	c := qt.New(t)
	for _, tc := range tests {
		c.Check(EndsInDollar(tc.pat), qt.Equals, tc.want, qt.Commentf("EndsInDollar(%q)", tc.pat))
	}
}
