package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/upplang/upp/compiler"
)

// readSource reads path off the real filesystem. It goes through afero
// (rather than os.ReadFile directly) so this command exercises the same
// filesystem abstraction compiler.LoadSource/SaveSource use for an editor's
// persisted source, and so a future test can swap in afero.NewMemMapFs
// without touching this call site.
func readSource(path string) (string, error) {
	data, err := afero.ReadFile(afero.NewOsFs(), path)
	if err != nil {
		return "", errors.Wrapf(err, "upp: reading %s", path)
	}
	return string(data), nil
}

// compileFile reads and compiles path, printing every accumulated
// diagnostic to stderr. It returns the resulting Unit and whether the
// compile was clean.
func compileFile(path string, shouldBuild bool) (*compiler.Unit, bool) {
	text, err := readSource(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, false
	}

	u := compiler.Compile(path, text, shouldBuild, compiler.Config{Logger: newLogger()})
	for _, d := range u.Diagnostics {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", d.Unit, d.Severity, d.Message)
	}
	return u, len(u.Diagnostics) == 0
}
