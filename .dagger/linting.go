package main

import (
	"context"
	"fmt"

	"dagger/voicenotes/internal/dagger"
)

const golangciLintVersion = "v2.8.0"

// lintOpts layers golangci-lint on top of goContainer so cgo and the sqlite
// headers are available to the type checker.
func (v *Voicenotes) lintOpts() dagger.GolangcilintOpts {
	base := v.goContainer("").
		WithExec([]string{
			"go",
			"install",
			fmt.Sprintf("github.com/golangci/golangci-lint/v2/cmd/golangci-lint@%s", golangciLintVersion),
		})

	return dagger.GolangcilintOpts{BaseCtr: base}
}

// CheckLint runs golangci-lint without applying fixes.
//
// +check
func (v *Voicenotes) CheckLint(ctx context.Context) (string, error) {
	return dag.Golangcilint(v.Source, v.lintOpts()).Check(ctx)
}

// FixLint runs golangci-lint with --fix and returns the modified source directory.
func (v *Voicenotes) FixLint(ctx context.Context) *dagger.Directory {
	return dag.Golangcilint(v.Source, v.lintOpts()).Lint()
}
