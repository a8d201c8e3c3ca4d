package main

import (
	"context"
	"errors"
	"fmt"

	"dagger/voicenotes/internal/dagger"
)

// expectClean runs script in the Go container and turns a failing exit into
// an error that tells the committer how to fix it.
func (v *Voicenotes) expectClean(ctx context.Context, script, fix string) (string, error) {
	out, err := v.goContainer("").
		WithExec([]string{"sh", "-c", script}).
		Stdout(ctx)

	var e *dagger.ExecError
	if errors.As(err, &e) {
		return "", fmt.Errorf("%s\n\n%s%s", fix, e.Stdout, e.Stderr)
	}
	if err != nil {
		return "", fmt.Errorf("unexpected error: %w", err)
	}
	return out, nil
}

// CheckGoModTidy fails when "go mod tidy" would change go.mod or go.sum.
//
// +check
func (v *Voicenotes) CheckGoModTidy(ctx context.Context) (string, error) {
	return v.expectClean(ctx,
		"cp go.mod /tmp/go.mod && cp go.sum /tmp/go.sum && go mod tidy && "+
			"diff -u /tmp/go.mod go.mod && diff -u /tmp/go.sum go.sum",
		"go.mod or go.sum are not tidy: run 'go mod tidy' and commit the changes",
	)
}

// CheckFormat fails when any Go file is not gofmt clean.
//
// +check
func (v *Voicenotes) CheckFormat(ctx context.Context) (string, error) {
	return v.expectClean(ctx,
		`files=$(find . -name '*.go' -not -path './_examples/*' -not -path './.dagger/*' | xargs gofmt -l); `+
			`if [ -n "$files" ]; then echo "$files"; exit 1; fi`,
		"unformatted files: run 'gofmt -w' on them",
	)
}
