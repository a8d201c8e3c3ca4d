// Voicenotes CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/voicenotes/internal/dagger"
)

// Voicenotes is the main module for the voicenotes CI/CD pipeline
type Voicenotes struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Voicenotes CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".voicenotes", "build", "tmp"]
	source *dagger.Directory,
) *Voicenotes {
	return &Voicenotes{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container for platform with
// gcc, libsqlite3-dev and CGO enabled. go-sqlite3 needs cgo, so every build
// and test runs here. An empty platform uses the engine's own.
func (v *Voicenotes) goContainer(platform dagger.Platform) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{Platform: platform}).
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build-"+string(platform))).
		WithWorkdir("/src").
		WithDirectory("/src", v.Source)
}

// Test runs the voicenotes unit tests via "go test"
//
// +check
func (v *Voicenotes) Test(ctx context.Context) (string, error) {
	return v.goContainer("").
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}
