package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/voicenotes/internal/dagger"
)

// Build and return directory of go binaries
func (v *Voicenotes) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	// cgo rules out cross compiling from one host, so each platform builds
	// in its own (possibly emulated) container.
	platforms := []dagger.Platform{"linux/amd64", "linux/arm64"}

	outputs := dag.Directory()
	for _, platform := range platforms {
		path := string(platform) + "/"

		build := v.goContainer(platform).
			WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/voicenotes"})

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (v *Voicenotes) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/voicenotes/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/voicenotes/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/voicenotes/pkg/utils.Buildtime=%s'", buildtime),
	}

	return v.Build(ctx, strings.Join(ldflags, " "))
}
