// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

import "fmt"

// Set at release time with -ldflags -X.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent identifies this build to peers and remote services.
func UserAgent() string {
	return fmt.Sprintf("voicenotes/%s (%s)", Version, Sha)
}
