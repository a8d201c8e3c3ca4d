// Package api provides the HTTP API a device's user interface drives: memo
// browsing and playback, recording control and sync requests.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// MaxUploadBytes bounds a single /recording/audio body. Zero uses
	// fiber's default body limit.
	MaxUploadBytes int
}
