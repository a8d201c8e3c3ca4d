package api

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/peer"
	"github.com/papercomputeco/voicenotes/pkg/session"
)

// Node is the device the API controls.
type Node interface {
	Origin() peer.Origin

	Get(ctx context.Context, id string) (*memo.Memo, error)
	List(ctx context.Context) ([]*memo.Memo, error)
	Delete(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) (*memo.Memo, error)
	OpenAudio(ctx context.Context, id string) (*memo.Memo, io.ReadCloser, error)

	StartRecording(ctx context.Context) error
	StartExtend(ctx context.Context, id string) error
	PauseRecording(ctx context.Context) error
	ResumeRecording(ctx context.Context) error
	Write(p []byte) (int, error)
	StopRecording(ctx context.Context) (*memo.Memo, error)
	SessionState() session.State
	Format() audio.Format

	RequestCatalog(ctx context.Context) error
}

// Server is the API server for a single device.
type Server struct {
	config Config
	node   Node
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server over node.
func NewServer(config Config, node Node, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, errors.New("api server requires a node")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             config.MaxUploadBytes,
	})

	s := &Server{
		config: config,
		node:   node,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/device", s.handleDevice)

	app.Get("/memos", s.handleListMemos)
	app.Get("/memos/:id", s.handleGetMemo)
	app.Delete("/memos/:id", s.handleDeleteMemo)
	app.Get("/memos/:id/audio", s.handleMemoAudio)
	app.Post("/memos/:id/retry", s.handleRetryMemo)
	app.Post("/memos/:id/extend", s.handleExtendMemo)

	app.Get("/recording", s.handleRecordingState)
	app.Post("/recording/start", s.handleRecordingStart)
	app.Post("/recording/pause", s.handleRecordingPause)
	app.Post("/recording/resume", s.handleRecordingResume)
	app.Post("/recording/stop", s.handleRecordingStop)
	app.Post("/recording/audio", s.handleRecordingAudio)

	app.Post("/sync/catalog", s.handleSyncCatalog)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
