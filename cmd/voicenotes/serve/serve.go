// Package servecmder provides the serve command, which runs one device: its
// node, the HTTP API and the sync transport to the paired device.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/voicenotes/api"
	"github.com/papercomputeco/voicenotes/pkg/config"
	"github.com/papercomputeco/voicenotes/pkg/logger"
	"github.com/papercomputeco/voicenotes/pkg/peer/websocket"
)

const shutdownTimeout = 10 * time.Second

type serveCommander struct {
	configDir string
	debug     bool
	jsonLogs  bool
	logFile   string

	// Flag targets. Resolved values live in cfg.
	deviceID      string
	role          string
	sqlitePath    string
	postgresDSN   string
	blobDriver    string
	blobRoot      string
	transcriber   string
	syncListen    string
	syncPeer      string
	syncToken     string
	includeAudio  bool
	pushWorkers   uint
	apiListen     string
	eventProvider string

	cfg *config.Config
}

const serveLongDesc string = `Run a voicenotes device.

Starts the memo node, the HTTP API a user interface drives, and the sync
transport to the paired device. A primary device (the phone) accepts its
companion on sync.listen; a companion (the watch) dials sync.peer and
reconnects whenever the link drops.

Configuration precedence: flags, VOICENOTES_* environment variables,
config.toml, defaults.

Examples:
  voicenotes serve
  voicenotes serve --role companion --peer ws://phone.local:8082/sync
  voicenotes serve --transcriber openai --sqlite ./memos.db`

const serveShortDesc string = "Run a voicenotes device"

var serveFlagKeys = []string{
	config.FlagDeviceID,
	config.FlagRole,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagBlobDriver,
	config.FlagBlobRoot,
	config.FlagTranscriber,
	config.FlagSyncListen,
	config.FlagSyncPeer,
	config.FlagSyncToken,
	config.FlagIncludeAudio,
	config.FlagPushWorkers,
	config.FlagAPIListen,
	config.FlagEventProvider,
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagDeviceID, &cmder.deviceID)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagRole, &cmder.role)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagBlobDriver, &cmder.blobDriver)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagBlobRoot, &cmder.blobRoot)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagTranscriber, &cmder.transcriber)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSyncListen, &cmder.syncListen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSyncPeer, &cmder.syncPeer)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSyncToken, &cmder.syncToken)
	config.AddBoolFlag(cmd, config.ServeFlags, config.FlagIncludeAudio, &cmder.includeAudio)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagPushWorkers, &cmder.pushWorkers)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &cmder.apiListen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventProvider, &cmder.eventProvider)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Log as JSON instead of styled text")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(parent context.Context) error {
	if err := c.resolveDeviceID(); err != nil {
		return err
	}
	log, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dev, err := c.build(ctx, log)
	if err != nil {
		return err
	}
	defer dev.close()

	apiServer, err := api.NewServer(api.Config{ListenAddr: c.cfg.API.Listen}, dev.node, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := dev.node.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("node error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := apiServer.Run(); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return apiServer.Shutdown()
	})

	switch ch := dev.channel.(type) {
	case *websocket.Listener:
		c.serveSync(gctx, g, ch, log)
	case *websocket.Dialer:
		g.Go(func() error {
			if err := ch.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("sync dialer error: %w", err)
			}
			return nil
		})
	}

	log.Info("device running", "api_addr", c.cfg.API.Listen)

	err = g.Wait()
	if ctx.Err() != nil {
		log.Info("received signal, shutting down")
	}

	dev.node.Wait()
	return err
}

// newLogger logs to stdout, and additionally as JSON to --log-file when set.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	device := logger.WithDevice(c.cfg.Device.ID, c.cfg.Device.Role)
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(!c.jsonLogs),
		logger.WithJSON(c.jsonLogs),
		device,
	)
	if c.logFile == "" {
		return console, func() {}, nil
	}

	f, err := logger.OpenFile(c.logFile)
	if err != nil {
		return nil, nil, err
	}
	file := logger.New(logger.WithDebug(c.debug), logger.WithJSON(true), logger.WithWriter(f), device)
	return logger.Multi(console, file), func() { _ = f.Close() }, nil
}

func (c *serveCommander) serveSync(ctx context.Context, g *errgroup.Group, listener *websocket.Listener, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(websocket.Path, listener)
	server := &http.Server{
		Addr:              c.cfg.Sync.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("accepting companion", "sync_addr", c.cfg.Sync.Listen, "path", websocket.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("sync server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// Shutdown does not track hijacked connections.
		_ = listener.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}
