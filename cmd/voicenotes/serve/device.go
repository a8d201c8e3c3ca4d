package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/blob"
	"github.com/papercomputeco/voicenotes/pkg/blob/fs"
	"github.com/papercomputeco/voicenotes/pkg/blob/memory"
	"github.com/papercomputeco/voicenotes/pkg/blob/s3"
	"github.com/papercomputeco/voicenotes/pkg/capture"
	"github.com/papercomputeco/voicenotes/pkg/dotdir"
	"github.com/papercomputeco/voicenotes/pkg/eventstream"
	"github.com/papercomputeco/voicenotes/pkg/eventstream/kafka"
	"github.com/papercomputeco/voicenotes/pkg/eventstream/nop"
	"github.com/papercomputeco/voicenotes/pkg/node"
	"github.com/papercomputeco/voicenotes/pkg/peer"
	"github.com/papercomputeco/voicenotes/pkg/peer/websocket"
	"github.com/papercomputeco/voicenotes/pkg/pipeline"
	"github.com/papercomputeco/voicenotes/pkg/session"
	"github.com/papercomputeco/voicenotes/pkg/storage"
	"github.com/papercomputeco/voicenotes/pkg/storage/postgres"
	"github.com/papercomputeco/voicenotes/pkg/storage/sqlite"
	"github.com/papercomputeco/voicenotes/pkg/transcribe"
	"github.com/papercomputeco/voicenotes/pkg/transcribe/google"
	"github.com/papercomputeco/voicenotes/pkg/transcribe/openai"
)

// device holds everything serve starts, in the order it must be closed.
type device struct {
	node    *node.Node
	channel peer.Channel
	closers []io.Closer
	logger  *slog.Logger
}

func (d *device) close() {
	d.node.Close()
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			d.logger.Warn("failed to close component", "error", err)
		}
	}
}

// build wires the device described by c.cfg. On error every component
// created so far is closed.
func (c *serveCommander) build(ctx context.Context, log *slog.Logger) (dev *device, err error) {
	if err := c.resolveDeviceID(); err != nil {
		return nil, err
	}
	cfg := c.cfg
	role := peer.Role(cfg.Device.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("unknown device role %q", cfg.Device.Role)
	}

	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i].Close()
			}
		}
	}()

	blobs, err := c.newBlobStore(ctx, log)
	if err != nil {
		return nil, err
	}
	editor := audio.NewEditor(blobs, log)

	driver, err := c.newStorageDriver(ctx, log)
	if err != nil {
		return nil, err
	}
	store := storage.NewStore(driver, editor, log)
	closers = append(closers, store)

	format := audio.Format{
		SampleRate:    uint32(cfg.Audio.SampleRate),
		Channels:      uint16(cfg.Audio.Channels),
		BitsPerSample: uint16(cfg.Audio.BitsPerSample),
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("audio format: %w", err)
	}

	transcriber, err := c.newTranscriber(ctx, editor, log)
	if err != nil {
		return nil, err
	}
	if closer, ok := transcriber.(io.Closer); ok {
		closers = append(closers, closer)
	}
	_, unavailable := transcriber.(transcribe.Unavailable)

	publisher, err := c.newPublisher(log)
	if err != nil {
		return nil, err
	}
	closers = append(closers, publisher)

	channel, err := c.newChannel(role, log)
	if err != nil {
		return nil, err
	}
	closers = append(closers, channel)

	n, err := node.New(nodeConfig(node.Config{
		DeviceID:     cfg.Device.ID,
		Role:         role,
		Store:        store,
		Editor:       editor,
		Session:      session.New(capture.External{}, editor, format, log),
		Pipeline:     pipeline.New(editor, transcriber, log),
		Channel:      channel,
		Publisher:    publisher,
		IncludeAudio: cfg.Sync.IncludeAudio,
		PushWorkers:  cfg.Sync.PushWorkers,
		QueueSize:    cfg.Sync.QueueSize,
		Logger:       log,
	}, !unavailable))
	if err != nil {
		return nil, err
	}

	return &device{
		node:    n,
		channel: channel,
		closers: closers,
		logger:  log,
	}, nil
}

// resolveDeviceID falls back to the hostname when no device id is configured.
func (c *serveCommander) resolveDeviceID() error {
	if c.cfg.Device.ID != "" {
		return nil
	}
	host, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("resolving device id: %w", err)
	}
	c.cfg.Device.ID = host
	return nil
}

// nodeConfig applies the role defaults. A companion pulls the catalog on every
// connect and leaves transcription to its primary when it cannot transcribe;
// a primary that can transcribe does so for pending memos it receives.
func nodeConfig(cfg node.Config, canTranscribe bool) node.Config {
	switch cfg.Role {
	case peer.RoleCompanion:
		cfg.RequestCatalogOnConnect = true
		cfg.DeferTranscription = !canTranscribe
	case peer.RolePrimary:
		cfg.TranscribeRemotePending = canTranscribe
	}
	return cfg
}

func (c *serveCommander) newStorageDriver(ctx context.Context, log *slog.Logger) (storage.Driver, error) {
	if dsn := c.cfg.Storage.PostgresDSN; dsn != "" {
		driver, err := postgres.NewDriver(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil
	}

	path := c.cfg.Storage.SQLitePath
	if path == "" {
		var err error
		path, err = dotdir.NewManager().DatabasePath(c.configDir)
		if err != nil {
			return nil, err
		}
	}

	driver, err := sqlite.NewDriver(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
	}
	log.Info("using SQLite storage", "path", path)
	return driver, nil
}

func (c *serveCommander) newBlobStore(ctx context.Context, log *slog.Logger) (blob.Store, error) {
	bc := c.cfg.Blob
	switch blob.Driver(bc.Driver) {
	case blob.DriverMemory:
		log.Info("using in-memory audio store")
		return memory.New(), nil

	case blob.DriverFilesystem, "":
		root := bc.Root
		if root == "" {
			var err error
			root, err = dotdir.NewManager().AudioRoot(c.configDir)
			if err != nil {
				return nil, err
			}
		}
		store, err := fs.New(root)
		if err != nil {
			return nil, err
		}
		log.Info("using filesystem audio store", "root", root)
		return store, nil

	case blob.DriverS3:
		store, err := s3.New(ctx, s3.Config{
			Bucket:    bc.S3Bucket,
			Region:    bc.S3Region,
			Endpoint:  bc.S3Endpoint,
			PathStyle: bc.S3PathStyle,
			Prefix:    bc.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 audio store: %w", err)
		}
		log.Info("using S3 audio store", "bucket", bc.S3Bucket, "prefix", bc.S3Prefix)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown blob driver %q", bc.Driver)
	}
}

// newTranscriber builds the configured provider. A provider that is
// configured but unusable degrades to transcribe.Unavailable so the device
// still records.
func (c *serveCommander) newTranscriber(ctx context.Context, source transcribe.Source, log *slog.Logger) (transcribe.Transcriber, error) {
	tc := c.cfg.Transcription

	var (
		t   transcribe.Transcriber
		err error
	)
	switch tc.Provider {
	case "", "none":
		log.Info("transcription disabled")
		return transcribe.Unavailable{}, nil
	case "openai":
		t, err = openai.New(openai.Config{
			APIKey:   firstNonEmpty(tc.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL:  tc.BaseURL,
			Model:    tc.Model,
			Language: tc.Language,
		}, source, log)
	case "google":
		t, err = google.New(ctx, google.Config{
			ProjectID: tc.GoogleProject,
			Region:    tc.GoogleRegion,
			Model:     tc.Model,
			Language:  tc.Language,
			APIKey:    tc.APIKey,
		}, source, log)
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", tc.Provider)
	}

	if errors.Is(err, transcribe.ErrUnavailable) {
		log.Warn("transcription unavailable, memos stay pending", "provider", tc.Provider, "error", err)
		return transcribe.Unavailable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s transcriber: %w", tc.Provider, err)
	}

	log.Info("transcription enabled", "provider", tc.Provider)
	return t, nil
}

func (c *serveCommander) newPublisher(log *slog.Logger) (eventstream.Publisher, error) {
	ec := c.cfg.Events
	switch ec.Provider {
	case "", "none":
		return nop.NewPublisher(log), nil
	case "kafka":
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: splitList(ec.Brokers),
			Topic:   ec.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing memo events", "provider", "kafka", "topic", ec.Topic)
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown events provider %q", ec.Provider)
	}
}

func (c *serveCommander) newChannel(role peer.Role, log *slog.Logger) (peer.Channel, error) {
	sc := c.cfg.Sync
	if role == peer.RoleCompanion {
		if sc.Peer == "" {
			return nil, errors.New("a companion requires sync.peer (--peer)")
		}
		return websocket.NewDialer(sc.Peer, log, websocket.WithToken(sc.Token)), nil
	}

	if sc.Listen == "" {
		return nil, errors.New("a primary requires sync.listen (--sync-listen)")
	}
	return websocket.NewListener(sc.Token, log), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
