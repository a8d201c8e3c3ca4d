package node_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/blob/memory"
	"github.com/papercomputeco/voicenotes/pkg/logger"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/node"
	"github.com/papercomputeco/voicenotes/pkg/peer"
	"github.com/papercomputeco/voicenotes/pkg/pipeline"
	"github.com/papercomputeco/voicenotes/pkg/session"
	"github.com/papercomputeco/voicenotes/pkg/storage"
	"github.com/papercomputeco/voicenotes/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/voicenotes/pkg/utils/test"
)

// device is one node plus the fakes behind it.
type device struct {
	node        *node.Node
	store       *storage.Store
	blobs       *memory.Store
	editor      *audio.Editor
	transcriber *testutils.ScriptedTranscriber
	publisher   *testutils.RecordingPublisher
	capture     *testutils.FakeDevice

	cancel context.CancelFunc
	done   chan struct{}
}

func newDevice(id string, role peer.Role, ch peer.Channel, configure func(*node.Config)) *device {
	log := logger.Nop()
	d := &device{
		blobs:       memory.New(),
		transcriber: &testutils.ScriptedTranscriber{},
		publisher:   &testutils.RecordingPublisher{},
		capture:     &testutils.FakeDevice{},
		done:        make(chan struct{}),
	}
	d.editor = audio.NewEditor(d.blobs, log)
	d.store = storage.NewStore(inmemory.NewDriver(), d.editor, log)

	cfg := node.Config{
		DeviceID:     id,
		Role:         role,
		Store:        d.store,
		Editor:       d.editor,
		Session:      session.New(d.capture, d.editor, testutils.TestFormat, log),
		Pipeline:     pipeline.New(d.editor, d.transcriber, log),
		Channel:      ch,
		Publisher:    d.publisher,
		IncludeAudio: true,
		Logger:       log,
	}
	if configure != nil {
		configure(&cfg)
	}

	n, err := node.New(cfg)
	Expect(err).NotTo(HaveOccurred())
	d.node = n

	var ctx context.Context
	ctx, d.cancel = context.WithCancel(context.Background())
	go func() {
		defer GinkgoRecover()
		defer close(d.done)
		_ = n.Run(ctx)
	}()
	return d
}

func (d *device) stop() {
	d.node.Wait()
	d.cancel()
	<-d.done
	d.node.Close()
}

// record captures d of tone audio as a fresh memo.
func (d *device) record(ctx context.Context, dur time.Duration, seed int) *memo.Memo {
	Expect(d.node.StartRecording(ctx)).To(Succeed())
	_, err := d.node.Write(testutils.Tone(testutils.TestFormat, dur, seed).PCM)
	Expect(err).NotTo(HaveOccurred())
	m, err := d.node.StopRecording(ctx)
	Expect(err).NotTo(HaveOccurred())
	return m
}

// extend captures d of tone audio onto memo id.
func (d *device) extend(ctx context.Context, id string, dur time.Duration, seed int) *memo.Memo {
	Expect(d.node.StartExtend(ctx, id)).To(Succeed())
	_, err := d.node.Write(testutils.Tone(testutils.TestFormat, dur, seed).PCM)
	Expect(err).NotTo(HaveOccurred())
	m, err := d.node.StopRecording(ctx)
	Expect(err).NotTo(HaveOccurred())
	return m
}

func (d *device) get(ctx context.Context, id string) *memo.Memo {
	m, err := d.store.Get(ctx, id)
	Expect(err).NotTo(HaveOccurred())
	return m
}

func (d *device) blobCount(ctx context.Context) int {
	infos, err := d.blobs.List(ctx, "")
	Expect(err).NotTo(HaveOccurred())
	return len(infos)
}
