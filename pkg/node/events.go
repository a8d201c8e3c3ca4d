package node

import (
	"context"

	"github.com/papercomputeco/voicenotes/pkg/eventstream"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/peer"
	"github.com/papercomputeco/voicenotes/pkg/peer/outbox"
)

// handleEvent reacts to the sync channel. It runs on the owner goroutine.
func (n *Node) handleEvent(ctx context.Context, ev peer.Event) {
	switch ev.Kind {
	case peer.EventConnected:
		n.logger.Info("peer connected")
		n.outbox.Enqueue(outbox.Job{Message: n.origin.Hello()})
		if n.cfg.RequestCatalogOnConnect {
			n.outbox.Enqueue(outbox.Job{Message: n.origin.CatalogRequest()})
		}
	case peer.EventDisconnected:
		n.logger.Info("peer disconnected")
	case peer.EventMessage:
		n.handleMessage(ctx, ev.Message)
	}
}

func (n *Node) handleMessage(ctx context.Context, msg peer.Message) {
	log := n.logger.With("kind", msg.Kind, "sender", msg.Sender, "message_id", msg.MessageID)

	switch msg.Kind {
	case peer.KindHello:
		if msg.Role == n.origin.Role {
			log.Warn("peer claims the same role as this device", "peer_role", msg.Role)
			return
		}
		log.Info("peer said hello", "peer_role", msg.Role)

	case peer.KindMemoUpdate:
		result, err := n.reconciler.Apply(ctx, *msg.Memo)
		if err != nil {
			log.Warn("failed to apply memo update", "memo_id", msg.Memo.Memo.ID, "error", err)
			return
		}
		if result.Applied() {
			n.applied(ctx, &msg.Memo.Memo)
		}

	case peer.KindCatalogRequest:
		memos, err := n.store.List(ctx)
		if err != nil {
			log.Error("failed to list catalog", "error", err)
			return
		}
		memo.SortNewestFirst(memos)

		catalog := make([]peer.Snapshot, 0, len(memos))
		for _, m := range memos {
			catalog = append(catalog, n.snapshot(ctx, m))
		}
		n.outbox.Enqueue(outbox.Job{Message: n.origin.CatalogResponse(catalog)})
		log.Info("catalog sent", "memos", len(catalog))

	case peer.KindCatalogResponse:
		summary, err := n.reconciler.ApplyAll(ctx, msg.Catalog)
		if err != nil {
			log.Warn("some catalog entries failed to apply", "failed", summary.Failed, "error", err)
		}
		for _, m := range summary.Applied {
			n.applied(ctx, m)
		}
		log.Info("catalog reconciled",
			"inserted", summary.Inserted,
			"replaced", summary.Replaced,
			"discarded", summary.Discarded,
		)
	}
}

// applied publishes a memo received from the peer and, when configured,
// takes over its pending transcription. A pending memo that already has a
// transcript and no delta is an extension the peer is still working on.
func (n *Node) applied(ctx context.Context, m *memo.Memo) {
	n.publish(ctx, eventstream.EventTypeMemoStored, m)

	if !n.cfg.TranscribeRemotePending || m.Status != memo.StatusPending {
		return
	}
	if !m.HasDelta() && m.Transcript != "" {
		return
	}
	if _, busy := n.inflight[m.ID]; busy {
		return
	}

	n.logger.Info("transcribing pending memo from peer",
		"memo_id", m.ID,
		"delta_start", m.DeltaOffset,
	)
	n.launch(m.ID, n.transcription(m), m.AudioRef)
}
