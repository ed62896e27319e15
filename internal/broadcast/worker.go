package broadcast

import (
	"log/slog"
	"time"

	"mdchat/internal/codec"
	"mdchat/internal/msglog"
	"mdchat/internal/registry"
	"mdchat/internal/userdir"
)

// Worker is the single consumer of the Queue: it assigns ids, appends
// to the log, and fans out to every authenticated Session.
type Worker struct {
	queue    *Queue
	log      *msglog.Log
	users    *userdir.Directory
	registry *registry.Registry
	logger   *slog.Logger
}

// New constructs a Worker over the given singletons.
func New(queue *Queue, log *msglog.Log, users *userdir.Directory, reg *registry.Registry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, log: log, users: users, registry: reg, logger: logger}
}

// Run drains the queue until it is closed. Intended to run on its own
// goroutine for the lifetime of the process; the control plane joins
// it before exiting.
func (w *Worker) Run() {
	for {
		pending, ok := w.queue.Pop()
		if !ok {
			return
		}
		w.handle(pending)
	}
}

func (w *Worker) handle(p Pending) {
	when := time.Now().UTC()
	id := w.log.Push(p.Sender, p.Text, when)

	msg := codec.Message{Sender: p.Sender, DateTime: when, Text: p.Text}
	cmd := codec.MessageRecv{Message: msg}

	// Collect failures during the registry-read-lock iteration and
	// abort those Sessions in a second pass after the lock is
	// released, rather than re-entering registry mutation mid-iteration.
	var failed []registry.Peer
	w.registry.ForEach(func(peer registry.Peer) {
		nick, ok := peer.Nickname()
		if !ok {
			return
		}
		if err := peer.SendCommand(cmd); err != nil {
			failed = append(failed, peer)
			return
		}
		if err := w.users.SetLastDelivered(nick, id); err != nil {
			w.logger.Warn("set last delivered failed", "nickname", nick, "id", id, "err", err)
		}
	})

	for _, peer := range failed {
		peer.Abort("send failed")
	}
}
