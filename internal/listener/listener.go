// Package listener implements the accept loop: for each accepted
// stream, construct a Session, register it, then spawn its receive
// loop — in that order, per spec's construct-register-spawn mandate.
package listener

import (
	"context"
	"log/slog"
	"net"
	"net/netip"

	"mdchat/internal/audit"
	"mdchat/internal/broadcast"
	"mdchat/internal/codec"
	"mdchat/internal/msglog"
	"mdchat/internal/registry"
	"mdchat/internal/session"
	"mdchat/internal/transport"
	"mdchat/internal/userdir"
)

// IPAdmitter is the subset of AdmissionPolicy the accept loop
// consults for pre-accept IP filtering.
type IPAdmitter interface {
	IPAllowed(addr netip.Addr) bool
}

// Accepter is the transport-level accept loop dependency; satisfied
// by *transport.Listener.
type Accepter interface {
	Accept(ctx context.Context) (transport.Stream, error)
}

// Listener binds one Session factory to one transport Accepter.
type Listener struct {
	accepter Accepter
	cipher   codec.Cipher

	users  *userdir.Directory
	log    *msglog.Log
	reg    *registry.Registry
	policy session.PolicyChecker
	ip     IPAdmitter
	queue  *broadcast.Queue
	logger *slog.Logger
	audit  session.AuditRecorder

	sessionOpts []session.Option
}

// New constructs a Listener. ip may be nil to disable pre-accept IP
// filtering. audit may be nil; if set, every Session it spawns shares
// the same AuditRecorder, and IP rejections are recorded too.
// sessionOpts is applied to every Session this Listener spawns, e.g.
// session.WithRateLimit.
func New(accepter Accepter, cipher codec.Cipher, users *userdir.Directory, log *msglog.Log, reg *registry.Registry, policy session.PolicyChecker, ip IPAdmitter, queue *broadcast.Queue, logger *slog.Logger, audit session.AuditRecorder, sessionOpts ...session.Option) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{accepter: accepter, cipher: cipher, users: users, log: log, reg: reg, policy: policy, ip: ip, queue: queue, logger: logger, audit: audit, sessionOpts: sessionOpts}
}

// Run blocks, accepting connections until ctx is done. Any other
// accept error is logged at warning and the loop continues.
func (l *Listener) Run(ctx context.Context) error {
	for {
		stream, err := l.accepter.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("accept failed", "err", err)
			continue
		}
		if l.ip != nil && !l.admitIP(stream) {
			l.logger.Warn("rejected peer by ip policy", "peer_addr", stream.PeerAddr())
			if l.audit != nil {
				if err := l.audit.Record(stream.PeerAddr(), "", audit.EventIPDenied, "rejected by ip admission policy"); err != nil {
					l.logger.Warn("audit record failed", "err", err)
				}
			}
			_ = stream.Reset()
			continue
		}

		opts := append([]session.Option(nil), l.sessionOpts...)
		if l.audit != nil {
			opts = append(opts, session.WithAudit(l.audit))
		}
		sess := session.New(stream.PeerAddr(), stream, l.cipher, l.users, l.log, l.reg, l.policy, l.queue, l.logger, opts...)
		l.reg.Add(sess)
		go sess.Run()
	}
}

func (l *Listener) admitIP(stream transport.Stream) bool {
	host, _, err := net.SplitHostPort(stream.PeerAddr())
	if err != nil {
		host = stream.PeerAddr()
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		// Address couldn't be parsed as an IP (e.g. a test fixture
		// using an opaque peer id); nothing to filter on.
		return true
	}
	return l.ip.IPAllowed(addr)
}
