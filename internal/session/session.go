// Package session implements Session: the per-connection state
// machine that authenticates a client, dispatches its commands, and
// tears itself down on error or orderly close.
package session

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mdchat/internal/audit"
	"mdchat/internal/broadcast"
	"mdchat/internal/chaterr"
	"mdchat/internal/codec"
	"mdchat/internal/msglog"
	"mdchat/internal/registry"
	"mdchat/internal/transport"
	"mdchat/internal/userdir"
)

// State is one of the three Session lifecycle states.
type State int

const (
	StateConnected State = iota
	StateAuthenticated
	StateClosed
)

// PolicyChecker is the subset of AdmissionPolicy a Session consults.
// Accepting an interface rather than *config.Policy keeps this
// package decoupled from config's file-parsing concerns.
type PolicyChecker interface {
	NicknameAllowed(nick string) bool
	MessageAllowed(text string) bool
}

// AuditRecorder receives a best-effort record of every fatal teardown
// and admission decision a Session makes. A nil AuditRecorder is a
// silent no-op; failures to record are logged and otherwise ignored.
type AuditRecorder interface {
	Record(peerAddr, nickname, event, description string) error
}

// Option configures optional Session behavior at construction time.
type Option func(*Session)

// WithAudit attaches an AuditRecorder to the Session.
func WithAudit(rec AuditRecorder) Option {
	return func(s *Session) { s.audit = rec }
}

// WithRateLimit bounds the rate of commands this Session will accept
// off the wire, as a token bucket of r commands/sec with the given
// burst. A Session with no rate limiter configured accepts commands
// as fast as it can read and decode them.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(s *Session) { s.limiter = rate.NewLimiter(r, burst) }
}

// Session is one live client connection. It implements
// registry.Peer, so it can be stored directly in a ClientRegistry.
type Session struct {
	id       uuid.UUID
	peerAddr string
	stream   transport.Stream
	cipher   codec.Cipher

	users   *userdir.Directory
	log     *msglog.Log
	reg     *registry.Registry
	policy  PolicyChecker
	queue   *broadcast.Queue
	logger  *slog.Logger
	audit   AuditRecorder
	limiter *rate.Limiter

	writeMu sync.Mutex

	stateMu     sync.Mutex
	state       State
	nickname    string
	hasNickname bool
}

// New constructs a Session bound to one accepted stream. The caller
// (Listener) is responsible for registering it in the ClientRegistry
// before spawning Run, per the construct-register-spawn ordering.
func New(peerAddr string, stream transport.Stream, cipher codec.Cipher, users *userdir.Directory, log *msglog.Log, reg *registry.Registry, policy PolicyChecker, queue *broadcast.Queue, logger *slog.Logger, opts ...Option) *Session {
	if cipher == nil {
		cipher = codec.IdentityCipher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	s := &Session{
		id:       id,
		peerAddr: peerAddr,
		stream:   stream,
		cipher:   cipher,
		users:    users,
		log:      log,
		reg:      reg,
		policy:   policy,
		queue:    queue,
		logger:   logger.With("session_id", id.String(), "peer_addr", peerAddr),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) recordAudit(nickname, event, description string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(s.peerAddr, nickname, event, description); err != nil {
		s.logger.Warn("audit record failed", "err", err)
	}
}

// PeerAddr satisfies registry.Peer.
func (s *Session) PeerAddr() string { return s.peerAddr }

// Nickname satisfies registry.Peer: it returns ("", false) until
// authentication (and any backlog replay) has fully completed.
func (s *Session) Nickname() (string, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.nickname, s.hasNickname
}

// SendCommand serializes, encrypts, frames, and writes cmd, all under
// the Session's exclusive writer lock, satisfying registry.Peer.
func (s *Session) SendCommand(cmd codec.Command) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return codec.WriteFrame(s.stream, s.cipher, cmd)
}

// Abort is spec's error(reason): best-effort Error frame, stream
// reset, removal from the registry. Idempotent.
func (s *Session) Abort(reason string) {
	s.stateMu.Lock()
	if s.state == StateClosed {
		s.stateMu.Unlock()
		return
	}
	s.state = StateClosed
	s.stateMu.Unlock()

	_ = s.SendCommand(codec.Error{Description: reason})
	_ = s.stream.Reset()
	s.reg.Remove(s.peerAddr)
	nick, _ := s.Nickname()
	s.recordAudit(nick, audit.EventSessionAborted, reason)
	s.logger.Info("session aborted", "peer_addr", s.peerAddr, "reason", reason)
}

func (s *Session) closeGraceful() {
	s.stateMu.Lock()
	if s.state == StateClosed {
		s.stateMu.Unlock()
		return
	}
	s.state = StateClosed
	s.stateMu.Unlock()

	_ = s.stream.CloseWrite()
	s.reg.Remove(s.peerAddr)
	s.logger.Info("session closed", "peer_addr", s.peerAddr)
}

// Run is the receive loop: read one frame, dispatch, repeat, until a
// terminal transition. Intended to run on its own goroutine.
func (s *Session) Run() {
	for {
		cmd, err := codec.ReadFrame(s.stream, s.cipher)
		if err != nil {
			if err == io.EOF {
				s.closeGraceful()
				return
			}
			s.Abort(err.Error())
			return
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.Abort("rate limit exceeded")
			return
		}
		if terminal := s.dispatch(cmd); terminal {
			return
		}
	}
}

func (s *Session) dispatch(cmd codec.Command) (terminal bool) {
	switch c := cmd.(type) {
	case codec.Login:
		return s.handleLogin(c)
	case codec.SendMessage:
		return s.handleSendMessage(c)
	default:
		s.Abort("unexpected command")
		return true
	}
}

func (s *Session) currentState() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) handleLogin(cmd codec.Login) (terminal bool) {
	if s.currentState() == StateAuthenticated {
		s.Abort("already logged in")
		return true
	}

	if !s.policy.NicknameAllowed(cmd.Nickname) {
		s.logger.Warn("nickname not allowed", "nickname", cmd.Nickname)
		s.recordAudit(cmd.Nickname, audit.EventNicknameDenied, "nickname not allowed")
		s.Abort("nickname not allowed")
		return true
	}

	exists := s.users.Exists(cmd.Nickname)
	switch {
	case cmd.IsRegistering && exists:
		s.Abort("account already exists")
		return true
	case cmd.IsRegistering && !exists:
		if err := s.users.Add(cmd.Nickname, []byte(cmd.Password)); err != nil {
			if errors.Is(err, chaterr.ErrInvalidInput) {
				s.logger.Warn("nickname not allowed", "nickname", cmd.Nickname)
				s.recordAudit(cmd.Nickname, audit.EventNicknameDenied, "nickname not allowed")
				s.Abort("nickname not allowed")
				return true
			}
			s.Abort("account already exists")
			return true
		}
		s.logger.Info("registered", "nickname", cmd.Nickname)
		s.recordAudit(cmd.Nickname, audit.EventRegistered, "")
		return s.completeLogin(cmd.Nickname, false)
	case !cmd.IsRegistering && exists:
		ok, err := s.users.Verify(cmd.Nickname, []byte(cmd.Password))
		if err != nil || !ok {
			s.recordAudit(cmd.Nickname, audit.EventLoginFailed, "invalid password")
			s.Abort("invalid password")
			return true
		}
		s.recordAudit(cmd.Nickname, audit.EventLoginSuccess, "")
		return s.completeLogin(cmd.Nickname, true)
	default:
		s.logger.Warn("login for nonexistent user", "nickname", cmd.Nickname)
		s.Abort("user does not exist")
		return true
	}
}

// completeLogin sends LoginSuccess, replays the backlog if replay is
// set, and only then binds the nickname. Binding the nickname last is
// what makes the Session visible to the BroadcastWorker (which skips
// any registry entry with no nickname set) — so a late joiner's
// backlog always finishes before it can observe a live broadcast.
func (s *Session) completeLogin(nickname string, replay bool) (terminal bool) {
	if err := s.SendCommand(codec.LoginSuccess{}); err != nil {
		s.Abort(err.Error())
		return true
	}

	if replay {
		if !s.replayBacklog(nickname) {
			return true
		}
	}

	s.stateMu.Lock()
	s.nickname = nickname
	s.hasNickname = true
	s.state = StateAuthenticated
	s.stateMu.Unlock()
	return false
}

// replayBacklog sends every log entry after nickname's last-delivered
// cursor, in order. Returns false (and has already aborted) on the
// first send failure.
func (s *Session) replayBacklog(nickname string) bool {
	lastID, _ := s.users.LastDelivered(nickname)
	var sendErr error
	s.log.ForEachAfter(lastID, func(e msglog.Entry) {
		if sendErr != nil {
			return
		}
		msg := codec.Message{Sender: e.Sender, DateTime: e.DateTime, Text: e.Text}
		if err := s.SendCommand(codec.MessageRecv{Message: msg}); err != nil {
			sendErr = err
			return
		}
		if err := s.users.SetLastDelivered(nickname, e.ID); err != nil {
			s.logger.Warn("backlog cursor update failed", "nickname", nickname, "id", e.ID, "err", err)
		}
	})
	if sendErr != nil {
		s.Abort(sendErr.Error())
		return false
	}
	return true
}

func (s *Session) handleSendMessage(cmd codec.SendMessage) (terminal bool) {
	s.stateMu.Lock()
	state := s.state
	nick := s.nickname
	s.stateMu.Unlock()

	if state != StateAuthenticated {
		s.Abort("not logged in")
		return true
	}

	if !s.policy.MessageAllowed(cmd.Text) {
		_ = s.SendCommand(codec.Warning{Description: "message not allowed"})
		return false
	}

	s.queue.Push(broadcast.Pending{Sender: nick, Text: cmd.Text})
	return false
}
