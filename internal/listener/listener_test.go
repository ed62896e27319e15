package listener

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"mdchat/internal/broadcast"
	"mdchat/internal/codec"
	"mdchat/internal/msglog"
	"mdchat/internal/registry"
	"mdchat/internal/transport"
	"mdchat/internal/userdir"
)

type plainHasher struct{}

func (plainHasher) Hash(password []byte) ([]byte, error) { return password, nil }
func (plainHasher) Verify(password, hash []byte) bool    { return string(password) == string(hash) }

type permissivePolicy struct{}

func (permissivePolicy) NicknameAllowed(string) bool { return true }
func (permissivePolicy) MessageAllowed(string) bool  { return true }

type fakeAccepter struct {
	streams chan transport.Stream
}

func (a *fakeAccepter) push(s transport.Stream) { a.streams <- s }

func (a *fakeAccepter) Accept(ctx context.Context) (transport.Stream, error) {
	select {
	case s := <-a.streams:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestListenerRegistersAndSpawns(t *testing.T) {
	acc := &fakeAccepter{streams: make(chan transport.Stream, 1)}
	users := userdir.New(plainHasher{})
	log := msglog.New()
	reg := registry.New()
	queue := broadcast.NewQueue()

	l := New(acc, codec.IdentityCipher{}, users, log, reg, permissivePolicy{}, nil, queue, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	serverSide, clientSide := transport.NewPipe("10.0.0.1:9000", "client")
	acc.push(serverSide)

	if err := codec.WriteFrame(clientSide, codec.IdentityCipher{}, codec.Login{IsRegistering: true, Nickname: "alice", Password: "pw"}); err != nil {
		t.Fatalf("write login: %v", err)
	}
	cmd, err := codec.ReadFrame(clientSide, codec.IdentityCipher{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, ok := cmd.(codec.LoginSuccess); !ok {
		t.Fatalf("expected LoginSuccess, got %#v", cmd)
	}

	nick, ok := reg.GetNickname("10.0.0.1:9000")
	if !ok || nick != "alice" {
		t.Fatalf("registry should have alice registered at peer addr, got %q %v", nick, ok)
	}
}

type denyAll struct{}

func (denyAll) IPAllowed(netip.Addr) bool { return false }

func TestListenerRejectsBannedIP(t *testing.T) {
	acc := &fakeAccepter{streams: make(chan transport.Stream, 1)}
	users := userdir.New(plainHasher{})
	log := msglog.New()
	reg := registry.New()
	queue := broadcast.NewQueue()

	l := New(acc, codec.IdentityCipher{}, users, log, reg, permissivePolicy{}, denyAll{}, queue, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	serverSide, clientSide := transport.NewPipe("10.0.0.2:9000", "client")
	acc.push(serverSide)

	errCh := make(chan error, 1)
	go func() {
		_, err := codec.ReadFrame(clientSide, codec.IdentityCipher{})
		errCh <- err
	}()
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected the rejected peer's stream to be reset")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for rejected peer's stream to close")
	}

	if _, ok := reg.GetNickname("10.0.0.2:9000"); ok {
		t.Fatalf("rejected peer must never be registered")
	}
}

type recordingAudit struct {
	mu      sync.Mutex
	events  []string
	records []recordedEvent
}

type recordedEvent struct {
	peerAddr, nickname, event, description string
}

func (r *recordingAudit) Record(peerAddr, nickname, event, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.records = append(r.records, recordedEvent{peerAddr, nickname, event, description})
	return nil
}

func TestListenerRecordsIPDenialToAudit(t *testing.T) {
	acc := &fakeAccepter{streams: make(chan transport.Stream, 1)}
	users := userdir.New(plainHasher{})
	log := msglog.New()
	reg := registry.New()
	queue := broadcast.NewQueue()
	audit := &recordingAudit{}

	l := New(acc, codec.IdentityCipher{}, users, log, reg, permissivePolicy{}, denyAll{}, queue, nil, audit)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	serverSide, clientSide := transport.NewPipe("10.0.0.3:9000", "client")
	acc.push(serverSide)
	_, _ = codec.ReadFrame(clientSide, codec.IdentityCipher{})

	deadline := time.After(time.Second)
	for {
		audit.mu.Lock()
		n := len(audit.records)
		audit.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for ip_denied audit record")
		case <-time.After(10 * time.Millisecond):
		}
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.records) != 1 || audit.records[0].event != "ip_denied" {
		t.Fatalf("got records %+v", audit.records)
	}
	if audit.records[0].peerAddr != "10.0.0.3:9000" {
		t.Fatalf("got peer addr %q", audit.records[0].peerAddr)
	}
}
