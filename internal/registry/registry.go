// Package registry implements ClientRegistry: peer_addr to live
// Session handle, with snapshot-consistent iteration for broadcast.
package registry

import (
	"fmt"
	"sync"

	"mdchat/internal/codec"
)

// Peer is the subset of Session behavior the registry and its
// visitors need. Defined here (rather than importing the session
// package) so registry has no dependency on session — session depends
// on registry instead, avoiding an import cycle.
type Peer interface {
	PeerAddr() string
	Nickname() (string, bool)
	SendCommand(cmd codec.Command) error
	Abort(reason string)
}

// Registry is the process-wide ClientRegistry singleton.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{peers: make(map[string]Peer)}
}

// Add inserts peer keyed by its PeerAddr. Inserting a second peer
// under an address already present is a programming error: it
// indicates two live Sessions think they own the same connection, so
// this panics rather than silently overwriting one.
func (r *Registry) Add(peer Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr := peer.PeerAddr()
	if _, exists := r.peers[addr]; exists {
		panic(fmt.Sprintf("registry: duplicate peer_addr %q", addr))
	}
	r.peers[addr] = peer
}

// Remove deletes and returns the peer at addr, and whether one was
// present. Subsequent lookups by addr report "not connected".
func (r *Registry) Remove(addr string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[addr]
	if ok {
		delete(r.peers, addr)
	}
	return peer, ok
}

// GetNickname returns the nickname bound to the Session at addr. The
// bool is false when no Session is registered at addr or when the
// registered Session has no nickname bound yet.
func (r *Registry) GetNickname(addr string) (string, bool) {
	r.mu.RLock()
	peer, ok := r.peers[addr]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	return peer.Nickname()
}

// ForEach iterates every currently registered peer under a reader
// lock held for the whole call. visit must not call Add/Remove; it
// may call peer methods that take the peer's own lock, since that
// lock is a leaf with respect to the registry lock — no inversion.
func (r *Registry) ForEach(visit func(Peer)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, peer := range r.peers {
		visit(peer)
	}
}
