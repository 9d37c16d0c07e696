package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vkuksa/huddle/internal/core"
	"github.com/vkuksa/huddle/internal/domain"
)

type peerEntry struct {
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Peers tracks live signaling connections by peer id. It is the only
// place transport endpoints are resolved from; room state never holds a
// connection.
type Peers struct {
	mu    sync.RWMutex
	peers map[domain.PeerID]*peerEntry
}

func NewPeers() *Peers {
	return &Peers{peers: make(map[domain.PeerID]*peerEntry)}
}

func (p *Peers) Bind(id domain.PeerID, conn core.SignalConnection, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers[id] = &peerEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.peers").Str("peer", string(id)).Msg("bound connection")
}

// Unbind removes the connection and cancels its context, releasing the
// pumps and the child registered on the server context.
func (p *Peers) Unbind(id domain.PeerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.peers[id]
	if !ok {
		return
	}
	delete(p.peers, id)
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.peers").Str("peer", string(id)).Msg("unbound connection")
}

func (p *Peers) Get(id domain.PeerID) (core.SignalConnection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if e, ok := p.peers[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (p *Peers) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.peers)
}
