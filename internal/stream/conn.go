package stream

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/net/websocket"
)

// State is the lifecycle state of one server-side connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	// StateErrored is absorbing: the connection is closed and never reopens.
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

var errConnDone = errors.New("connection is no longer open")

type peer struct {
	mu           sync.Mutex
	ws           *websocket.Conn
	state        atomic.Int32
	decodeErrors int
}

func newPeer(ws *websocket.Conn) *peer {
	return &peer{ws: ws}
}

func (p *peer) State() State {
	return State(p.state.Load())
}

// transition moves to next unless the peer is already Closed or Errored.
func (p *peer) transition(next State) bool {
	for {
		cur := p.state.Load()
		if State(cur) == StateClosed || State(cur) == StateErrored {
			return false
		}
		if p.state.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}

func (p *peer) send(msgType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if st := p.State(); st == StateClosed || st == StateErrored {
		return errConnDone
	}
	if err := websocket.JSON.Send(p.ws, Outbound{Type: msgType, Data: payload}); err != nil {
		p.transition(StateErrored)
		return err
	}
	return nil
}

// closeWith writes a close frame carrying code and reason, then closes the transport.
func (p *peer) closeWith(code int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	frame := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(frame, uint16(code))
	copy(frame[2:], reason)
	p.ws.PayloadType = websocket.CloseFrame
	_, werr := p.ws.Write(frame)
	p.transition(StateClosed)
	if cerr := p.ws.Close(); cerr != nil && werr == nil {
		return cerr
	}
	return werr
}

func (p *peer) close() error {
	p.transition(StateClosed)
	return p.ws.Close()
}

type registry struct {
	mu    sync.Mutex
	peers map[string]*peer
}

func newRegistry() *registry {
	return &registry{peers: make(map[string]*peer)}
}

// register binds p to id unless another peer already holds it.
func (r *registry) register(id string, p *peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.peers[id]; taken {
		return false
	}
	r.peers[id] = p
	return true
}

// unregister removes the binding only if it still belongs to p.
func (r *registry) unregister(id string, p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.peers[id] == p {
		delete(r.peers, id)
	}
}

func (r *registry) get(id string) (*peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	return p, ok
}

func (r *registry) all() []*peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
