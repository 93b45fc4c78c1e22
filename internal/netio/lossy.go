package netio

import (
	"math/rand"
	"net"
	"sync"
	"time"
)

// fakeAddr lets the lossy pair hand back a distinguishable net.Addr for
// each side without touching a real socket.
type fakeAddr string

func (a fakeAddr) Network() string { return "lossy" }
func (a fakeAddr) String() string  { return string(a) }

// lossyNetwork is the shared state behind a NewLossyPair: two directional
// channels and one seeded PRNG guarding the drop decision for both
// directions, so a single seed reproduces a whole run.
type lossyNetwork struct {
	mu       sync.Mutex
	rng      *rand.Rand
	dropProb float64
	chans    [2]chan []byte
	closeOnce sync.Once
	closed   chan struct{}
}

func newLossyNetwork(dropProb float64, seed int64) *lossyNetwork {
	n := &lossyNetwork{
		rng:      rand.New(rand.NewSource(seed)),
		dropProb: dropProb,
		closed:   make(chan struct{}),
	}
	n.chans[0] = make(chan []byte, 4096)
	n.chans[1] = make(chan []byte, 4096)
	return n
}

func (n *lossyNetwork) drop() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rng.Float64() < n.dropProb
}

func (n *lossyNetwork) close() {
	n.closeOnce.Do(func() { close(n.closed) })
}

// LossySocket is an in-memory Socket implementing one side of a pair
// created by NewLossyPair; it drops outgoing datagrams with a fixed
// probability driven by a seeded PRNG, in place of a real lossy network.
type LossySocket struct {
	net         *lossyNetwork
	role        int
	readTimeout time.Duration
}

// NewLossyPair returns two sockets representing opposite ends of a lossy
// in-memory UDP-like link. dropProb is the probability (0 to 1) that any
// single SendTo is lost; seed makes the loss pattern reproducible.
func NewLossyPair(dropProb float64, seed int64) (a, b *LossySocket) {
	n := newLossyNetwork(dropProb, seed)
	a = &LossySocket{net: n, role: 0}
	b = &LossySocket{net: n, role: 1}
	return a, b
}

func (s *LossySocket) peerAddr() net.Addr {
	return fakeAddr(roleAddr(1 - s.role))
}

func roleAddr(role int) string {
	if role == 0 {
		return "lossy:0"
	}
	return "lossy:1"
}

func (s *LossySocket) SendTo(buf []byte, _ net.Addr) (int, error) {
	select {
	case <-s.net.closed:
		return 0, net.ErrClosed
	default:
	}

	if s.net.drop() {
		return len(buf), nil
	}

	cp := make([]byte, len(buf))
	copy(cp, buf)

	select {
	case s.net.chans[1-s.role] <- cp:
	default:
		// Receiver queue is saturated; treat like a congested link and
		// silently drop, same as a real UDP buffer overrun would.
	}
	return len(buf), nil
}

func (s *LossySocket) RecvFrom(buf []byte) (int, net.Addr, error) {
	if s.readTimeout <= 0 {
		select {
		case pkt, ok := <-s.net.chans[s.role]:
			if !ok {
				return 0, nil, net.ErrClosed
			}
			return copy(buf, pkt), s.peerAddr(), nil
		case <-s.net.closed:
			return 0, nil, net.ErrClosed
		}
	}

	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	select {
	case pkt, ok := <-s.net.chans[s.role]:
		if !ok {
			return 0, nil, net.ErrClosed
		}
		return copy(buf, pkt), s.peerAddr(), nil
	case <-timer.C:
		return 0, nil, ErrWouldBlock
	case <-s.net.closed:
		return 0, nil, net.ErrClosed
	}
}

func (s *LossySocket) SetReadTimeout(d time.Duration) error {
	s.readTimeout = d
	return nil
}

// SetWriteTimeout is a no-op: sends into the in-memory queue never block.
func (s *LossySocket) SetWriteTimeout(time.Duration) error { return nil }

func (s *LossySocket) Clone() (Socket, error) {
	return &LossySocket{net: s.net, role: s.role, readTimeout: s.readTimeout}, nil
}

func (s *LossySocket) Close() error {
	s.net.close()
	return nil
}

func (s *LossySocket) LocalAddr() net.Addr {
	return fakeAddr(roleAddr(s.role))
}
