package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wspeirs/qcp/internal/netio"
	"github.com/wspeirs/qcp/internal/wire"
	"github.com/wspeirs/qcp/internal/window"
)

// Receiver is the responder side of a BBR transport session: a
// background goroutine ACKs and reassembles incoming Message frames into
// a sliding window, and the application thread pops them in order.
type Receiver struct {
	sock netio.Socket
	peer net.Addr
	win  *window.Window[[]byte]
	log  *logrus.Entry

	cancel context.CancelFunc
	group  *errgroup.Group

	fatalOnce sync.Once
	fatal     errBox
	fatalMu   sync.RWMutex
}

// Listen performs the Receiver-side handshake on sock: block for the
// first datagram, which must decode as Connect, reply with
// Acknowledge(seq) to the sender's address, and remember that address as
// the peer for the remainder of the session.
func Listen(sock netio.Socket, windowSize int, log *logrus.Entry) (*Receiver, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	if err := sock.SetReadTimeout(0); err != nil {
		return nil, newError(Io, "clear accept read timeout", err)
	}

	buf := make([]byte, wire.MaxPacketSize)
	n, addr, err := sock.RecvFrom(buf)
	if err != nil {
		return nil, newError(Io, "accept recv", err)
	}

	msg := wire.Decode(buf[:n])
	if msg.Type != wire.Connect {
		return nil, newError(ProtocolViolation, fmt.Sprintf("expected Connect, got %v", msg.Type), nil)
	}

	ackBuf := wire.EncodeAcknowledge(msg.Seq)
	if _, err := sock.SendTo(ackBuf, addr); err != nil {
		return nil, newError(Io, "send handshake ack", err)
	}

	log = log.WithField("role", "recv").WithField("peer", addr.String())
	log.Info("handshake complete")

	return newReceiver(sock, addr, windowSize, log)
}

func newReceiver(sock netio.Socket, peer net.Addr, windowSize int, log *logrus.Entry) (*Receiver, error) {
	clone, err := sock.Clone()
	if err != nil {
		return nil, newError(Io, "clone socket", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	r := &Receiver{
		sock:   sock,
		peer:   peer,
		win:    window.New[[]byte](windowSize),
		log:    log,
		cancel: cancel,
		group:  g,
	}

	g.Go(func() error { return r.ingestLoop(gctx, clone) })

	return r, nil
}

func (r *Receiver) ingestLoop(ctx context.Context, sock netio.Socket) error {
	// A finite read timeout (the sender's ACK poll interval) lets the loop
	// observe cancellation from Close while no datagrams arrive.
	if err := sock.SetReadTimeout(ackReadTimeout); err != nil {
		return r.fail(newError(Io, "set ingest read timeout", err))
	}

	buf := make([]byte, wire.MaxPacketSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, addr, err := sock.RecvFrom(buf)
		if err != nil {
			if errors.Is(err, netio.ErrWouldBlock) {
				continue
			}
			return r.fail(newError(Io, "ingest recv", err))
		}

		if addr != nil && addr.String() != r.peer.String() {
			// A datagram from a different peer: reject with no state
			// change, per the single-session pinning rule.
			continue
		}

		msg := wire.Decode(buf[:n])
		if msg.Type != wire.Message {
			return r.fail(newError(ProtocolViolation, fmt.Sprintf("expected Message, got %v", msg.Type), nil))
		}

		start, _ := r.win.Window()
		if msg.Seq < start {
			continue // already delivered; duplicate on the wire
		}

		payload := make([]byte, len(msg.Payload))
		copy(payload, msg.Payload)

		if err := r.win.Insert(msg.Seq, payload); err != nil {
			if errors.Is(err, window.ErrClosed) {
				return nil
			}
			if errors.Is(err, window.ErrDuplicate) {
				// Already buffered; the earlier ACK may have been lost.
				// Re-ACK so the sender's retransmit eventually stops.
			} else {
				r.log.WithError(newError(windowKind(err), "insert window", err)).Debug("insert failed")
				continue
			}
		}

		ackBuf := wire.EncodeAcknowledge(msg.Seq)
		if _, err := sock.SendTo(ackBuf, r.peer); err != nil {
			r.log.WithError(err).Warn("ack send failed")
		}
	}
}

// Read blocks until the next in-order payload is available, then copies
// it into buf. buf must be at least MaxPayloadSize bytes. It returns the
// number of bytes copied.
func (r *Receiver) Read(buf []byte) (int, error) {
	if err := r.fatalErr(); err != nil {
		return 0, err
	}

	payload, err := r.win.Pop()
	if err != nil {
		if errors.Is(err, window.ErrClosed) {
			if fe := r.fatalErr(); fe != nil {
				return 0, fe
			}
			return 0, newError(Io, "receiver closed", err)
		}
		return 0, newError(Io, "pop", err)
	}

	if len(buf) < len(payload) {
		return 0, newError(Io, fmt.Sprintf("caller buffer too short: %d < %d", len(buf), len(payload)), nil)
	}

	return copy(buf, payload), nil
}

func (r *Receiver) fail(err error) error {
	r.fatalOnce.Do(func() {
		r.fatalMu.Lock()
		r.fatal = errBox{err}
		r.fatalMu.Unlock()
		r.win.Close()
		r.cancel()
		r.log.WithError(err).Error("receiver background task terminated")
	})
	return err
}

func (r *Receiver) fatalErr() error {
	r.fatalMu.RLock()
	defer r.fatalMu.RUnlock()
	return r.fatal.err
}

// Close cancels the background ingest goroutine and releases the cloned
// socket handle. It does not close the caller's own socket.
func (r *Receiver) Close() error {
	r.cancel()
	r.win.Close()
	return r.group.Wait()
}
