package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wspeirs/qcp/internal/netio"
	"github.com/wspeirs/qcp/internal/wire"
	"github.com/wspeirs/qcp/internal/window"
)

const (
	handshakeReadTimeout = 3 * time.Second
	handshakeAttempts    = 3
	ackReadTimeout       = 1 * time.Second
	retransmitAge        = 3 * time.Second
)

type sendEntry struct {
	sentAt  time.Time
	encoded []byte
}

// Sender is the initiator side of a BBR transport session: it chunks
// application bytes into Message frames, tracks them in a sliding window,
// and relies on a background goroutine to drive ACK collection and
// timeout-based retransmission.
type Sender struct {
	sock netio.Socket
	peer net.Addr
	win  *window.Window[sendEntry]
	log  *logrus.Entry

	seq uint64

	cancel context.CancelFunc
	group  *errgroup.Group

	fatalOnce sync.Once
	fatal     errBox
	fatalMu   sync.RWMutex
}

type errBox struct{ err error }

// Connect performs the Sender-side handshake against peerAddr over sock:
// send Connect(seq=0), then wait up to three 3-second read-timeout
// attempts for an Acknowledge(0) reply. On success it allocates the
// shared sliding window and spawns the ACK/retransmit goroutine.
func Connect(sock netio.Socket, peerAddr net.Addr, windowSize int, log *logrus.Entry) (*Sender, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("role", "send").WithField("peer", peerAddr.String())

	if err := sock.SetReadTimeout(handshakeReadTimeout); err != nil {
		return nil, newError(Io, "set handshake read timeout", err)
	}

	connectBuf := wire.EncodeConnect(0)
	buf := make([]byte, wire.MaxPacketSize)

	var lastErr error
	for attempt := 0; attempt < handshakeAttempts; attempt++ {
		if _, err := sock.SendTo(connectBuf, peerAddr); err != nil {
			return nil, newError(Io, "send Connect", err)
		}

		n, _, err := sock.RecvFrom(buf)
		if err != nil {
			if errors.Is(err, netio.ErrWouldBlock) {
				lastErr = err
				continue
			}
			return nil, newError(Io, "handshake recv", err)
		}

		msg := wire.Decode(buf[:n])
		if msg.Type != wire.Acknowledge || msg.Seq != 0 {
			return nil, newError(HandshakeRejected, fmt.Sprintf("got type=%v seq=%d", msg.Type, msg.Seq), nil)
		}

		log.Info("handshake complete")
		return newSender(sock, peerAddr, windowSize, log)
	}

	return nil, newError(HandshakeTimeout, fmt.Sprintf("no reply after %d attempts", handshakeAttempts), lastErr)
}

func newSender(sock netio.Socket, peer net.Addr, windowSize int, log *logrus.Entry) (*Sender, error) {
	clone, err := sock.Clone()
	if err != nil {
		return nil, newError(Io, "clone socket", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	s := &Sender{
		sock:   sock,
		peer:   peer,
		win:    window.New[sendEntry](windowSize),
		log:    log,
		cancel: cancel,
		group:  g,
	}

	g.Go(func() error { return s.ackLoop(gctx, clone) })

	return s, nil
}

// WriteAll slices data into MaxPayloadSize chunks, sends each as a
// Message frame with a strictly increasing sequence number starting at
// 0, and records it in the sliding window for retransmission. It blocks
// (via the window's back-pressure) when the window is full.
func (s *Sender) WriteAll(data []byte) error {
	if err := s.fatalErr(); err != nil {
		return err
	}

	for len(data) > 0 {
		n := len(data)
		if n > wire.MaxPayloadSize {
			n = wire.MaxPayloadSize
		}
		chunk := data[:n]
		data = data[n:]

		seq := s.seq
		encoded, err := wire.EncodeMessage(seq, chunk)
		if err != nil {
			// Cannot happen: chunk is bounded by MaxPayloadSize above.
			return newError(Io, "encode message", err)
		}

		if _, err := s.sock.SendTo(encoded, s.peer); err != nil {
			return newError(Io, "send message", err)
		}

		if err := s.win.Insert(seq, sendEntry{sentAt: time.Now(), encoded: encoded}); err != nil {
			if errors.Is(err, window.ErrClosed) {
				if fe := s.fatalErr(); fe != nil {
					return fe
				}
			}
			return newError(windowKind(err), "insert window", err)
		}

		s.seq++
	}

	return nil
}

// ackLoop is the background goroutine: it reads ACKs, removes the
// matching window entry, and on a read timeout scans for and retransmits
// the lowest-keyed stale entry.
func (s *Sender) ackLoop(ctx context.Context, sock netio.Socket) error {
	if err := sock.SetReadTimeout(ackReadTimeout); err != nil {
		return s.fail(newError(Io, "set ack read timeout", err))
	}

	buf := make([]byte, wire.MaxPacketSize)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, _, err := sock.RecvFrom(buf)
		if err != nil {
			if errors.Is(err, netio.ErrWouldBlock) {
				s.retransmitStale(sock)
				continue
			}
			return s.fail(newError(Io, "ack recv", err))
		}

		msg := wire.Decode(buf[:n])
		if msg.Type != wire.Acknowledge {
			return s.fail(newError(ProtocolViolation, fmt.Sprintf("expected Acknowledge, got %v", msg.Type), nil))
		}

		if _, err := s.win.Remove(msg.Seq); err != nil {
			// A duplicate ACK (or one for an already-retired entry) is
			// tolerated; any other window error would indicate a logic
			// bug rather than a wire condition.
			s.log.WithError(err).Debug("ack for already-retired sequence")
		}
	}
}

func (s *Sender) retransmitStale(sock netio.Socket) {
	key, ok := s.win.FindFirst(func(e sendEntry) bool { return time.Since(e.sentAt) > retransmitAge })
	if !ok {
		return
	}

	entry, err := s.win.Remove(key)
	if err != nil {
		// Not expected: ackLoop, which also handles ACKs, is the only
		// goroutine that removes entries.
		return
	}

	if _, err := sock.SendTo(entry.encoded, s.peer); err != nil {
		s.log.WithError(err).Warn("retransmit send failed")
	}
	entry.sentAt = time.Now()

	if err := s.win.Insert(key, entry); err != nil {
		s.log.WithError(err).Warn("retransmit reinsert failed")
	}
}

func (s *Sender) fail(err error) error {
	s.fatalOnce.Do(func() {
		s.fatalMu.Lock()
		s.fatal = errBox{err}
		s.fatalMu.Unlock()
		s.win.Close()
		s.cancel()
		s.log.WithError(err).Error("sender background task terminated")
	})
	return err
}

func (s *Sender) fatalErr() error {
	s.fatalMu.RLock()
	defer s.fatalMu.RUnlock()
	return s.fatal.err
}

// Close cancels the background ACK/retransmit goroutine, closes the window
// and waits for the goroutine to return (within one ACK read timeout). It
// closes neither the caller's socket nor the cloned handle, which refer to
// the same endpoint.
func (s *Sender) Close() error {
	s.cancel()
	s.win.Close()
	return s.group.Wait()
}
