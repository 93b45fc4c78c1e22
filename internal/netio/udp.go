package netio

import (
	"fmt"
	"net"
	"time"
)

// UDPSocket adapts *net.UDPConn to Socket.
type UDPSocket struct {
	conn        *net.UDPConn
	readTimeout time.Duration
}

// DialUDP binds an ephemeral local endpoint and targets raddr; used by the
// sender.
func DialUDP(raddr *net.UDPAddr) (*UDPSocket, error) {
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &UDPSocket{conn: conn}, nil
}

// ListenUDP binds laddr for the receiver, which learns its peer from the
// first Connect datagram.
func ListenUDP(laddr *net.UDPAddr) (*UDPSocket, error) {
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, err
	}
	return &UDPSocket{conn: conn}, nil
}

func (u *UDPSocket) SendTo(buf []byte, addr net.Addr) (int, error) {
	// A dialed (connected) conn rejects WriteToUDP, so it always writes
	// to the peer it was dialed to.
	if addr == nil || u.conn.RemoteAddr() != nil {
		return u.conn.Write(buf)
	}
	ua, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, fmt.Errorf("netio: SendTo address %T is not *net.UDPAddr", addr)
	}
	return u.conn.WriteToUDP(buf, ua)
}

func (u *UDPSocket) RecvFrom(buf []byte) (int, net.Addr, error) {
	if u.readTimeout > 0 {
		if err := u.conn.SetReadDeadline(time.Now().Add(u.readTimeout)); err != nil {
			return 0, nil, err
		}
	}
	n, addr, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, addr, ErrWouldBlock
		}
		return n, addr, err
	}
	return n, addr, nil
}

// SetReadTimeout sets how long each RecvFrom waits; the read deadline is
// renewed at the start of every RecvFrom call.
func (u *UDPSocket) SetReadTimeout(d time.Duration) error {
	u.readTimeout = d
	if d <= 0 {
		return u.conn.SetReadDeadline(time.Time{})
	}
	return nil
}

func (u *UDPSocket) SetWriteTimeout(d time.Duration) error {
	if d <= 0 {
		return u.conn.SetWriteDeadline(time.Time{})
	}
	return u.conn.SetWriteDeadline(time.Now().Add(d))
}

// Clone returns a Socket sharing the same underlying connection. Unlike
// Rust's UdpSocket, *net.UDPConn is already safe for concurrent use by
// multiple goroutines, so Clone need not dup the file descriptor.
func (u *UDPSocket) Clone() (Socket, error) {
	return &UDPSocket{conn: u.conn}, nil
}

func (u *UDPSocket) Close() error { return u.conn.Close() }

func (u *UDPSocket) LocalAddr() net.Addr { return u.conn.LocalAddr() }
