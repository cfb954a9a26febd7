package mcb

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// UDPInterface carries frames in UDP datagrams. Responses go to the sender
// of the most recent datagram.
type UDPInterface struct {
	conn    net.PacketConn
	timeout time.Duration

	mu   sync.Mutex
	peer net.Addr
}

// ListenUDP binds address. timeout bounds each RawRead.
func ListenUDP(address string, timeout time.Duration) (*UDPInterface, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("bind %s failed: %w", address, err)
	}

	return &UDPInterface{
		conn:    conn,
		timeout: timeout,
	}, nil
}

func (u *UDPInterface) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDPInterface) RawRead() ([]byte, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(u.timeout)); err != nil {
		return nil, err
	}

	buf := make([]byte, MaxFrameSize)
	n, addr, err := u.conn.ReadFrom(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrEmpty
		}
		return nil, err
	}

	u.mu.Lock()
	u.peer = addr
	u.mu.Unlock()

	return buf[:n], nil
}

func (u *UDPInterface) RawWrite(frame []byte) error {
	u.mu.Lock()
	peer := u.peer
	u.mu.Unlock()

	if peer == nil {
		return fmt.Errorf("no peer to answer")
	}

	_, err := u.conn.WriteTo(frame, peer)
	return err
}

func (u *UDPInterface) Close() error {
	return u.conn.Close()
}
