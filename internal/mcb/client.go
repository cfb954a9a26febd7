package mcb

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrorReply is returned when the drive answers with an error frame.
type ErrorReply struct {
	Address uint16
	Code    uint32
}

func (e *ErrorReply) Error() string {
	return fmt.Sprintf("drive error 0x%X at address 0x%X", e.Code, e.Address)
}

// Client is the master side of the bus over UDP.
type Client struct {
	address   string
	conn      net.Conn
	mu        sync.Mutex
	timeout   time.Duration
	connected bool
}

func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address: address,
		timeout: timeout,
	}
}

func (c *Client) Address() string {
	return c.address
}

// Connect opens the UDP socket towards the drive.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := net.DialTimeout("udp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true

	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	err := c.conn.Close()
	c.connected = false
	c.conn = nil

	return err
}

// SendFrame sends a request and waits for the response to the same address.
func (c *Client) SendFrame(ctx context.Context, request *Frame) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, fmt.Errorf("not connected")
	}

	requestData, err := request.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode failed: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := c.conn.Write(requestData); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	responseBuffer := make([]byte, MaxFrameSize)
	n, err := c.conn.Read(responseBuffer)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(responseBuffer[:n])
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	if response.Address != request.Address {
		return nil, fmt.Errorf("address mismatch: expected 0x%X, got 0x%X",
			request.Address, response.Address)
	}

	if response.Command == CmdError {
		return response, &ErrorReply{Address: response.Address, Code: response.ErrorCode()}
	}
	if response.Command != CmdAck {
		return nil, fmt.Errorf("%w: %d", ErrWrongCommand, response.Command)
	}

	return response, nil
}

// Read requests the register at address of subnode.
func (c *Client) Read(ctx context.Context, subnode uint8, address uint16) (*Frame, error) {
	return c.SendFrame(ctx, ReadRequest(subnode, address))
}

// Write sends up to 8 data bytes to the register at address of subnode.
func (c *Client) Write(ctx context.Context, subnode uint8, address uint16, data []byte) (*Frame, error) {
	return c.SendFrame(ctx, WriteRequest(subnode, address, data))
}
