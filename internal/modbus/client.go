package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Client is a Modbus TCP client talking to one unit.
type Client struct {
	address       string
	unitID        uint8
	conn          net.Conn
	mu            sync.Mutex
	transactionID uint16
	timeout       time.Duration
	dial          func(ctx context.Context, network, address string) (net.Conn, error)
}

func NewClient(address string, unitID uint8, timeout time.Duration) *Client {
	d := &net.Dialer{Timeout: timeout}
	return &Client{
		address: address,
		unitID:  unitID,
		timeout: timeout,
		dial:    d.DialContext,
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	conn, err := c.dial(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.address, err)
	}
	c.conn = conn
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

func (c *Client) close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// send transmits request and waits for the matching response. The
// connection is dropped on I/O errors and re-established on the next call.
func (c *Client) send(ctx context.Context, request *Frame) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.transactionID++
	request.TransactionID = c.transactionID

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.close()
		return nil, err
	}

	if _, err := c.conn.Write(request.Encode()); err != nil {
		c.close()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	response, err := c.readFrame()
	if err != nil {
		c.close()
		return nil, err
	}

	if response.TransactionID != request.TransactionID {
		c.close()
		return nil, fmt.Errorf("%w: transaction ID mismatch: expected %d, got %d",
			ErrInvalidResponse, request.TransactionID, response.TransactionID)
	}
	if response.FunctionCode&^exceptionFlag != request.FunctionCode {
		return nil, fmt.Errorf("%w: function 0x%02X in response to 0x%02X",
			ErrInvalidResponse, response.FunctionCode, request.FunctionCode)
	}

	return response, nil
}

func (c *Client) readFrame() (*Frame, error) {
	header := make([]byte, mbapHeaderSize)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	length := int(binary.BigEndian.Uint16(header[4:6]))
	if length < 2 || mbapHeaderSize+length-1 > maxADUSize {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidResponse, length)
	}

	buf := make([]byte, mbapHeaderSize+length-1)
	copy(buf, header)
	if _, err := io.ReadFull(c.conn, buf[mbapHeaderSize:]); err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}

	return DecodeFrame(buf)
}

func (c *Client) ReadHoldingRegisters(ctx context.Context, start, quantity uint16) ([]uint16, error) {
	if quantity == 0 || quantity > MaxReadQuantity {
		return nil, fmt.Errorf("%w: read %d", ErrTooManyWords, quantity)
	}

	response, err := c.send(ctx, ReadHoldingRegistersRequest(c.unitID, start, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseRegisterResponse(quantity)
}

// WriteRegisters writes a single register with function 0x06 and longer
// runs with 0x10.
func (c *Client) WriteRegisters(ctx context.Context, start uint16, values []uint16) error {
	if len(values) == 0 || len(values) > MaxWriteQuantity {
		return fmt.Errorf("%w: write %d", ErrTooManyWords, len(values))
	}

	request := WriteMultipleRegistersRequest(c.unitID, start, values)
	if len(values) == 1 {
		request = WriteSingleRegisterRequest(c.unitID, start, values[0])
	}

	response, err := c.send(ctx, request)
	if err != nil {
		return err
	}
	return response.Err()
}
