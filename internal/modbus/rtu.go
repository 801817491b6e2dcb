package modbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// RTUClient talks Modbus RTU over an RS485 serial adapter.
type RTUClient struct {
	handler *modbus.RTUClientHandler
	client  modbus.Client
	mu      sync.Mutex
}

func NewRTUClient(device string, baudRate int, unitID uint8, timeout time.Duration) *RTUClient {
	handler := modbus.NewRTUClientHandler(device)
	handler.BaudRate = baudRate
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveId = unitID
	handler.Timeout = timeout

	return &RTUClient{
		handler: handler,
		client:  modbus.NewClient(handler),
	}
}

func (c *RTUClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.handler.Connect(); err != nil {
		return fmt.Errorf("open %s: %w", c.handler.Address, err)
	}
	return nil
}

func (c *RTUClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

func (c *RTUClient) ReadHoldingRegisters(ctx context.Context, start, quantity uint16) ([]uint16, error) {
	if quantity == 0 || quantity > MaxReadQuantity {
		return nil, fmt.Errorf("%w: read %d", ErrTooManyWords, quantity)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	results, err := c.client.ReadHoldingRegisters(start, quantity)
	if err != nil {
		return nil, rtuError(err)
	}
	if len(results) != 2*int(quantity) {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidResponse, 2*quantity, len(results))
	}
	return bytesToWords(results), nil
}

func (c *RTUClient) WriteRegisters(ctx context.Context, start uint16, values []uint16) error {
	if len(values) == 0 || len(values) > MaxWriteQuantity {
		return fmt.Errorf("%w: write %d", ErrTooManyWords, len(values))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if len(values) == 1 {
		_, err = c.client.WriteSingleRegister(start, values[0])
	} else {
		_, err = c.client.WriteMultipleRegisters(start, uint16(len(values)), wordsToBytes(values))
	}
	return rtuError(err)
}

// rtuError maps library exceptions onto ExceptionError.
func rtuError(err error) error {
	if me, ok := err.(*modbus.ModbusError); ok {
		return &ExceptionError{Function: me.FunctionCode &^ exceptionFlag, Code: me.ExceptionCode}
	}
	return err
}
