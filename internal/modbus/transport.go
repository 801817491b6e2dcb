package modbus

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
	"time"
)

// Transport reads and writes holding registers of one inverter.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	ReadHoldingRegisters(ctx context.Context, start, quantity uint16) ([]uint16, error)
	WriteRegisters(ctx context.Context, start uint16, values []uint16) error
}

var (
	_ Transport = (*Client)(nil)
	_ Transport = (*RTUClient)(nil)
)

// Options configures a transport.
type Options struct {
	Kind     string // "tcp" or "rtu"
	Host     string
	Port     int
	Device   string
	BaudRate int
	UnitID   uint8
	Timeout  time.Duration
}

// NewTransport builds the transport selected by opts.Kind.
func NewTransport(opts Options) (Transport, error) {
	switch opts.Kind {
	case "tcp", "":
		return NewClient(net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)), opts.UnitID, opts.Timeout), nil
	case "rtu", "serial":
		return NewRTUClient(opts.Device, opts.BaudRate, opts.UnitID, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", opts.Kind)
	}
}

// Batch is a contiguous run of registers read with one request.
type Batch struct {
	Start uint16
	Count uint16
}

func (b Batch) End() uint16 { return b.Start + b.Count - 1 }

// Group sorts and de-duplicates addrs and splits them into contiguous
// batches of at most maxSize registers.
func Group(addrs []uint16, maxSize int) []Batch {
	if maxSize <= 0 || maxSize > MaxReadQuantity {
		maxSize = MaxReadQuantity
	}

	sorted := slices.Clone(addrs)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var batches []Batch
	for _, a := range sorted {
		if n := len(batches); n > 0 {
			last := &batches[n-1]
			if a == last.End()+1 && int(last.Count) < maxSize {
				last.Count++
				continue
			}
		}
		batches = append(batches, Batch{Start: a, Count: 1})
	}
	return batches
}

// ReadAddresses reads every address in addrs, batching contiguous runs, and
// returns the words keyed by address.
func ReadAddresses(ctx context.Context, t Transport, addrs []uint16, maxSize int) (map[uint16]uint16, error) {
	words := make(map[uint16]uint16, len(addrs))
	for _, b := range Group(addrs, maxSize) {
		values, err := t.ReadHoldingRegisters(ctx, b.Start, b.Count)
		if err != nil {
			return nil, fmt.Errorf("read %d registers at %d: %w", b.Count, b.Start, err)
		}
		if len(values) != int(b.Count) {
			return nil, fmt.Errorf("%w: read %d registers at %d, got %d", ErrInvalidResponse, b.Count, b.Start, len(values))
		}
		for i, v := range values {
			words[b.Start+uint16(i)] = v
		}
	}
	return words, nil
}
