// Package modbustest provides an in-memory register bank implementing
// modbus.Transport for tests.
package modbustest

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var ErrOffline = errors.New("offline")

type Write struct {
	Start  uint16
	Values []uint16
}

// Memory serves holding registers from a map. Unset registers read as 0.
type Memory struct {
	mu        sync.Mutex
	registers map[uint16]uint16
	reads     int
	writes    []Write
	fail      bool
	broken    map[uint16]bool
}

func NewMemory(registers map[uint16]uint16) *Memory {
	if registers == nil {
		registers = map[uint16]uint16{}
	}
	return &Memory{registers: registers}
}

func (m *Memory) Connect(context.Context) error { return nil }
func (m *Memory) Close() error                  { return nil }

func (m *Memory) ReadHoldingRegisters(_ context.Context, start, quantity uint16) ([]uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, ErrOffline
	}
	for a := range m.broken {
		if a >= start && a < start+quantity {
			return nil, ErrOffline
		}
	}
	m.reads++
	out := make([]uint16, quantity)
	for i := range out {
		out[i] = m.registers[start+uint16(i)]
	}
	return out, nil
}

func (m *Memory) WriteRegisters(_ context.Context, start uint16, values []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return ErrOffline
	}
	m.writes = append(m.writes, Write{start, slices.Clone(values)})
	for i, v := range values {
		m.registers[start+uint16(i)] = v
	}
	return nil
}

// SetFail makes every subsequent request fail with ErrOffline.
func (m *Memory) SetFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

// Break makes every read covering addr fail with ErrOffline.
func (m *Memory) Break(addr uint16) {
	m.mu.Lock()
	if m.broken == nil {
		m.broken = make(map[uint16]bool)
	}
	m.broken[addr] = true
	m.mu.Unlock()
}

func (m *Memory) Set(addr, value uint16) {
	m.mu.Lock()
	m.registers[addr] = value
	m.mu.Unlock()
}

func (m *Memory) Get(addr uint16) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registers[addr]
}

func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.writes)
}

// SunsynkRegisters returns a register bank of a 5 kW inverter with serial
// "2103045678", 80% state of charge and a programmed time schedule.
func SunsynkRegisters() map[uint16]uint16 {
	return map[uint16]uint16{
		3: 0x3231, 4: 0x3033, 5: 0x3034, 6: 0x3536, 7: 0x3738,
		16: 0, 17: 50000,
		217: 10, 218: 50, 219: 30,
		250: 0, 251: 400, 252: 800, 253: 1200, 254: 1600, 255: 2000,
		274: 0x0006,
		586: 1250, 587: 5312, 588: 80,
	}
}
