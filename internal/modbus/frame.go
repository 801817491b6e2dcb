package modbus

import (
	"encoding/binary"
	"fmt"
)

// Frame is a Modbus TCP ADU: MBAP header (7 bytes), function code and data.
type Frame struct {
	TransactionID uint16 // request/response correlation
	ProtocolID    uint16 // always 0x0000 for Modbus
	Length        uint16 // number of following bytes
	UnitID        uint8  // server address
	FunctionCode  uint8
	Data          []byte
}

const (
	mbapHeaderSize = 7
	maxADUSize     = 260

	// MaxReadQuantity is the register limit of one read request.
	MaxReadQuantity = 125
	// MaxWriteQuantity is the register limit of one write multiple request.
	MaxWriteQuantity = 123
)

// Modbus function codes
const (
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10

	exceptionFlag = 0x80
)

// Encode serialises the complete TCP frame.
func (f *Frame) Encode() []byte {
	f.Length = uint16(len(f.Data) + 2) // unit id + function code

	frame := make([]byte, mbapHeaderSize+1+len(f.Data))
	binary.BigEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(frame[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], f.Length)
	frame[6] = f.UnitID
	frame[7] = f.FunctionCode
	copy(frame[8:], f.Data)

	return frame
}

// DecodeFrame parses a received frame.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < mbapHeaderSize+1 {
		return nil, fmt.Errorf("%w: frame too short: %d bytes", ErrInvalidResponse, len(data))
	}

	frame := &Frame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	if frame.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("%w: protocol ID 0x%04X", ErrInvalidResponse, frame.ProtocolID)
	}
	if int(frame.Length) != len(data)-6 {
		return nil, fmt.Errorf("%w: length %d does not match %d bytes", ErrInvalidResponse, frame.Length, len(data)-6)
	}

	if len(data) > mbapHeaderSize+1 {
		frame.Data = data[mbapHeaderSize+1:]
	}

	return frame, nil
}

// Err returns the exception carried by an exception response, nil otherwise.
func (f *Frame) Err() error {
	if f.FunctionCode&exceptionFlag == 0 {
		return nil
	}
	var code byte
	if len(f.Data) > 0 {
		code = f.Data[0]
	}
	return &ExceptionError{Function: f.FunctionCode &^ exceptionFlag, Code: code}
}

func ReadHoldingRegistersRequest(unitID uint8, start, quantity uint16) *Frame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], start)
	binary.BigEndian.PutUint16(data[2:4], quantity)

	return &Frame{
		UnitID:       unitID,
		FunctionCode: FuncCodeReadHoldingRegisters,
		Data:         data,
	}
}

func WriteSingleRegisterRequest(unitID uint8, addr, value uint16) *Frame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], value)

	return &Frame{
		UnitID:       unitID,
		FunctionCode: FuncCodeWriteSingleRegister,
		Data:         data,
	}
}

func WriteMultipleRegistersRequest(unitID uint8, start uint16, values []uint16) *Frame {
	data := make([]byte, 5+2*len(values))
	binary.BigEndian.PutUint16(data[0:2], start)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values)))
	data[4] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[5+2*i:], v)
	}

	return &Frame{
		UnitID:       unitID,
		FunctionCode: FuncCodeWriteMultipleRegisters,
		Data:         data,
	}
}

// ParseRegisterResponse extracts the words of a read holding registers response.
func (f *Frame) ParseRegisterResponse(quantity uint16) ([]uint16, error) {
	if err := f.Err(); err != nil {
		return nil, err
	}
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("%w: empty register response", ErrInvalidResponse)
	}

	byteCount := int(f.Data[0])
	if byteCount != 2*int(quantity) || len(f.Data) < byteCount+1 {
		return nil, fmt.Errorf("%w: expected %d registers, got %d bytes", ErrInvalidResponse, quantity, byteCount)
	}

	return bytesToWords(f.Data[1 : 1+byteCount]), nil
}

func bytesToWords(b []byte) []uint16 {
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return words
}

func wordsToBytes(words []uint16) []byte {
	b := make([]byte, 2*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(b[2*i:], w)
	}
	return b
}
