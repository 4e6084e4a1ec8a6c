// Package wire implements the SLPv2 PDU encoding of RFC 2608: the
// common header and the request/reply bodies a user agent speaks.
// All integers are big-endian; strings carry a 16-bit length prefix.
package wire

import (
	"errors"
	"fmt"
)

const Version = 2

// Function IDs, RFC 2608 section 8.
const (
	FnSrvRqst     = 1
	FnSrvRply     = 2
	FnSrvReg      = 3
	FnSrvDeReg    = 4
	FnSrvAck      = 5
	FnAttrRqst    = 6
	FnAttrRply    = 7
	FnDAAdvert    = 8
	FnSrvTypeRqst = 9
	FnSrvTypeRply = 10
	FnSAAdvert    = 11
)

// Header flag bits.
const (
	FlagOverflow uint16 = 0x8000
	FlagFresh    uint16 = 0x4000
	FlagMcast    uint16 = 0x2000
)

const (
	// Port is the registered SLP port for both UDP and TCP.
	Port = 427
	// McastGroup is the administratively scoped SLP multicast group.
	McastGroup = "239.255.255.253"

	headerMin = 14
	maxLen    = 1<<24 - 1
)

// ErrParse is the base error for every malformed packet condition.
// Decoders never read out of bounds; they fail with an error wrapping
// ErrParse instead.
var ErrParse = errors.New("wire: malformed packet")

// Header is the common SLPv2 message header.
type Header struct {
	Function uint8
	Flags    uint16
	XID      uint16
	Lang     string
}

// Message is an SLPv2 message body.
type Message interface {
	Function() uint8
	encode(w *writer)
	decode(r *reader)
}

// Marshal encodes a header and body into a single PDU, computing the
// 24-bit length field.
func Marshal(h Header, m Message) ([]byte, error) {
	w := &writer{}
	w.u8(Version)
	w.u8(m.Function())
	w.u24(0) // patched below
	w.u16(h.Flags)
	w.u24(0) // no extensions
	w.u16(h.XID)
	w.str(h.Lang)
	m.encode(w)
	if w.err != nil {
		return nil, w.err
	}
	if len(w.buf) > maxLen {
		return nil, fmt.Errorf("%w: message length %d exceeds 24-bit field", ErrParse, len(w.buf))
	}
	putU24(w.buf[2:], uint32(len(w.buf)))
	return w.buf, nil
}

// Unmarshal decodes a full PDU. The length field must cover the whole
// header and body and must not exceed the buffer.
func Unmarshal(pkt []byte) (Header, Message, error) {
	var h Header
	r := &reader{buf: pkt}
	version := r.u8()
	h.Function = r.u8()
	length := r.u24()
	h.Flags = r.u16()
	r.u24() // next extension offset, ignored
	h.XID = r.u16()
	h.Lang = r.str()
	if r.err != nil {
		return h, nil, r.err
	}
	if version != Version {
		return h, nil, fmt.Errorf("%w: unsupported version %d", ErrParse, version)
	}
	if int(length) > len(pkt) || length < headerMin {
		return h, nil, fmt.Errorf("%w: length field %d out of range for %d byte packet", ErrParse, length, len(pkt))
	}
	// the length field is authoritative; ignore trailing bytes
	r.buf = pkt[:length]

	m := newMessage(h.Function)
	if m == nil {
		return h, nil, fmt.Errorf("%w: unknown function id %d", ErrParse, h.Function)
	}
	m.decode(r)
	if r.err != nil {
		return h, nil, r.err
	}
	return h, m, nil
}

func newMessage(fn uint8) Message {
	switch fn {
	case FnSrvRqst:
		return &SrvRqst{}
	case FnSrvRply:
		return &SrvRply{}
	case FnSrvReg:
		return &SrvReg{}
	case FnSrvDeReg:
		return &SrvDeReg{}
	case FnSrvAck:
		return &SrvAck{}
	case FnAttrRqst:
		return &AttrRqst{}
	case FnAttrRply:
		return &AttrRply{}
	case FnDAAdvert:
		return &DAAdvert{}
	case FnSrvTypeRqst:
		return &SrvTypeRqst{}
	case FnSrvTypeRply:
		return &SrvTypeRply{}
	}
	return nil
}

func putU24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// writer appends big-endian fields, carrying the first error.
type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v uint8)  { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}
func (w *writer) u24(v uint32) {
	w.buf = append(w.buf, byte(v>>16), byte(v>>8), byte(v))
}
func (w *writer) u32(v uint32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (w *writer) str(s string) {
	if len(s) > 0xFFFF {
		if w.err == nil {
			w.err = fmt.Errorf("%w: string length %d exceeds 16-bit field", ErrParse, len(s))
		}
		return
	}
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// reader consumes big-endian fields with sticky bounds checking.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: truncated %s at offset %d", ErrParse, what, r.off)
	}
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.fail(what)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1, "byte")
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2, "uint16")
	if b == nil {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

func (r *reader) u24() uint32 {
	b := r.take(3, "uint24")
	if b == nil {
		return 0
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func (r *reader) u32() uint32 {
	b := r.take(4, "uint32")
	if b == nil {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (r *reader) str() string {
	n := int(r.u16())
	b := r.take(n, "string")
	if b == nil {
		return ""
	}
	return string(b)
}
