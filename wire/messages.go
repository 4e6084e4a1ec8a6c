package wire

import "fmt"

// URLEntry is the URL entry structure shared by service replies,
// registrations and deregistrations.
type URLEntry struct {
	Lifetime uint16
	URL      string
}

func (e *URLEntry) encode(w *writer) {
	w.u8(0) // reserved
	w.u16(e.Lifetime)
	w.str(e.URL)
	w.u8(0) // no auth blocks
}

func (e *URLEntry) decode(r *reader) {
	r.u8()
	e.Lifetime = r.u16()
	e.URL = r.str()
	skipAuthBlocks(r, r.u8())
}

// skipAuthBlocks steps over authentication blocks. Each block carries
// its own 16-bit total length (BSD and length fields included).
func skipAuthBlocks(r *reader, n uint8) {
	for i := uint8(0); i < n; i++ {
		r.u16() // block structure descriptor
		length := int(r.u16())
		if length < 4 {
			if r.err == nil {
				r.err = fmt.Errorf("%w: auth block length %d", ErrParse, length)
			}
			return
		}
		r.take(length-4, "auth block")
	}
}

// SrvRqst is a service request (function 1).
type SrvRqst struct {
	PRList      string
	ServiceType string
	Scopes      string
	Predicate   string
	SPI         string
}

func (*SrvRqst) Function() uint8 { return FnSrvRqst }

func (m *SrvRqst) encode(w *writer) {
	w.str(m.PRList)
	w.str(m.ServiceType)
	w.str(m.Scopes)
	w.str(m.Predicate)
	w.str(m.SPI)
}

func (m *SrvRqst) decode(r *reader) {
	m.PRList = r.str()
	m.ServiceType = r.str()
	m.Scopes = r.str()
	m.Predicate = r.str()
	m.SPI = r.str()
}

// SrvRply is a service reply (function 2).
type SrvRply struct {
	Error uint16
	URLs  []URLEntry
}

func (*SrvRply) Function() uint8 { return FnSrvRply }

func (m *SrvRply) encode(w *writer) {
	w.u16(m.Error)
	w.u16(uint16(len(m.URLs)))
	for i := range m.URLs {
		m.URLs[i].encode(w)
	}
}

func (m *SrvRply) decode(r *reader) {
	m.Error = r.u16()
	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		var e URLEntry
		e.decode(r)
		if r.err == nil {
			m.URLs = append(m.URLs, e)
		}
	}
}

// SrvReg is a service registration (function 3). Freshness travels in
// the header FlagFresh bit, not in the body.
type SrvReg struct {
	Entry       URLEntry
	ServiceType string
	Scopes      string
	Attrs       string
}

func (*SrvReg) Function() uint8 { return FnSrvReg }

func (m *SrvReg) encode(w *writer) {
	m.Entry.encode(w)
	w.str(m.ServiceType)
	w.str(m.Scopes)
	w.str(m.Attrs)
	w.u8(0) // no attr auth blocks
}

func (m *SrvReg) decode(r *reader) {
	m.Entry.decode(r)
	m.ServiceType = r.str()
	m.Scopes = r.str()
	m.Attrs = r.str()
	skipAuthBlocks(r, r.u8())
}

// SrvDeReg is a service deregistration (function 4). A non-empty tag
// list deletes only the named attributes instead of the whole
// registration.
type SrvDeReg struct {
	Scopes string
	Entry  URLEntry
	Tags   string
}

func (*SrvDeReg) Function() uint8 { return FnSrvDeReg }

func (m *SrvDeReg) encode(w *writer) {
	w.str(m.Scopes)
	m.Entry.encode(w)
	w.str(m.Tags)
}

func (m *SrvDeReg) decode(r *reader) {
	m.Scopes = r.str()
	m.Entry.decode(r)
	m.Tags = r.str()
}

// SrvAck acknowledges a registration or deregistration (function 5).
type SrvAck struct {
	Error uint16
}

func (*SrvAck) Function() uint8 { return FnSrvAck }

func (m *SrvAck) encode(w *writer) { w.u16(m.Error) }
func (m *SrvAck) decode(r *reader) { m.Error = r.u16() }

// AttrRqst is an attribute request (function 6). URL holds either a
// full service URL or a bare service type.
type AttrRqst struct {
	PRList string
	URL    string
	Scopes string
	Tags   string
	SPI    string
}

func (*AttrRqst) Function() uint8 { return FnAttrRqst }

func (m *AttrRqst) encode(w *writer) {
	w.str(m.PRList)
	w.str(m.URL)
	w.str(m.Scopes)
	w.str(m.Tags)
	w.str(m.SPI)
}

func (m *AttrRqst) decode(r *reader) {
	m.PRList = r.str()
	m.URL = r.str()
	m.Scopes = r.str()
	m.Tags = r.str()
	m.SPI = r.str()
}

// AttrRply is an attribute reply (function 7).
type AttrRply struct {
	Error uint16
	Attrs string
}

func (*AttrRply) Function() uint8 { return FnAttrRply }

func (m *AttrRply) encode(w *writer) {
	w.u16(m.Error)
	w.str(m.Attrs)
	w.u8(0)
}

func (m *AttrRply) decode(r *reader) {
	m.Error = r.u16()
	m.Attrs = r.str()
	skipAuthBlocks(r, r.u8())
}

// wildcardAuthLen in the naming authority length field requests all
// naming authorities ("*" at the API).
const wildcardAuthLen = 0xFFFF

// SrvTypeRqst is a service type request (function 9).
type SrvTypeRqst struct {
	PRList     string
	NamingAuth string
	AllAuth    bool
	Scopes     string
}

func (*SrvTypeRqst) Function() uint8 { return FnSrvTypeRqst }

func (m *SrvTypeRqst) encode(w *writer) {
	w.str(m.PRList)
	if m.AllAuth {
		w.u16(wildcardAuthLen)
	} else {
		w.str(m.NamingAuth)
	}
	w.str(m.Scopes)
}

func (m *SrvTypeRqst) decode(r *reader) {
	m.PRList = r.str()
	n := r.u16()
	if n == wildcardAuthLen {
		m.AllAuth = true
	} else {
		b := r.take(int(n), "naming authority")
		m.NamingAuth = string(b)
	}
	m.Scopes = r.str()
}

// SrvTypeRply is a service type reply (function 10).
type SrvTypeRply struct {
	Error uint16
	Types string
}

func (*SrvTypeRply) Function() uint8 { return FnSrvTypeRply }

func (m *SrvTypeRply) encode(w *writer) {
	w.u16(m.Error)
	w.str(m.Types)
}

func (m *SrvTypeRply) decode(r *reader) {
	m.Error = r.u16()
	m.Types = r.str()
}

// DAAdvert announces a directory agent (function 8).
type DAAdvert struct {
	Error    uint16
	BootTime uint32
	URL      string
	Scopes   string
	Attrs    string
	SPIs     string
}

func (*DAAdvert) Function() uint8 { return FnDAAdvert }

func (m *DAAdvert) encode(w *writer) {
	w.u16(m.Error)
	w.u32(m.BootTime)
	w.str(m.URL)
	w.str(m.Scopes)
	w.str(m.Attrs)
	w.str(m.SPIs)
	w.u8(0)
}

func (m *DAAdvert) decode(r *reader) {
	m.Error = r.u16()
	m.BootTime = r.u32()
	m.URL = r.str()
	m.Scopes = r.str()
	m.Attrs = r.str()
	m.SPIs = r.str()
	skipAuthBlocks(r, r.u8())
}
