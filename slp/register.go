package slp

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/srvloc/srvloc/log"
	"github.com/srvloc/srvloc/srvurl"
	"github.com/srvloc/srvloc/wire"
)

// Registration is the handle-local record of a service this agent has
// registered. Refreshing before ExpiresAt (fresh=false) keeps it alive
// at the directory agents.
type Registration struct {
	URL         string
	ServiceType string
	Scopes      string
	Attrs       string
	Lifetime    uint16
	ExpiresAt   time.Time
}

// Register announces a service URL with the given lifetime in seconds.
// fresh marks a new registration; a refresh of an existing one must
// pass fresh=false before the lifetime expires. The terminal status is
// reported through cb exactly once.
func (h *Handle) Register(url string, lifetime uint16, attrs string, fresh bool, cb ReportCallback) error {
	if cb == nil {
		return statusErr(StatusParameterBad, "nil callback")
	}
	if lifetime == 0 {
		return statusErr(StatusInvalidRegistration, "lifetime must be in (0, %d]", LifetimeMaximum)
	}
	u, err := srvurl.Parse(url)
	if err != nil {
		return statusErr(StatusParseError, "bad service url: %v", err)
	}
	if attrs != "" && !validAttrList(attrs) {
		return statusErr(StatusInvalidRegistration, "malformed attribute list %q", attrs)
	}
	scopes := joinList(h.props.UseScopes())
	if err := h.begin(); err != nil {
		return err
	}
	requestsTotal.WithLabelValues("register").Inc()
	xid := h.nextXID()
	h.run(func(ctx context.Context) {
		var flags uint16
		if fresh {
			flags = wire.FlagFresh
		}
		st := h.sendRegistration(ctx, xid, flags, &wire.SrvReg{
			Entry:       wire.URLEntry{Lifetime: lifetime, URL: url},
			ServiceType: u.ServiceType,
			Scopes:      scopes,
			Attrs:       attrs,
		})
		if st == StatusOK {
			// same URL overwrites in place: a refresh never creates
			// a second record
			h.regs.Set(url, &Registration{
				URL:         url,
				ServiceType: u.ServiceType,
				Scopes:      scopes,
				Attrs:       attrs,
				Lifetime:    lifetime,
				ExpiresAt:   time.Now().Add(time.Duration(lifetime) * time.Second),
			})
		}
		h.report(ctx, cb, st)
	})
	return nil
}

// Deregister withdraws a previously registered service URL.
func (h *Handle) Deregister(url string, cb ReportCallback) error {
	if cb == nil {
		return statusErr(StatusParameterBad, "nil callback")
	}
	if _, err := srvurl.Parse(url); err != nil {
		return statusErr(StatusParseError, "bad service url: %v", err)
	}
	scopes := joinList(h.props.UseScopes())
	if err := h.begin(); err != nil {
		return err
	}
	requestsTotal.WithLabelValues("deregister").Inc()
	xid := h.nextXID()
	h.run(func(ctx context.Context) {
		st := h.sendRegistration(ctx, xid, 0, &wire.SrvDeReg{
			Scopes: scopes,
			Entry:  wire.URLEntry{URL: url},
		})
		if st == StatusOK {
			if reg, ok := h.regs.Pop(url); ok {
				log.Debugw("registration withdrawn", log.M{"url": reg.URL})
			}
		}
		h.report(ctx, cb, st)
	})
	return nil
}

// DeleteAttributes removes the attributes named by the comma-separated
// tag list from a registration, leaving the registration itself alive.
func (h *Handle) DeleteAttributes(url, tags string, cb ReportCallback) error {
	if cb == nil {
		return statusErr(StatusParameterBad, "nil callback")
	}
	if tags == "" {
		return statusErr(StatusParameterBad, "empty tag list")
	}
	if _, err := srvurl.Parse(url); err != nil {
		return statusErr(StatusParseError, "bad service url: %v", err)
	}
	for _, tag := range splitList(tags) {
		if _, err := srvurl.Unescape(tag, true); err != nil {
			return statusErr(StatusParseError, "bad attribute tag %q", tag)
		}
	}
	scopes := joinList(h.props.UseScopes())
	if err := h.begin(); err != nil {
		return err
	}
	requestsTotal.WithLabelValues("delete_attributes").Inc()
	xid := h.nextXID()
	h.run(func(ctx context.Context) {
		st := h.sendRegistration(ctx, xid, 0, &wire.SrvDeReg{
			Scopes: scopes,
			Entry:  wire.URLEntry{URL: url},
			Tags:   tags,
		})
		h.report(ctx, cb, st)
	})
	return nil
}

// Registrations snapshots the live registration records of this
// handle, for callers driving their own refresh cycle.
func (h *Handle) Registrations() []*Registration {
	var out []*Registration
	h.regs.ForEach(func(_ string, r *Registration) {
		out = append(out, r)
	})
	return out
}

// sendRegistration delivers one registration-family PDU and returns
// its terminal status: unicast to every known directory agent, or by
// multicast convergence waiting for the first acknowledgement when no
// agent is known.
func (h *Handle) sendRegistration(ctx context.Context, xid uint16, flags uint16, msg wire.Message) Status {
	pkt, err := wire.Marshal(wire.Header{Flags: flags, XID: xid, Lang: h.lang}, msg)
	if err != nil {
		return StatusInternalSystemError
	}
	das := h.directoryAgents(ctx)
	if len(das) == 0 {
		return h.mcastRegistration(ctx, xid, flags, msg)
	}

	acked := false
	for _, da := range das {
		resp, err := h.tr.Request(ctx, da, pkt)
		if err != nil {
			log.Warnw("directory agent unreachable", log.M{"da": da, "err": err})
			continue
		}
		if st := h.parseAck(resp, xid); st != StatusOK {
			return st
		}
		acked = true
	}
	if !acked {
		timeoutsTotal.Inc()
		return StatusNetworkTimedOut
	}
	return StatusOK
}

func (h *Handle) mcastRegistration(ctx context.Context, xid uint16, flags uint16, msg wire.Message) Status {
	pkt, err := wire.Marshal(wire.Header{Flags: flags | wire.FlagMcast, XID: xid, Lang: h.lang}, msg)
	if err != nil {
		return StatusInternalSystemError
	}
	final := StatusNetworkTimedOut
	err = h.tr.Converge(ctx, func([]net.IP) []byte {
		return pkt
	}, func(src net.Addr, reply []byte) bool {
		hdr, m, err := wire.Unmarshal(reply)
		if err != nil || hdr.XID != xid {
			return true
		}
		ack, ok := m.(*wire.SrvAck)
		if !ok {
			return true
		}
		final = statusFromWire(wire.ErrorCode(ack.Error))
		return false
	})
	if err != nil {
		return StatusNetworkError
	}
	if final == StatusNetworkTimedOut {
		timeoutsTotal.Inc()
	}
	return final
}

func (h *Handle) parseAck(resp []byte, xid uint16) Status {
	hdr, m, err := wire.Unmarshal(resp)
	if err != nil {
		return StatusParseError
	}
	ack, ok := m.(*wire.SrvAck)
	if !ok || hdr.XID != xid {
		return StatusNetworkError
	}
	return statusFromWire(wire.ErrorCode(ack.Error))
}

// report delivers the single terminal status of a registration-family
// operation, unless the handle is being closed.
func (h *Handle) report(ctx context.Context, cb ReportCallback, st Status) {
	if ctx.Err() != nil {
		return
	}
	h.invoke(func() Action {
		cb(st)
		return Continue
	})
}

// validAttrList accepts the wire attribute list form: parenthesized
// (tag=value-list) assignments or bare keyword tags, comma separated.
func validAttrList(attrs string) bool {
	depth := 0
	for i := 0; i < len(attrs); i++ {
		switch attrs[i] {
		case '(':
			depth++
			if depth > 1 {
				return false
			}
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		case '=':
			if depth == 0 {
				return false
			}
		}
	}
	return depth == 0 && !strings.Contains(attrs, "()")
}
