package slp

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/srvloc/srvloc/log"
	"github.com/srvloc/srvloc/wire"
)

// stream tracks one in-flight discovery request: duplicate
// suppression, the result cap and whether the caller stopped early.
type stream struct {
	h       *Handle
	seen    map[uint64]struct{}
	count   int
	max     int
	stopped bool
}

func newStream(h *Handle) *stream {
	return &stream{
		h:    h,
		seen: make(map[uint64]struct{}),
		max:  h.props.MaxResults(),
	}
}

// duplicate reports whether this responder already sent this payload
// for the current request.
func (s *stream) duplicate(src net.Addr, pkt []byte) bool {
	key := xxh3.Hash(append([]byte(src.String()), pkt...))
	if _, ok := s.seen[key]; ok {
		duplicatesTotal.Inc()
		return true
	}
	s.seen[key] = struct{}{}
	return false
}

// deliver hands one result to the callback. It returns false when the
// request must end: the caller asked to stop or the result cap is hit.
func (s *stream) deliver(fn func() Action) bool {
	repliesTotal.Inc()
	if s.h.invoke(fn) == Stop {
		s.stopped = true
		return false
	}
	s.count++
	return s.max == 0 || s.count < s.max
}

// finish sends the terminal last-call invocation, unless the caller
// stopped the request or the handle is going away. A transport error
// is surfaced through the callback status first.
func (s *stream) finish(err error, fn func(Status) Action) {
	if s.stopped {
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		timeoutsTotal.Inc()
		if s.h.invoke(func() Action { return fn(StatusNetworkError) }) == Stop {
			return
		}
	}
	s.h.invoke(func() Action { return fn(StatusLastCall) })
}

// decodeReply filters one received packet down to the reply body for
// the request identified by xid. DAAdverts are absorbed into the DA
// cache regardless of which request triggered them.
func (s *stream) decodeReply(xid uint16, src net.Addr, pkt []byte) (wire.Message, bool) {
	hdr, msg, err := wire.Unmarshal(pkt)
	if err != nil {
		log.Debugw("dropping malformed reply", log.M{"src": src.String(), "err": err})
		return nil, false
	}
	if hdr.XID != xid {
		return nil, false
	}
	if s.duplicate(src, pkt) {
		return nil, false
	}
	if adv, ok := msg.(*wire.DAAdvert); ok {
		s.h.ingestDAAdvert(adv)
		return nil, false
	}
	return msg, true
}

// FindServices issues a service request for serviceType and streams
// matching URLs to cb. Empty scopes take the configured scope list;
// filter is an LDAPv3 search filter or "".
func (h *Handle) FindServices(serviceType, scopes, filter string, cb URLCallback) error {
	if cb == nil {
		return statusErr(StatusParameterBad, "nil callback")
	}
	if serviceType == "" {
		return statusErr(StatusParameterBad, "empty service type")
	}
	scopes = h.scopesOrDefault(scopes)
	if err := h.begin(); err != nil {
		return err
	}
	requestsTotal.WithLabelValues("find_services").Inc()
	xid := h.nextXID()
	h.run(func(ctx context.Context) {
		s := newStream(h)
		err := h.tr.Converge(ctx, func(prev []net.IP) []byte {
			return h.marshalMcast(xid, &wire.SrvRqst{
				PRList:      joinIPs(prev),
				ServiceType: serviceType,
				Scopes:      scopes,
				Predicate:   filter,
			})
		}, func(src net.Addr, pkt []byte) bool {
			msg, ok := s.decodeReply(xid, src, pkt)
			if !ok {
				return true
			}
			rply, ok := msg.(*wire.SrvRply)
			if !ok {
				return true
			}
			if code := wire.ErrorCode(rply.Error); code != wire.CodeOK {
				st := statusFromWire(code)
				return s.deliver(func() Action { return cb("", 0, st) })
			}
			for _, e := range rply.URLs {
				e := e
				if !s.deliver(func() Action { return cb(e.URL, e.Lifetime, StatusOK) }) {
					return false
				}
			}
			return true
		})
		s.finish(err, func(st Status) Action { return cb("", 0, st) })
	})
	return nil
}

// FindServiceTypes issues a service type request. namingAuthority "*"
// asks all naming authorities, "" the default (IANA). Each reply's
// comma-separated type list goes to cb as-is.
func (h *Handle) FindServiceTypes(namingAuthority, scopes string, cb ListCallback) error {
	if cb == nil {
		return statusErr(StatusParameterBad, "nil callback")
	}
	scopes = h.scopesOrDefault(scopes)
	if err := h.begin(); err != nil {
		return err
	}
	requestsTotal.WithLabelValues("find_service_types").Inc()
	xid := h.nextXID()
	h.run(func(ctx context.Context) {
		s := newStream(h)
		err := h.tr.Converge(ctx, func(prev []net.IP) []byte {
			return h.marshalMcast(xid, &wire.SrvTypeRqst{
				PRList:     joinIPs(prev),
				NamingAuth: namingAuthority,
				AllAuth:    namingAuthority == "*",
				Scopes:     scopes,
			})
		}, func(src net.Addr, pkt []byte) bool {
			msg, ok := s.decodeReply(xid, src, pkt)
			if !ok {
				return true
			}
			rply, ok := msg.(*wire.SrvTypeRply)
			if !ok {
				return true
			}
			st := statusFromWire(wire.ErrorCode(rply.Error))
			return s.deliver(func() Action { return cb(rply.Types, st) })
		})
		s.finish(err, func(st Status) Action { return cb("", st) })
	})
	return nil
}

// FindAttributes issues an attribute request for a service URL or a
// bare service type. tags limits the returned attributes to a
// comma-separated id list; "" returns all of them.
func (h *Handle) FindAttributes(urlOrType, scopes, tags string, cb ListCallback) error {
	if cb == nil {
		return statusErr(StatusParameterBad, "nil callback")
	}
	if urlOrType == "" {
		return statusErr(StatusParameterBad, "empty url or service type")
	}
	scopes = h.scopesOrDefault(scopes)
	if err := h.begin(); err != nil {
		return err
	}
	requestsTotal.WithLabelValues("find_attributes").Inc()
	xid := h.nextXID()
	h.run(func(ctx context.Context) {
		s := newStream(h)
		err := h.tr.Converge(ctx, func(prev []net.IP) []byte {
			return h.marshalMcast(xid, &wire.AttrRqst{
				PRList: joinIPs(prev),
				URL:    urlOrType,
				Scopes: scopes,
				Tags:   tags,
			})
		}, func(src net.Addr, pkt []byte) bool {
			msg, ok := s.decodeReply(xid, src, pkt)
			if !ok {
				return true
			}
			rply, ok := msg.(*wire.AttrRply)
			if !ok {
				return true
			}
			st := statusFromWire(wire.ErrorCode(rply.Error))
			return s.deliver(func() Action { return cb(rply.Attrs, st) })
		})
		s.finish(err, func(st Status) Action { return cb("", st) })
	})
	return nil
}

// marshalMcast encodes a multicast request PDU. Marshal can only fail
// on oversized strings, which argument validation has excluded.
func (h *Handle) marshalMcast(xid uint16, m wire.Message) []byte {
	pkt, err := wire.Marshal(wire.Header{Flags: wire.FlagMcast, XID: xid, Lang: h.lang}, m)
	if err != nil {
		log.Errorw("marshal request", log.M{"err": err})
		return nil
	}
	return pkt
}

func joinIPs(ips []net.IP) string {
	parts := make([]string, len(ips))
	for i, ip := range ips {
		parts[i] = ip.String()
	}
	return strings.Join(parts, ",")
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
