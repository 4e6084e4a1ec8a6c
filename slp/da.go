package slp

import (
	"context"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/srvloc/srvloc/log"
	"github.com/srvloc/srvloc/srvurl"
	"github.com/srvloc/srvloc/wire"
)

// daEntry is one cached directory agent, learned from a DAAdvert or
// configured statically.
type daEntry struct {
	URL        string
	Addr       string
	BootTime   uint32
	Scopes     []string
	MinRefresh uint16
}

// ingestDAAdvert folds an advertisement into the DA cache. A boot
// timestamp of zero announces a shutdown and evicts the agent.
func (h *Handle) ingestDAAdvert(adv *wire.DAAdvert) {
	if wire.ErrorCode(adv.Error) != wire.CodeOK {
		return
	}
	u, err := srvurl.Parse(adv.URL)
	if err != nil || u.Host == "" {
		log.Debugw("ignoring bad DAAdvert url", log.M{"url": adv.URL})
		return
	}
	port := u.Port
	if port == 0 {
		port = wire.Port
	}
	addr := net.JoinHostPort(u.Host, strconv.Itoa(port))
	if adv.BootTime == 0 {
		h.das.Delete(addr)
		log.Debugw("directory agent withdrawn", log.M{"da": addr})
		return
	}
	h.das.Set(addr, &daEntry{
		URL:        adv.URL,
		Addr:       addr,
		BootTime:   adv.BootTime,
		Scopes:     splitList(adv.Scopes),
		MinRefresh: minRefreshAttr(adv.Attrs),
	})
	log.Debugw("directory agent cached", log.M{"da": addr, "scopes": adv.Scopes})
}

// directoryAgents returns every agent registrations should go to:
// statically configured addresses plus the advert cache. The first
// time the cache is needed and empty, one active discovery round runs.
func (h *Handle) directoryAgents(ctx context.Context) []string {
	out := make([]string, 0, 4)
	seen := make(map[string]struct{})
	add := func(addr string) {
		if !strings.Contains(addr, ":") {
			addr = net.JoinHostPort(addr, strconv.Itoa(wire.Port))
		}
		if _, ok := seen[addr]; !ok {
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	for _, addr := range h.props.DAAddresses() {
		add(addr)
	}
	if len(out) == 0 && h.das.Len() == 0 && atomic.CompareAndSwapInt32(&h.daProbed, 0, 1) {
		h.discoverDAs(ctx)
	}
	for _, addr := range h.das.Keys() {
		add(addr)
	}
	return out
}

// discoverDAs runs one active DA discovery convergence, feeding the
// cache through the usual DAAdvert ingestion path.
func (h *Handle) discoverDAs(ctx context.Context) {
	xid := h.nextXID()
	scopes := joinList(h.props.UseScopes())
	err := h.tr.Converge(ctx, func(prev []net.IP) []byte {
		return h.marshalMcast(xid, &wire.SrvRqst{
			PRList:      joinIPs(prev),
			ServiceType: ServiceTypeDA,
			Scopes:      scopes,
		})
	}, func(src net.Addr, pkt []byte) bool {
		hdr, msg, err := wire.Unmarshal(pkt)
		if err != nil || hdr.XID != xid {
			return true
		}
		if adv, ok := msg.(*wire.DAAdvert); ok {
			h.ingestDAAdvert(adv)
		}
		return true
	})
	if err != nil {
		log.Debugw("da discovery ended", log.M{"err": err})
	}
}

// DiscoverDirectoryAgents actively probes for directory agents and
// blocks until the convergence window closes. Registrations consult
// the resulting cache automatically; calling this is only needed to
// refresh it eagerly.
func (h *Handle) DiscoverDirectoryAgents() error {
	if err := h.begin(); err != nil {
		return err
	}
	defer h.finish()
	atomic.StoreInt32(&h.daProbed, 1)
	h.discoverDAs(h.ctx)
	return nil
}

// FindScopes returns the scopes this agent can use: the configured
// scope list united with every scope advertised by cached directory
// agents. The result is sorted and never empty.
func (h *Handle) FindScopes() ([]string, error) {
	if h.isClosed() {
		return nil, statusErr(StatusTypeError, "invalid handle: closed")
	}
	set := make(map[string]struct{})
	for _, s := range h.props.UseScopes() {
		set[s] = struct{}{}
	}
	h.das.ForEach(func(_ string, da *daEntry) {
		for _, s := range da.Scopes {
			set[s] = struct{}{}
		}
	})
	scopes := make([]string, 0, len(set))
	for s := range set {
		scopes = append(scopes, s)
	}
	if len(scopes) == 0 {
		scopes = append(scopes, "DEFAULT")
	}
	sort.Strings(scopes)
	return scopes, nil
}

// RefreshInterval returns the smallest lifetime that keeps a
// registration alive across every known directory agent's refresh
// policy, or 0 when no agent advertises one.
func (h *Handle) RefreshInterval() uint16 {
	var max uint16
	h.das.ForEach(func(_ string, da *daEntry) {
		if da.MinRefresh > max {
			max = da.MinRefresh
		}
	})
	return max
}

// minRefreshAttr pulls the min-refresh-interval attribute out of a
// DAAdvert attribute list.
func minRefreshAttr(attrs string) uint16 {
	const key = "(min-refresh-interval="
	i := strings.Index(attrs, key)
	if i < 0 {
		return 0
	}
	rest := attrs[i+len(key):]
	j := strings.IndexByte(rest, ')')
	if j < 0 {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(rest[:j]), 10, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}
