package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/srvloc/srvloc/log"
)

// Converge runs one multicast convergence round trip: transmit,
// collect unicast replies for the scheduled wait, retransmit with the
// responders heard so far, until the schedule or the maximum wait is
// exhausted. The request bytes are rebuilt for every transmission so
// the previous responder list can grow. deliver is called once per
// received packet; returning false ends the run early.
//
// A nil return means the run completed or was stopped by deliver;
// context cancellation and socket failures are returned as errors.
func (t *Transport) Converge(ctx context.Context, build func(prev []net.IP) []byte, deliver func(src net.Addr, pkt []byte) bool) error {
	if t.isClosed() {
		return ErrClosed
	}
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return err
	}
	defer conn.Close()
	t.setMulticastOpts(conn)

	// unblock the read loop when the caller goes away
	unwatch := watchContext(ctx, conn)
	defer unwatch()

	var (
		prev     []net.IP
		buf      = make([]byte, t.cfg.MTU)
		deadline = time.Now().Add(t.cfg.MaxWait)
	)
	for round, wait := range t.cfg.Timeouts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := conn.WriteTo(build(prev), t.dst); err != nil {
			return err
		}
		if round > 0 {
			retransmitsTotal.Inc()
		}
		roundEnd := time.Now().Add(wait)
		if roundEnd.After(deadline) {
			roundEnd = deadline
		}
		for {
			_ = conn.SetReadDeadline(roundEnd)
			n, src, err := conn.ReadFrom(buf)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if isTimeout(err) {
					break
				}
				return err
			}
			pkt := make([]byte, n)
			copy(pkt, buf[:n])
			if udp, ok := src.(*net.UDPAddr); ok {
				prev = appendResponder(prev, udp.IP)
			}
			if !deliver(src, pkt) {
				return nil
			}
		}
		if !time.Now().Before(deadline) {
			break
		}
	}
	return nil
}

func (t *Transport) setMulticastOpts(conn net.PacketConn) {
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(t.cfg.TTL); err != nil {
		log.Debugw("set multicast ttl", log.M{"err": err})
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		log.Debugw("set multicast loopback", log.M{"err": err})
	}
	if t.cfg.Interface != "" {
		ifi, err := net.InterfaceByName(t.cfg.Interface)
		if err != nil {
			log.Warnw("multicast interface not found", log.M{"interface": t.cfg.Interface, "err": err})
			return
		}
		if err := pc.SetMulticastInterface(ifi); err != nil {
			log.Warnw("set multicast interface", log.M{"interface": t.cfg.Interface, "err": err})
		}
	}
}

// watchContext forces a pending read to fail once ctx is canceled.
func watchContext(ctx context.Context, conn net.PacketConn) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Unix(0, 0))
		case <-done:
		}
	}()
	return func() { close(done) }
}

func appendResponder(prev []net.IP, ip net.IP) []net.IP {
	for _, p := range prev {
		if p.Equal(ip) {
			return prev
		}
	}
	return append(prev, ip)
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
