// Package transport carries SLP PDUs over the network: multicast
// convergence with retransmission for discovery, and unicast TCP
// request/response for directory agents.
package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/srvloc/srvloc/config"
	"github.com/srvloc/srvloc/wire"
)

// ErrClosed is returned for any operation on a closed transport.
var ErrClosed = errors.New("transport: closed")

type Config struct {
	// Group is the multicast group IP for convergence requests.
	Group string
	// Port is the SLP port used for the multicast destination.
	Port int
	// Destination overrides the group:port destination entirely.
	// Used by tests to point convergence at a unicast responder.
	Destination string
	// Interface names the multicast interface, "" for the default.
	Interface string

	TTL         int
	MTU         int
	Timeouts    []time.Duration
	MaxWait     time.Duration
	UnicastWait time.Duration
}

// FromProperties builds a transport config from a property table.
func FromProperties(p *config.Properties) Config {
	return Config{
		Group:       wire.McastGroup,
		Port:        p.Port(),
		Interface:   p.Interface(),
		TTL:         p.MulticastTTL(),
		MTU:         p.MTU(),
		Timeouts:    p.MulticastTimeouts(),
		MaxWait:     p.MulticastMaximumWait(),
		UnicastWait: p.UnicastMaximumWait(),
	}
}

// Transport performs the network I/O for one handle. Sockets are per
// request; the transport itself only holds configuration and the
// resolved convergence destination.
type Transport struct {
	cfg    Config
	dst    *net.UDPAddr
	closed int32
}

func New(cfg Config) (*Transport, error) {
	if cfg.Group == "" {
		cfg.Group = wire.McastGroup
	}
	if cfg.Port == 0 {
		cfg.Port = wire.Port
	}
	if cfg.TTL == 0 {
		cfg.TTL = 255
	}
	if cfg.MTU == 0 {
		cfg.MTU = 1400
	}
	if len(cfg.Timeouts) == 0 {
		cfg.Timeouts = []time.Duration{3 * time.Second}
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 15 * time.Second
	}
	if cfg.UnicastWait == 0 {
		cfg.UnicastWait = 5 * time.Second
	}
	dest := cfg.Destination
	if dest == "" {
		dest = net.JoinHostPort(cfg.Group, strconv.Itoa(cfg.Port))
	}
	dst, err := net.ResolveUDPAddr("udp4", dest)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %s: %w", dest, err)
	}
	return &Transport{cfg: cfg, dst: dst}, nil
}

func (t *Transport) Close() error {
	atomic.StoreInt32(&t.closed, 1)
	return nil
}

func (t *Transport) isClosed() bool {
	return atomic.LoadInt32(&t.closed) == 1
}
