package slp

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srvloc/srvloc/wire"
)

// fakeTransport satisfies Transporter in-process. onConverge produces
// the reply packets for each transmitted request; rounds repeats the
// transmit/collect cycle to exercise retransmission paths.
type fakeTransport struct {
	rounds     int
	onConverge func(req []byte) [][]byte
	onRequest  func(addr string, req []byte) ([]byte, error)

	mu        sync.Mutex
	requested []string
	entered   chan struct{}
	block     chan struct{}
	closed    bool
}

var fakeSrc = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50427}

func (f *fakeTransport) Converge(ctx context.Context, build func(prev []net.IP) []byte, deliver func(src net.Addr, pkt []byte) bool) error {
	if f.entered != nil {
		close(f.entered)
		f.entered = nil
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	rounds := f.rounds
	if rounds == 0 {
		rounds = 1
	}
	var prev []net.IP
	for r := 0; r < rounds; r++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req := build(prev)
		if f.onConverge == nil {
			continue
		}
		for _, pkt := range f.onConverge(req) {
			prev = append(prev, fakeSrc.IP)
			if !deliver(fakeSrc, pkt) {
				return nil
			}
		}
	}
	return nil
}

func (f *fakeTransport) Request(ctx context.Context, addr string, req []byte) ([]byte, error) {
	f.mu.Lock()
	f.requested = append(f.requested, addr)
	f.mu.Unlock()
	if f.onRequest == nil {
		return nil, errors.New("no directory agent")
	}
	return f.onRequest(addr, req)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}

// replyTo builds a reply PDU reusing the XID of the request being
// answered, the way a real agent would.
func replyTo(t *testing.T, req []byte, m wire.Message) []byte {
	t.Helper()
	hdr, _, err := wire.Unmarshal(req)
	require.NoError(t, err)
	pkt, err := wire.Marshal(wire.Header{XID: hdr.XID, Lang: hdr.Lang}, m)
	require.NoError(t, err)
	return pkt
}

func requestOf(t *testing.T, req []byte) wire.Message {
	t.Helper()
	_, m, err := wire.Unmarshal(req)
	require.NoError(t, err)
	return m
}

// urlResult is what a URLCallback invocation saw.
type urlResult struct {
	url      string
	lifetime uint16
	status   Status
}

func collectURLs(results *[]urlResult) URLCallback {
	return func(url string, lifetime uint16, status Status) Action {
		*results = append(*results, urlResult{url, lifetime, status})
		return Continue
	}
}
