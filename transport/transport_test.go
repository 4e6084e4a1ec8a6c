package transport

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srvloc/srvloc/wire"
)

// startUDPResponder answers every received datagram with the packets
// produced by reply.
func startUDPResponder(t *testing.T, reply func(req []byte) [][]byte) net.Addr {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })
	go func() {
		buf := make([]byte, 2048)
		for {
			n, src, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			for _, out := range reply(append([]byte(nil), buf[:n]...)) {
				_, _ = pc.WriteTo(out, src)
			}
		}
	}()
	return pc.LocalAddr()
}

func testConfig(dest string) Config {
	return Config{
		Destination: dest,
		Timeouts:    []time.Duration{100 * time.Millisecond, 100 * time.Millisecond},
		MaxWait:     time.Second,
		UnicastWait: time.Second,
	}
}

func TestConvergeDeliversReplies(t *testing.T) {
	addr := startUDPResponder(t, func([]byte) [][]byte {
		return [][]byte{[]byte("one"), []byte("two")}
	})
	tr, err := New(testConfig(addr.String()))
	require.NoError(t, err)

	var got []string
	err = tr.Converge(context.Background(),
		func(prev []net.IP) []byte { return []byte("rqst") },
		func(src net.Addr, pkt []byte) bool {
			got = append(got, string(pkt))
			return true
		})
	require.NoError(t, err)
	// two transmissions, two replies each
	assert.Equal(t, []string{"one", "two", "one", "two"}, got)
}

func TestConvergeRebuildsWithResponders(t *testing.T) {
	addr := startUDPResponder(t, func([]byte) [][]byte {
		return [][]byte{[]byte("pong")}
	})
	tr, err := New(testConfig(addr.String()))
	require.NoError(t, err)

	var prevLens []int
	err = tr.Converge(context.Background(),
		func(prev []net.IP) []byte {
			prevLens = append(prevLens, len(prev))
			return []byte("ping")
		},
		func(net.Addr, []byte) bool { return true })
	require.NoError(t, err)
	require.Len(t, prevLens, 2)
	assert.Equal(t, 0, prevLens[0])
	// the second transmission knows about the responder
	assert.Equal(t, 1, prevLens[1])
}

func TestConvergeStopsOnDeliverFalse(t *testing.T) {
	addr := startUDPResponder(t, func([]byte) [][]byte {
		return [][]byte{[]byte("a"), []byte("b")}
	})
	tr, err := New(testConfig(addr.String()))
	require.NoError(t, err)

	var calls int32
	start := time.Now()
	err = tr.Converge(context.Background(),
		func([]net.IP) []byte { return []byte("rqst") },
		func(net.Addr, []byte) bool {
			atomic.AddInt32(&calls, 1)
			return false
		})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Less(t, time.Since(start), time.Second)
}

func TestConvergeContextCancel(t *testing.T) {
	tr, err := New(Config{
		Destination: "127.0.0.1:9", // discard port, no replies
		Timeouts:    []time.Duration{5 * time.Second},
		MaxWait:     10 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err = tr.Converge(ctx,
		func([]net.IP) []byte { return []byte("rqst") },
		func(net.Addr, []byte) bool { return true })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConvergeClosed(t *testing.T) {
	tr, err := New(testConfig("127.0.0.1:9"))
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	err = tr.Converge(context.Background(),
		func([]net.IP) []byte { return nil },
		func(net.Addr, []byte) bool { return true })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRequestRoundTrip(t *testing.T) {
	ack, err := wire.Marshal(wire.Header{XID: 7, Lang: "en"}, &wire.SrvAck{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := readPDU(conn); err != nil {
			return
		}
		_, _ = conn.Write(ack)
	}()

	tr, err := New(testConfig("127.0.0.1:9"))
	require.NoError(t, err)

	req, err := wire.Marshal(wire.Header{XID: 7, Lang: "en"}, &wire.SrvReg{
		Entry:       wire.URLEntry{Lifetime: 60, URL: "service:x://h"},
		ServiceType: "service:x",
		Scopes:      "DEFAULT",
	})
	require.NoError(t, err)

	resp, err := tr.Request(context.Background(), ln.Addr().String(), req)
	require.NoError(t, err)
	assert.Equal(t, ack, resp)
}

func TestRequestUnreachable(t *testing.T) {
	tr, err := New(Config{
		Destination: "127.0.0.1:9",
		Timeouts:    []time.Duration{100 * time.Millisecond},
		MaxWait:     time.Second,
		UnicastWait: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = tr.Request(ctx, "127.0.0.1:1", []byte("x"))
	assert.Error(t, err)
}
