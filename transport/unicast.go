package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/srvloc/srvloc/log"
)

const unicastMaxRetries = 2

// Request sends one PDU to a directory agent over TCP and reads the
// single PDU it answers with, retrying transient failures with
// exponential backoff.
func (t *Transport) Request(ctx context.Context, addr string, req []byte) ([]byte, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}
	var resp []byte
	attempt := 0
	op := func() error {
		if attempt > 0 {
			unicastRetriesTotal.Inc()
			log.Debugw("retrying unicast request", log.M{"addr": addr, "attempt": attempt})
		}
		attempt++
		var err error
		resp, err = t.roundTrip(ctx, addr, req)
		return err
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), unicastMaxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *Transport) roundTrip(ctx context.Context, addr string, req []byte) ([]byte, error) {
	d := net.Dialer{Timeout: t.cfg.UnicastWait}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(t.cfg.UnicastWait)); err != nil {
		return nil, err
	}
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}
	return readPDU(conn)
}

// readPDU reads exactly one SLP message from a stream, using the
// 24-bit length field in its header.
func readPDU(r io.Reader) ([]byte, error) {
	head := make([]byte, 5)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, err
	}
	length := int(head[2])<<16 | int(head[3])<<8 | int(head[4])
	if length < 14 {
		return nil, fmt.Errorf("transport: bad pdu length %d", length)
	}
	pdu := make([]byte, length)
	copy(pdu, head)
	if _, err := io.ReadFull(r, pdu[5:]); err != nil {
		return nil, err
	}
	return pdu, nil
}
