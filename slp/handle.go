package slp

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"

	"github.com/srvloc/srvloc/config"
	"github.com/srvloc/srvloc/log"
	"github.com/srvloc/srvloc/safemap"
	"github.com/srvloc/srvloc/transport"
)

// Transporter moves PDUs for a handle. transport.Transport is the
// production implementation; tests inject their own.
type Transporter interface {
	Converge(ctx context.Context, build func(prev []net.IP) []byte, deliver func(src net.Addr, pkt []byte) bool) error
	Request(ctx context.Context, addr string, req []byte) ([]byte, error)
	Close() error
}

type Opts struct {
	Props     *config.Properties
	Transport Transporter
}

type OptFunc func(*Opts)

// WithProperties overrides the process-wide property table for one
// handle.
func WithProperties(p *config.Properties) OptFunc {
	return func(o *Opts) {
		o.Props = p
	}
}

// WithTransport injects a transport, bypassing socket setup.
func WithTransport(tr Transporter) OptFunc {
	return func(o *Opts) {
		o.Transport = tr
	}
}

// Handle is one SLP session: language tag, sync/async mode, transport
// sockets, the in-flight operation and the tables fed by it. A handle
// admits one outstanding operation at a time; a second concurrent call
// fails with StatusHandleInUse.
type Handle struct {
	lang  string
	async bool
	props *config.Properties
	tr    Transporter
	disp  *dispatcher

	regs *safemap.SafeMap[string, *Registration]
	das  *safemap.SafeMap[string, *daEntry]

	xid      uint32
	busy     int32
	closed   int32
	daProbed int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open creates a handle. An empty language tag takes the configured
// locale; a malformed one fails with StatusLanguageNotSupported.
// Transport setup failures fail with StatusNetworkInitFailed.
func Open(lang string, async bool, opts ...OptFunc) (*Handle, error) {
	o := Opts{Props: config.Std()}
	for _, opt := range opts {
		opt(&o)
	}
	if lang == "" {
		lang = o.Props.Locale()
	}
	if !validLangTag(lang) {
		return nil, statusErr(StatusLanguageNotSupported, "bad language tag %q", lang)
	}
	tr := o.Transport
	if tr == nil {
		t, err := transport.New(transport.FromProperties(o.Props))
		if err != nil {
			return nil, statusErr(StatusNetworkInitFailed, "%v", err)
		}
		tr = t
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		lang:   lang,
		async:  async,
		props:  o.Props,
		tr:     tr,
		regs:   safemap.New[string, *Registration](),
		das:    safemap.New[string, *daEntry](),
		xid:    rand.Uint32(),
		ctx:    ctx,
		cancel: cancel,
	}
	if async {
		h.disp = newDispatcher()
	}
	log.Debugw("handle opened", log.M{"lang": lang, "async": async})
	return h, nil
}

// Close invalidates the handle: the in-flight operation is canceled
// and waited for, tables are emptied, sockets are released. Any later
// operation, including a second Close, fails with StatusTypeError.
// Do not call Close from inside a callback on an async handle: Close
// waits for the operation delivering that callback, which in turn
// waits for the callback to return.
func (h *Handle) Close() error {
	if !atomic.CompareAndSwapInt32(&h.closed, 0, 1) {
		return statusErr(StatusTypeError, "invalid handle: already closed")
	}
	h.cancel()
	h.wg.Wait()
	h.regs.Clear()
	h.das.Clear()
	log.Debugw("handle closed", log.M{"lang": h.lang})
	return h.tr.Close()
}

func (h *Handle) Lang() string { return h.lang }
func (h *Handle) Async() bool  { return h.async }

func (h *Handle) isClosed() bool {
	return atomic.LoadInt32(&h.closed) == 1
}

// begin claims the handle for one operation.
func (h *Handle) begin() error {
	if h.isClosed() {
		return statusErr(StatusTypeError, "invalid handle: closed")
	}
	if !atomic.CompareAndSwapInt32(&h.busy, 0, 1) {
		return statusErr(StatusHandleInUse, "an operation is already outstanding")
	}
	return nil
}

func (h *Handle) finish() {
	atomic.StoreInt32(&h.busy, 0)
}

// run executes a claimed operation: inline in sync mode, on its own
// goroutine in async mode.
func (h *Handle) run(op func(ctx context.Context)) {
	if h.async {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			defer h.finish()
			op(h.ctx)
		}()
		return
	}
	defer h.finish()
	op(h.ctx)
}

// nextXID hands out request identifiers, skipping zero.
func (h *Handle) nextXID() uint16 {
	for {
		if v := uint16(atomic.AddUint32(&h.xid, 1)); v != 0 {
			return v
		}
	}
}

// invoke funnels a callback through the dispatcher in async mode and
// calls it inline in sync mode. Panics count as Stop either way.
func (h *Handle) invoke(fn func() Action) Action {
	if h.disp != nil {
		return h.disp.invoke(fn)
	}
	return safeCall(fn)
}

func (h *Handle) scopesOrDefault(scopes string) string {
	if scopes != "" {
		return scopes
	}
	return joinList(h.props.UseScopes())
}

func validLangTag(lang string) bool {
	for i := 0; i < len(lang); i++ {
		c := lang[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return len(lang) > 0
}

// GetProperty reads a named net.slp property from the process-wide
// table; unknown names yield "".
func GetProperty(name string) string {
	return config.Std().Get(name)
}

// SetProperty accepts and discards a property write. The library this
// engine replaces documents runtime property mutation as a no-op, and
// that contract is preserved; configure via config.SetStd before
// opening handles.
func SetProperty(name, value string) {
	_ = config.Std().Set(name, value)
}
