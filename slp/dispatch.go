package slp

import (
	"bytes"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/DataDog/gostackparse"

	"github.com/srvloc/srvloc/log"
	"github.com/srvloc/srvloc/ringbuffer"
)

const (
	dispIdle int32 = iota
	dispRunning
)

type callbackRun struct {
	fn   func() Action
	resp chan Action
}

// dispatcher serializes callback invocations for an async handle on a
// background goroutine, scheduled only while work is queued. The
// submitting request goroutine blocks on each Action so an early Stop
// takes effect before the next delivery.
type dispatcher struct {
	rb     *ringbuffer.RingBuffer[callbackRun]
	status int32
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		rb: ringbuffer.New[callbackRun](64),
	}
}

func (d *dispatcher) invoke(fn func() Action) Action {
	run := callbackRun{fn: fn, resp: make(chan Action, 1)}
	d.rb.Push(run)
	d.schedule()
	return <-run.resp
}

func (d *dispatcher) schedule() {
	if atomic.CompareAndSwapInt32(&d.status, dispIdle, dispRunning) {
		go d.process()
	}
}

func (d *dispatcher) process() {
	for {
		run, ok := d.rb.Pop()
		if !ok {
			break
		}
		run.resp <- safeCall(run.fn)
	}
	atomic.StoreInt32(&d.status, dispIdle)
	// a push may have raced the drain above
	if d.rb.Len() > 0 {
		d.schedule()
	}
}

// safeCall runs a callback, converting a panic into Stop so a broken
// callback aborts its own request instead of the process.
func safeCall(fn func() Action) (act Action) {
	defer func() {
		if v := recover(); v != nil {
			log.Errorw("callback panicked", log.M{
				"panic":      v,
				"stacktrace": string(cleanTrace(debug.Stack())),
			})
			act = Stop
		}
	}()
	return fn()
}

// cleanTrace strips the recover plumbing frames from a callback panic
// stack before it is logged.
func cleanTrace(stack []byte) []byte {
	goros, err := gostackparse.Parse(bytes.NewReader(stack))
	if err != nil || len(goros) != 1 {
		return stack
	}
	goro := goros[0]
	if len(goro.Stack) > 4 {
		goro.Stack = goro.Stack[4:]
	}
	buf := bytes.NewBuffer(nil)
	fmt.Fprintf(buf, "goroutine %d [%s]\n", goro.ID, goro.State)
	for _, frame := range goro.Stack {
		fmt.Fprintf(buf, "%s\n\t%s:%d\n", frame.Func, frame.File, frame.Line)
	}
	return buf.Bytes()
}
