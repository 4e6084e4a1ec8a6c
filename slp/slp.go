// Package slp is a Service Location Protocol (RFC 2608) user agent.
// A Handle owns the session state; discovery results stream through
// caller-supplied callbacks, one invocation per reply, terminated by a
// single StatusLastCall invocation.
package slp

// Action is a discovery callback's disposition: keep delivering
// results or abort the request.
type Action int8

const (
	Continue Action = iota
	Stop
)

// URLCallback receives one discovered service URL per invocation. The
// terminal invocation carries StatusLastCall and an empty URL; its
// return value is ignored.
type URLCallback func(url string, lifetime uint16, status Status) Action

// ListCallback receives a comma-separated list per reply: service
// types for FindServiceTypes, attribute assignments for
// FindAttributes.
type ListCallback func(list string, status Status) Action

// ReportCallback receives the single terminal status of a
// registration, deregistration or attribute deletion.
type ReportCallback func(status Status)

// Registration lifetime bounds, in seconds.
const (
	LifetimeDefault uint16 = 10800
	LifetimeMaximum uint16 = 65535
)

// ServiceTypeDA is the service type directory agents advertise under.
const ServiceTypeDA = "service:directory-agent"
