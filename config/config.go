// Package config holds the net.slp.* property table that governs the
// engine: scopes, directory agent addresses, timing and socket knobs.
// A process-wide default table is read at startup; per-handle copies
// can be built from a YAML file or literal overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Well-known property names.
const (
	PropUseScopes            = "net.slp.useScopes"
	PropDAAddresses          = "net.slp.DAAddresses"
	PropMulticastTimeouts    = "net.slp.multicastTimeouts"
	PropMulticastMaximumWait = "net.slp.multicastMaximumWait"
	PropUnicastMaximumWait   = "net.slp.unicastMaximumWait"
	PropMaxResults           = "net.slp.maxResults"
	PropPort                 = "net.slp.port"
	PropMTU                  = "net.slp.MTU"
	PropInterface            = "net.slp.interface"
	PropLocale               = "net.slp.locale"
	PropMulticastTTL         = "net.slp.multicastTTL"
)

func defaults() map[string]string {
	return map[string]string{
		PropUseScopes:            "DEFAULT",
		PropDAAddresses:          "",
		PropMulticastTimeouts:    "500,750,1000,1500,2000,3000",
		PropMulticastMaximumWait: "15000",
		PropUnicastMaximumWait:   "5000",
		PropMaxResults:           "256",
		PropPort:                 "427",
		PropMTU:                  "1400",
		PropInterface:            "",
		PropLocale:               "en",
		PropMulticastTTL:         "255",
	}
}

// Properties is an immutable-after-construction property table. Set
// deliberately does not mutate it, matching the behavior this engine
// replaces, where runtime property writes were documented no-ops.
type Properties struct {
	mu sync.RWMutex
	m  map[string]string
}

// Default returns a table holding the built-in defaults, with the
// given overrides applied.
func Default(overrides ...map[string]string) *Properties {
	m := defaults()
	for _, o := range overrides {
		for k, v := range o {
			m[k] = v
		}
	}
	return &Properties{m: m}
}

// Load reads a YAML mapping of property names to values and overlays
// it on the defaults.
func Load(path string) (*Properties, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var o map[string]string
	if err := yaml.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return Default(o), nil
}

// Get returns the value of a property, or "" when unknown.
func (p *Properties) Get(name string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.m[name]
}

// Set reports success without changing anything. Runtime property
// mutation is a documented no-op; configure through Default overrides
// or Load instead.
func (p *Properties) Set(name, value string) error {
	return nil
}

func (p *Properties) list(name string) []string {
	var out []string
	for _, s := range strings.Split(p.Get(name), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *Properties) integer(name string, fallback int) int {
	n, err := strconv.Atoi(p.Get(name))
	if err != nil {
		return fallback
	}
	return n
}

// UseScopes returns the configured scope list, never empty.
func (p *Properties) UseScopes() []string {
	scopes := p.list(PropUseScopes)
	if len(scopes) == 0 {
		return []string{"DEFAULT"}
	}
	return scopes
}

// DAAddresses returns statically configured directory agent addresses.
func (p *Properties) DAAddresses() []string {
	return p.list(PropDAAddresses)
}

// MulticastTimeouts returns the per-retransmission wait schedule.
func (p *Properties) MulticastTimeouts() []time.Duration {
	var out []time.Duration
	for _, s := range p.list(PropMulticastTimeouts) {
		ms, err := strconv.Atoi(s)
		if err != nil || ms <= 0 {
			continue
		}
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	if len(out) == 0 {
		out = []time.Duration{3 * time.Second}
	}
	return out
}

// MulticastMaximumWait bounds a whole convergence run.
func (p *Properties) MulticastMaximumWait() time.Duration {
	return time.Duration(p.integer(PropMulticastMaximumWait, 15000)) * time.Millisecond
}

// UnicastMaximumWait bounds a single unicast request.
func (p *Properties) UnicastMaximumWait() time.Duration {
	return time.Duration(p.integer(PropUnicastMaximumWait, 5000)) * time.Millisecond
}

// MaxResults caps results delivered per request; 0 means unbounded.
func (p *Properties) MaxResults() int {
	n := p.integer(PropMaxResults, 256)
	if n < 0 {
		return 0
	}
	return n
}

func (p *Properties) Port() int {
	return p.integer(PropPort, 427)
}

func (p *Properties) MTU() int {
	return p.integer(PropMTU, 1400)
}

// Interface names the network interface for multicast, "" for default.
func (p *Properties) Interface() string {
	return p.Get(PropInterface)
}

func (p *Properties) Locale() string {
	if l := p.Get(PropLocale); l != "" {
		return l
	}
	return "en"
}

func (p *Properties) MulticastTTL() int {
	return p.integer(PropMulticastTTL, 255)
}

var (
	stdMu sync.RWMutex
	std   = Default()
)

// Std returns the process-wide property table.
func Std() *Properties {
	stdMu.RLock()
	defer stdMu.RUnlock()
	return std
}

// SetStd replaces the process-wide table. Meant for program startup,
// before any handle is opened.
func SetStd(p *Properties) {
	stdMu.Lock()
	defer stdMu.Unlock()
	std = p
}
