package config

import (
	"fmt"
	"net/netip"
	"regexp"
)

// Config is the control plane's view of a loaded configuration: the
// listen addresses plus the AdmissionPolicy built from them.
type Config struct {
	Listen []string
	Policy *Policy
}

// New returns a Config with spec's default bounds and an empty
// listen/policy set, ready for directives to be merged in.
func New() *Config {
	return &Config{Policy: defaultPolicy()}
}

// Load builds a Config from one or more files, applied in order, each
// through Merge's "rollback-on-error" semantics. Load stops at the
// first file that fails to parse or merge and returns that error with
// a nil Config.
func Load(paths ...string) (*Config, error) {
	c := New()
	for _, path := range paths {
		d, err := ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := c.Merge(d); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return c, nil
}

// Merge applies directives onto c: scalar fields (length bounds) are
// overwritten, collection fields (allow/deny sets, deny-range sets,
// deny-regex lists) union in. The whole merge is computed against a
// scratch copy and validated before being committed, so a failure
// leaves c completely unchanged.
func (c *Config) Merge(d *directives) error {
	next := c.Policy.clone()

	for _, a := range d.ipAllow {
		next.ipAllow[a] = struct{}{}
	}
	for _, a := range d.ipDeny {
		next.ipDeny[a] = struct{}{}
	}
	next.ipBans = append(next.ipBans, d.ipBans...)

	for _, n := range d.nickAllow {
		next.nickAllow[n] = struct{}{}
	}
	for _, src := range d.nickDeny {
		re, err := regexp.Compile(src)
		if err != nil {
			return err
		}
		next.nickDeny = append(next.nickDeny, re)
	}
	if d.nickMin != nil {
		next.nickMin = *d.nickMin
	}
	if d.nickMax != nil {
		next.nickMax = *d.nickMax
	}

	for _, src := range d.msgDeny {
		re, err := regexp.Compile(src)
		if err != nil {
			return err
		}
		next.msgDeny = append(next.msgDeny, re)
	}
	if d.msgMin != nil {
		next.msgMin = *d.msgMin
	}
	if d.msgMax != nil {
		next.msgMax = *d.msgMax
	}

	if next.nickMin > next.nickMax {
		return fmt.Errorf("nickname min-length %d exceeds max-length %d", next.nickMin, next.nickMax)
	}
	if next.msgMin > next.msgMax {
		return fmt.Errorf("message min-length %d exceeds max-length %d", next.msgMin, next.msgMax)
	}

	c.Listen = append(c.Listen, d.listen...)
	c.Policy = next
	return nil
}

func (p *Policy) clone() *Policy {
	next := &Policy{
		ipAllow:   make(map[netip.Addr]struct{}, len(p.ipAllow)),
		ipDeny:    make(map[netip.Addr]struct{}, len(p.ipDeny)),
		ipBans:    append([]ipRange(nil), p.ipBans...),
		nickAllow: make(map[string]struct{}, len(p.nickAllow)),
		nickDeny:  append([]*regexp.Regexp(nil), p.nickDeny...),
		nickMin:   p.nickMin,
		nickMax:   p.nickMax,
		msgDeny:   append([]*regexp.Regexp(nil), p.msgDeny...),
		msgMin:    p.msgMin,
		msgMax:    p.msgMax,
	}
	for k := range p.ipAllow {
		next.ipAllow[k] = struct{}{}
	}
	for k := range p.ipDeny {
		next.ipDeny[k] = struct{}{}
	}
	for k := range p.nickAllow {
		next.nickAllow[k] = struct{}{}
	}
	return next
}
