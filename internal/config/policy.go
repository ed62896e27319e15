// Package config implements AdmissionPolicy (IP / nickname / message
// admission rules) and the line-oriented configuration file format
// that builds it.
package config

import (
	"net/netip"
	"regexp"
)

// ipRange is an inclusive, family-matched address range, already
// normalized so From <= To.
type ipRange struct {
	From netip.Addr
	To   netip.Addr
}

func newIPRange(a, b netip.Addr) ipRange {
	if a.Is4() != b.Is4() {
		panic("config: ip range endpoints must share an address family")
	}
	if less(b, a) {
		a, b = b, a
	}
	return ipRange{From: a, To: b}
}

func less(a, b netip.Addr) bool {
	return a.Compare(b) < 0
}

func (r ipRange) contains(addr netip.Addr) bool {
	if addr.Is4() != r.From.Is4() {
		return false
	}
	return !less(addr, r.From) && !less(r.To, addr)
}

// Policy is the process-wide AdmissionPolicy singleton. Policy is
// immutable once built by Load/Merge; callers replace it wholesale on
// a config reload rather than mutating in place.
type Policy struct {
	ipAllow map[netip.Addr]struct{}
	ipDeny  map[netip.Addr]struct{}
	ipBans  []ipRange

	nickAllow map[string]struct{}
	nickDeny  []*regexp.Regexp
	nickMin   int
	nickMax   int

	msgDeny []*regexp.Regexp
	msgMin  int
	msgMax  int
}

// defaultPolicy matches spec's bounds of 1..255 for nicknames and
// 1..65535 for message text when a config never sets them.
func defaultPolicy() *Policy {
	return &Policy{
		ipAllow:   map[netip.Addr]struct{}{},
		ipDeny:    map[netip.Addr]struct{}{},
		nickAllow: map[string]struct{}{},
		nickMin:   1,
		nickMax:   255,
		msgMin:    1,
		msgMax:    65535,
	}
}

// IPAllowed reports whether addr may open a connection: an explicit
// allow entry wins outright; otherwise a banned single address or a
// banned inclusive range (matched only against ranges sharing addr's
// family) denies; otherwise allow.
func (p *Policy) IPAllowed(addr netip.Addr) bool {
	if _, ok := p.ipAllow[addr]; ok {
		return true
	}
	if _, ok := p.ipDeny[addr]; ok {
		return false
	}
	for _, r := range p.ipBans {
		if r.contains(addr) {
			return false
		}
	}
	return true
}

// NicknameAllowed reports whether nick may be used: an explicit allow
// entry wins; otherwise a byte outside printable ASCII (0x20-0x7E),
// length outside [min,max], or a match against any banned regex
// denies; otherwise allow.
func (p *Policy) NicknameAllowed(nick string) bool {
	if _, ok := p.nickAllow[nick]; ok {
		return true
	}
	for i := 0; i < len(nick); i++ {
		if b := nick[i]; b < 0x20 || b > 0x7E {
			return false
		}
	}
	if len(nick) < p.nickMin || len(nick) > p.nickMax {
		return false
	}
	for _, re := range p.nickDeny {
		if re.MatchString(nick) {
			return false
		}
	}
	return true
}

// MessageAllowed reports whether text may be broadcast: length outside
// [min,max] or a match against any banned regex denies; otherwise
// allow. Message text has no allow-list override in spec.
func (p *Policy) MessageAllowed(text string) bool {
	if len(text) < p.msgMin || len(text) > p.msgMax {
		return false
	}
	for _, re := range p.msgDeny {
		if re.MatchString(text) {
			return false
		}
	}
	return true
}
