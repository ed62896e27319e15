package config

import (
	"net/netip"
	"strings"
	"testing"
)

func mustDirectives(t *testing.T, text string) *directives {
	t.Helper()
	d, err := parseReader(strings.NewReader(text))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func TestMergeListenAndBounds(t *testing.T) {
	c := New()
	d := mustDirectives(t, `
# comment
listen 0.0.0.0:4000
nickname min-length 3
nickname max-length 16
message max-length 500
`)
	if err := c.Merge(d); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(c.Listen) != 1 || c.Listen[0] != "0.0.0.0:4000" {
		t.Fatalf("got listen %v", c.Listen)
	}
	if !c.Policy.NicknameAllowed("abc") {
		t.Fatalf("3-char nickname should be allowed")
	}
	if c.Policy.NicknameAllowed("ab") {
		t.Fatalf("2-char nickname should be rejected")
	}
}

func TestMergeRollsBackOnInvalidBounds(t *testing.T) {
	c := New()
	before := c.Policy
	d := mustDirectives(t, "nickname min-length 10\nnickname max-length 5\n")
	if err := c.Merge(d); err == nil {
		t.Fatalf("expected merge to fail for min > max")
	}
	if c.Policy != before {
		t.Fatalf("policy must be unchanged after a rejected merge")
	}
}

func TestIPAllowWinsOverBan(t *testing.T) {
	c := New()
	d := mustDirectives(t, "ip ban 10.0.0.1\nip allow 10.0.0.1\n")
	if err := c.Merge(d); err != nil {
		t.Fatalf("merge: %v", err)
	}
	addr := netip.MustParseAddr("10.0.0.1")
	if !c.Policy.IPAllowed(addr) {
		t.Fatalf("explicit allow should win over ban")
	}
}

func TestIPBanRangeNormalizesOrder(t *testing.T) {
	c := New()
	d := mustDirectives(t, "ip ban-range 10.0.0.10 10.0.0.1\n")
	if err := c.Merge(d); err != nil {
		t.Fatalf("merge: %v", err)
	}
	mid := netip.MustParseAddr("10.0.0.5")
	if c.Policy.IPAllowed(mid) {
		t.Fatalf("address inside reversed range should be banned")
	}
	outside := netip.MustParseAddr("10.0.0.20")
	if !c.Policy.IPAllowed(outside) {
		t.Fatalf("address outside range should be allowed")
	}
}

func TestNicknameBanRegex(t *testing.T) {
	c := New()
	d := mustDirectives(t, "nickname ban ^root$\n")
	if err := c.Merge(d); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if c.Policy.NicknameAllowed("root") {
		t.Fatalf("root should be banned")
	}
	if !c.Policy.NicknameAllowed("rooted") {
		t.Fatalf("rooted should not match ^root$")
	}
}

func TestNicknameRejectsNonPrintableBytes(t *testing.T) {
	c := New()
	for _, nick := range []string{"a\x00b", "a\x7fb", "ok\n"} {
		if c.Policy.NicknameAllowed(nick) {
			t.Fatalf("NicknameAllowed(%q): expected false for non-printable byte", nick)
		}
	}
	if !c.Policy.NicknameAllowed("plain ascii!") {
		t.Fatalf("printable nickname should be allowed")
	}
}

func TestMergeUnionsCollectionsAcrossFiles(t *testing.T) {
	c := New()
	d1 := mustDirectives(t, "ip ban 10.0.0.1\n")
	d2 := mustDirectives(t, "ip ban 10.0.0.2\n")
	if err := c.Merge(d1); err != nil {
		t.Fatalf("merge1: %v", err)
	}
	if err := c.Merge(d2); err != nil {
		t.Fatalf("merge2: %v", err)
	}
	if c.Policy.IPAllowed(netip.MustParseAddr("10.0.0.1")) {
		t.Fatalf("10.0.0.1 should still be banned after second merge")
	}
	if c.Policy.IPAllowed(netip.MustParseAddr("10.0.0.2")) {
		t.Fatalf("10.0.0.2 should be banned")
	}
}

func TestUnrecognizedCommandFails(t *testing.T) {
	_, err := parseReader(strings.NewReader("frobnicate yes\n"))
	if err == nil {
		t.Fatalf("expected parse error for unrecognized command")
	}
}
