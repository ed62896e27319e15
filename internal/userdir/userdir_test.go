package userdir

import (
	"errors"
	"testing"

	"mdchat/internal/chaterr"
)

type plainHasher struct{}

func (plainHasher) Hash(password []byte) ([]byte, error) { return append([]byte(nil), password...), nil }
func (plainHasher) Verify(password, hash []byte) bool {
	return string(password) == string(hash)
}

func TestAddAndVerify(t *testing.T) {
	d := New(plainHasher{})
	if err := d.Add("alice", []byte("pw")); err != nil {
		t.Fatalf("add: %v", err)
	}
	ok, err := d.Verify("alice", []byte("pw"))
	if err != nil || !ok {
		t.Fatalf("verify good password: ok=%v err=%v", ok, err)
	}
	ok, err = d.Verify("alice", []byte("wrong"))
	if err != nil || ok {
		t.Fatalf("verify bad password should fail: ok=%v err=%v", ok, err)
	}
}

func TestVerifyUnknownUserIndistinguishable(t *testing.T) {
	d := New(plainHasher{})
	okUnknown, errUnknown := d.Verify("ghost", []byte("x"))
	if err := d.Add("alice", []byte("pw")); err != nil {
		t.Fatalf("add: %v", err)
	}
	okWrong, errWrong := d.Verify("alice", []byte("nope"))
	if okUnknown != okWrong || errUnknown != errWrong {
		t.Fatalf("unknown user and wrong password must be indistinguishable")
	}
	if okUnknown {
		t.Fatalf("expected false for unknown user")
	}
}

func TestAddDuplicateFails(t *testing.T) {
	d := New(plainHasher{})
	if err := d.Add("alice", []byte("pw")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := d.Add("alice", []byte("pw2")); err == nil {
		t.Fatalf("expected duplicate add to fail")
	}
}

func TestAddRejectsNonPrintableNickname(t *testing.T) {
	d := New(plainHasher{})
	for _, nick := range []string{"a\x00b", "a\x7fb", "héllo", "ok\n"} {
		if err := d.Add(nick, []byte("pw")); !errors.Is(err, chaterr.ErrInvalidInput) {
			t.Fatalf("Add(%q): expected ErrInvalidInput, got %v", nick, err)
		}
	}
	if err := d.Add("plain ascii!", []byte("pw")); err != nil {
		t.Fatalf("printable nickname should be accepted: %v", err)
	}
}

func TestSetLastDeliveredMonotone(t *testing.T) {
	d := New(plainHasher{})
	if err := d.Add("alice", []byte("pw")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, ok := d.LastDelivered("alice"); ok {
		t.Fatalf("expected no delivery recorded yet")
	}
	if err := d.SetLastDelivered("alice", 5); err != nil {
		t.Fatalf("set 5: %v", err)
	}
	if err := d.SetLastDelivered("alice", 3); err != nil {
		t.Fatalf("set 3 (should be a silent no-op, not an error): %v", err)
	}
	id, ok := d.LastDelivered("alice")
	if !ok || id != 5 {
		t.Fatalf("cursor regressed: got %d want 5", id)
	}
	if err := d.SetLastDelivered("alice", 9); err != nil {
		t.Fatalf("set 9: %v", err)
	}
	id, _ = d.LastDelivered("alice")
	if id != 9 {
		t.Fatalf("got %d want 9", id)
	}
}
