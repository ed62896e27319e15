package codec

import (
	"encoding/binary"
	"io"

	"mdchat/internal/chaterr"
)

// MaxFrameLen is the largest encrypted payload a frame may carry,
// bounded by the 4-byte big-endian length prefix.
const MaxFrameLen = ^uint32(0)

// Cipher is the pluggable encryption capability a Codec is built
// around. Neither direction is required to be authenticated; callers
// that need authentication supply a Cipher that provides it.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// IdentityCipher is a plaintext passthrough, the default when no
// Cipher is configured.
type IdentityCipher struct{}

func (IdentityCipher) Encrypt(b []byte) ([]byte, error) { return b, nil }
func (IdentityCipher) Decrypt(b []byte) ([]byte, error) { return b, nil }

var errFrameTooLarge = jsonErr("encrypted payload exceeds max frame length")

// WriteFrame encodes, encrypts, and length-prefixes cmd onto w in one
// shot. Callers on the Session path are expected to hold the
// Session's exclusive writer lock across this call.
func WriteFrame(w io.Writer, cipher Cipher, cmd Command) error {
	if cipher == nil {
		cipher = IdentityCipher{}
	}
	payload, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	ciphertext, err := cipher.Encrypt(payload)
	if err != nil {
		return chaterr.Wrap(chaterr.ErrIO, err)
	}
	if uint64(len(ciphertext)) > uint64(MaxFrameLen) {
		return chaterr.Wrap(chaterr.ErrInvalidInput, errFrameTooLarge)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return chaterr.Wrap(chaterr.ErrIO, err)
	}
	if len(ciphertext) == 0 {
		return nil
	}
	if _, err := w.Write(ciphertext); err != nil {
		return chaterr.Wrap(chaterr.ErrIO, err)
	}
	return nil
}

// ReadFrame reads one frame from r and decodes it. A clean
// end-of-stream at a frame boundary (zero bytes read) returns io.EOF,
// which callers must treat as an orderly close, not a failure. A
// short read mid-header or mid-payload returns chaterr.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, cipher Cipher) (Command, error) {
	if cipher == nil {
		cipher = IdentityCipher{}
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, chaterr.Wrap(chaterr.ErrUnexpectedEOF, err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	ciphertext := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, ciphertext); err != nil {
			return nil, chaterr.Wrap(chaterr.ErrUnexpectedEOF, err)
		}
	}
	payload, err := cipher.Decrypt(ciphertext)
	if err != nil {
		return nil, chaterr.Wrap(chaterr.ErrInvalidData, err)
	}
	return DecodeCommand(payload)
}
