package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// ControlByte opens every request frame.
	ControlByte byte = 0x00
	// MaxPayloadLen is the largest payload a single length byte can describe.
	MaxPayloadLen = 255
	// ValidateSuffix asks the server for a synchronous acknowledgment.
	ValidateSuffix = " ?"
	// HeaderLen is control byte + length byte.
	HeaderLen = 2
)

var (
	ErrPayloadTooLarge  = errors.New("frame: payload exceeds one-byte length")
	ErrEmptyCommand     = errors.New("frame: empty command")
	ErrReservedSuffix   = errors.New("frame: command ends with reserved validate suffix")
	ErrInvalidCommand   = errors.New("frame: command contains NUL byte")
	ErrShortFrame       = errors.New("frame: short frame")
	ErrBadControlByte   = errors.New("frame: unexpected control byte")
	ErrLengthMismatch   = errors.New("frame: length byte does not match payload")
	ErrMalformedPayload = errors.New("frame: malformed payload")
)

// EncodingError reports a request that cannot be represented on the wire.
type EncodingError struct {
	Command    string
	PayloadLen int
	Err        error
}

func (e *EncodingError) Error() string {
	if e.PayloadLen > 0 {
		return fmt.Sprintf("%v: payload_len=%d max=%d", e.Err, e.PayloadLen, MaxPayloadLen)
	}
	return e.Err.Error()
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// Request is one lobby request before framing.
type Request struct {
	Sequence uint32
	Command  string
	Validate bool
}

// Payload renders the bytes that follow the length byte.
func (r Request) Payload() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(r.Sequence), 10))
	b.WriteByte(' ')
	b.WriteString(r.Command)
	if r.Validate {
		b.WriteString(ValidateSuffix)
	}
	return b.String()
}

// Verb returns the first word of the command, e.g. LOGIN.
func (r Request) Verb() string {
	verb, _, _ := strings.Cut(r.Command, " ")
	return verb
}

func (r Request) check() error {
	if strings.TrimSpace(r.Command) == "" {
		return &EncodingError{Command: r.Command, Err: ErrEmptyCommand}
	}
	if strings.IndexByte(r.Command, 0) >= 0 {
		return &EncodingError{Command: r.Command, Err: ErrInvalidCommand}
	}
	if strings.HasSuffix(r.Command, ValidateSuffix) {
		return &EncodingError{Command: r.Command, Err: ErrReservedSuffix}
	}
	return nil
}

// Encode frames a request as <control><len><seq> <command>[ ?].
// The length byte always counts the full payload, suffix included.
func Encode(r Request) ([]byte, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	payload := r.Payload()
	if len(payload) > MaxPayloadLen {
		return nil, &EncodingError{Command: r.Command, PayloadLen: len(payload), Err: ErrPayloadTooLarge}
	}
	out := make([]byte, 0, HeaderLen+len(payload))
	out = append(out, ControlByte, byte(len(payload)))
	out = append(out, payload...)
	return out, nil
}

// EncodeCommand is Encode for callers holding loose values.
func EncodeCommand(seq uint32, command string, validate bool) ([]byte, error) {
	return Encode(Request{Sequence: seq, Command: command, Validate: validate})
}

// Decode parses one complete frame. Trailing bytes are a length mismatch.
func Decode(b []byte) (Request, error) {
	if len(b) < HeaderLen {
		return Request{}, ErrShortFrame
	}
	if b[0] != ControlByte {
		return Request{}, fmt.Errorf("%w: 0x%02x", ErrBadControlByte, b[0])
	}
	n := int(b[1])
	if len(b)-HeaderLen != n {
		return Request{}, fmt.Errorf("%w: declared=%d actual=%d", ErrLengthMismatch, n, len(b)-HeaderLen)
	}
	return parsePayload(b[HeaderLen:])
}

// ReadFrame reads exactly one frame from a stream.
func ReadFrame(r io.Reader) (Request, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Request{}, ErrShortFrame
		}
		return Request{}, err
	}
	if hdr[0] != ControlByte {
		return Request{}, fmt.Errorf("%w: 0x%02x", ErrBadControlByte, hdr[0])
	}
	payload := make([]byte, int(hdr[1]))
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Request{}, ErrShortFrame
		}
		return Request{}, err
	}
	return parsePayload(payload)
}

// WriteFrame encodes and writes one request.
func WriteFrame(w io.Writer, r Request) error {
	b, err := Encode(r)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func parsePayload(p []byte) (Request, error) {
	seqRaw, rest, ok := bytes.Cut(p, []byte{' '})
	if !ok || len(seqRaw) == 0 {
		return Request{}, fmt.Errorf("%w: missing sequence separator", ErrMalformedPayload)
	}
	seq, err := strconv.ParseUint(string(seqRaw), 10, 32)
	if err != nil {
		return Request{}, fmt.Errorf("%w: sequence %q", ErrMalformedPayload, seqRaw)
	}
	req := Request{Sequence: uint32(seq)}
	cmd := string(rest)
	if strings.HasSuffix(cmd, ValidateSuffix) {
		req.Validate = true
		cmd = strings.TrimSuffix(cmd, ValidateSuffix)
	}
	if strings.TrimSpace(cmd) == "" {
		return Request{}, fmt.Errorf("%w: empty command", ErrMalformedPayload)
	}
	req.Command = cmd
	return req, nil
}
