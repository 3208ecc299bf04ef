package protocol

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

const (
	Magic      = 0x4B56 // "KV"
	Version    = 0x01
	HeaderSize = 8 // 2 (magic) + 1 (version) + 1 (codec) + 4 (length)

	// DefaultMaxFrame bounds payload size when none is configured
	DefaultMaxFrame = 4 << 20
)

var (
	// ErrFrameTooLarge is returned for payloads above the configured limit
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrBadMagic is returned when a frame header does not start with Magic
	ErrBadMagic = errors.New("invalid frame magic")
)

// WriteFrame writes [2B magic][1B version][1B codec][4B length][payload] in
// a single Write call
func WriteFrame(w io.Writer, codec byte, payload []byte, maxPayload int) error {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxFrame
	}
	if len(payload) > maxPayload {
		return errors.Wrapf(ErrFrameTooLarge, "%d > %d", len(payload), maxPayload)
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	buf[2] = Version
	buf[3] = codec
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame from r, validating magic, version and length.
// A clean EOF before any header byte is returned as io.EOF unwrapped so
// callers can tell an orderly close from a truncated frame.
func ReadFrame(r io.Reader, maxPayload int) (codec byte, payload []byte, err error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxFrame
	}

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, errors.Wrap(err, "reading frame header")
	}

	if magic := binary.BigEndian.Uint16(hdr[0:2]); magic != Magic {
		return 0, nil, errors.Wrapf(ErrBadMagic, "0x%04X", magic)
	}
	if hdr[2] != Version {
		return 0, nil, errors.Newf("unsupported protocol version: %d", hdr[2])
	}

	length := binary.BigEndian.Uint32(hdr[4:8])
	if uint64(length) > uint64(maxPayload) {
		return 0, nil, errors.Wrapf(ErrFrameTooLarge, "%d > %d", length, maxPayload)
	}

	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, errors.Wrap(err, "reading payload")
	}
	return hdr[3], payload, nil
}
