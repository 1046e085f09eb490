// Package eventstream decodes the upstream's binary-framed
// "application/vnd.amazon.eventstream" response body into a sequence of
// JSON payloads.
//
// Frame layout: a 12-byte prelude (total_length u32 BE, headers_length u32
// BE, prelude_crc u32 — unchecked), headers_length bytes of headers
// (unparsed; the gateway identifies event kind from the JSON payload
// shape, not the header), a JSON payload, and a trailing message_crc (u32,
// unchecked).
package eventstream

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	log "github.com/sirupsen/logrus"
)

const preludeSize = 8 // total_length + headers_length
const crcSize = 4

// Decoder reads AWS Event Stream frames from an underlying reader and
// yields each frame's JSON payload in order.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r for frame-by-frame decoding.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the JSON payload of the next frame, or io.EOF when the
// stream is exhausted cleanly. Whitespace-only gaps between frames are
// skipped. A short, non-empty tail at EOF (fewer bytes than a prelude) is
// logged as a warning and treated as end of stream, not an error.
func (d *Decoder) Next() ([]byte, error) {
	if err := d.skipWhitespace(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	prelude := make([]byte, preludeSize)
	if _, err := io.ReadFull(d.r, prelude); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			log.Warn("eventstream: partial trailing data at EOF, discarding")
			return nil, io.EOF
		}
		return nil, err
	}

	totalLength := binary.BigEndian.Uint32(prelude[0:4])
	headersLength := binary.BigEndian.Uint32(prelude[4:8])

	if _, err := io.CopyN(io.Discard, d.r, crcSize); err != nil {
		return nil, unexpectedEOFAsWarning(err)
	}

	if headersLength > 0 {
		if _, err := io.CopyN(io.Discard, d.r, int64(headersLength)); err != nil {
			return nil, unexpectedEOFAsWarning(err)
		}
	}

	payloadLength := int64(totalLength) - int64(preludeSize) - crcSize - int64(headersLength) - crcSize
	if payloadLength < 0 {
		return nil, errors.New("eventstream: malformed frame, negative payload length")
	}

	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(d.r, payload); err != nil {
			return nil, unexpectedEOFAsWarning(err)
		}
	}

	if _, err := io.CopyN(io.Discard, d.r, crcSize); err != nil {
		return nil, unexpectedEOFAsWarning(err)
	}

	return payload, nil
}

func unexpectedEOFAsWarning(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		log.Warn("eventstream: partial trailing data at EOF, discarding")
		return io.EOF
	}
	return err
}

// skipWhitespace consumes any run of ASCII whitespace bytes sitting
// between frames, returning io.EOF if the stream ends in the process.
func (d *Decoder) skipWhitespace() error {
	for {
		b, err := d.r.Peek(1)
		if err != nil {
			return err
		}
		if !isSpace(b[0]) {
			return nil
		}
		if _, err := d.r.Discard(1); err != nil {
			return err
		}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// DecodeAll reads every frame from r and returns the JSON payloads in
// order. Intended for non-streaming (buffered) response handling.
func DecodeAll(r io.Reader) ([][]byte, error) {
	dec := NewDecoder(r)
	var payloads [][]byte
	for {
		p, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return payloads, nil
			}
			return payloads, err
		}
		payloads = append(payloads, p)
	}
}

// EncodeFrame builds a single AWS Event Stream frame carrying payload,
// with no headers. Used by tests to construct synthetic upstream
// responses.
func EncodeFrame(payload []byte) []byte {
	headersLength := uint32(0)
	totalLength := uint32(preludeSize + crcSize + len(payload) + crcSize)

	var buf bytes.Buffer
	prelude := make([]byte, preludeSize)
	binary.BigEndian.PutUint32(prelude[0:4], totalLength)
	binary.BigEndian.PutUint32(prelude[4:8], headersLength)
	buf.Write(prelude)
	buf.Write([]byte{0, 0, 0, 0}) // prelude_crc, unchecked
	buf.Write(payload)
	buf.Write([]byte{0, 0, 0, 0}) // message_crc, unchecked
	return buf.Bytes()
}
