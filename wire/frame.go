// Package wire implements the binary stream output format: length-prefixed
// msgpack frames, one per replication entry, for consumption by other
// programs reading `osm replication stream --output msgpack`.
//
// Each frame is a 4-byte big-endian payload length followed by a msgpack map.
// The map's "type" field discriminates the frame kind.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/osm/replication"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (1 MiB), including length prefix.
	MaxFrameSize = 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Version is the frame format version carried in every frame.
const Version = 1

// Frame type discriminants.
const (
	EntryType = "entry"
	EndType   = "end"
)

// EntryFrame carries one stream entry.
type EntryFrame struct {
	Type      string    `msgpack:"type"`
	Version   int       `msgpack:"v"`
	Feed      string    `msgpack:"feed"`
	Seqno     uint64    `msgpack:"seqno"`
	Timestamp time.Time `msgpack:"timestamp"`
	URL       string    `msgpack:"url"`
}

// Entry converts the frame back into a replication entry.
func (f *EntryFrame) Entry() replication.Entry {
	return replication.Entry{Seqno: f.Seqno, Timestamp: f.Timestamp.UTC(), URL: f.URL}
}

// NewEntryFrame builds the frame for an entry of the named feed.
func NewEntryFrame(feed string, e replication.Entry) *EntryFrame {
	return &EntryFrame{
		Type:      EntryType,
		Version:   Version,
		Feed:      feed,
		Seqno:     e.Seqno,
		Timestamp: e.Timestamp,
		URL:       e.URL,
	}
}

// EndFrame terminates a finite stream. Following streams never write one.
type EndFrame struct {
	Type     string `msgpack:"type"`
	Version  int    `msgpack:"v"`
	Feed     string `msgpack:"feed"`
	Frontier uint64 `msgpack:"frontier"`
	Count    int64  `msgpack:"count"`
}

// NewEndFrame builds the terminating frame of a finite stream.
func NewEndFrame(feed string, frontier uint64, count int64) *EndFrame {
	return &EndFrame{Type: EndType, Version: Version, Feed: feed, Frontier: frontier, Count: count}
}

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot be read further.
// Partial and oversized frames leave the reader out of sync.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameEncoder writes length-prefixed msgpack frames to a stream.
// Each frame is written with a single Write call.
type FrameEncoder struct {
	writer io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WriteFrame marshals v and writes it as one frame.
func (e *FrameEncoder) WriteFrame(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode frame", Err: err}
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	_, err = e.writer.Write(buf)
	return err
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// frameHeader is used to peek at the type field without full decode.
type frameHeader struct {
	Type string `msgpack:"type"`
}

// DecodeFrame decodes a payload into *EntryFrame or *EndFrame.
func DecodeFrame(payload []byte) (any, error) {
	var hdr frameHeader
	if err := msgpack.Unmarshal(payload, &hdr); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}

	var (
		frame any
		name  string
	)
	switch hdr.Type {
	case EntryType:
		frame, name = &EntryFrame{}, "entry"
	case EndType:
		frame, name = &EndFrame{}, "end"
	default:
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown frame type %q", hdr.Type)}
	}
	if err := msgpack.Unmarshal(payload, frame); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode " + name + " frame",
			Err:  err,
		}
	}
	return frame, nil
}
