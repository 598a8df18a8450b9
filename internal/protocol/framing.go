// Package protocol implements the wire conventions of the vending
// machine service: whitespace-tokenized text commands exchanged one
// complete message per read/write, plus the two-phase exact-byte-count
// transfer used for chart payloads that exceed the message unit.
package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
)

const (
	// BufSize is the message unit: one command or response fits in a
	// single read of this size.
	BufSize = 1024

	// ReadyToken is the client acknowledgement in the blob handshake.
	ReadyToken = "READY"

	// NoChart is sent in place of a size header when there is no payload.
	NoChart = "NO_CHART"

	sizePrefix = "CHART_SIZE:"
)

var (
	ErrUnexpectedAck  = errors.New("unexpected ready acknowledgement")
	ErrBadSizeHeader  = errors.New("malformed size header")
	ErrOversizedWrite = errors.New("message exceeds frame unit")
)

// Conn frames messages over a byte stream. Not safe for concurrent use;
// each session owns exactly one Conn.
type Conn struct {
	conn net.Conn
	buf  []byte
}

func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, buf: make([]byte, BufSize)}
}

// ReadMessage performs one bounded read and returns the trimmed text.
func (c *Conn) ReadMessage() (string, error) {
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(c.buf[:n])), nil
}

// WriteMessage sends one complete response in a single write.
func (c *Conn) WriteMessage(msg string) error {
	if len(msg) > BufSize {
		return fmt.Errorf("%w: %d bytes", ErrOversizedWrite, len(msg))
	}
	_, err := c.conn.Write([]byte(msg))
	return err
}

// WriteBlob runs the two-phase transfer: announce the exact byte count,
// wait for the ready token, then stream the payload in bounded chunks.
// The receiver reassembles by length, never by delimiter.
func (c *Conn) WriteBlob(payload []byte) error {
	if err := c.WriteMessage(fmt.Sprintf("%s%d", sizePrefix, len(payload))); err != nil {
		return err
	}

	ack, err := c.ReadMessage()
	if err != nil {
		return err
	}
	if ack != ReadyToken {
		return fmt.Errorf("%w: got %q", ErrUnexpectedAck, ack)
	}

	for off := 0; off < len(payload); off += BufSize {
		end := off + BufSize
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := c.conn.Write(payload[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// WriteNoBlob skips the size/ack/stream exchange entirely.
func (c *Conn) WriteNoBlob() error {
	return c.WriteMessage(NoChart)
}

// ReadBlob is the receiving side of the transfer. A NoChart header yields
// a nil payload and no handshake.
func (c *Conn) ReadBlob() ([]byte, error) {
	header, err := c.ReadMessage()
	if err != nil {
		return nil, err
	}
	if header == NoChart {
		return nil, nil
	}
	if !strings.HasPrefix(header, sizePrefix) {
		return nil, fmt.Errorf("%w: %q", ErrBadSizeHeader, header)
	}

	size, err := strconv.Atoi(strings.TrimPrefix(header, sizePrefix))
	if err != nil || size < 0 {
		return nil, fmt.Errorf("%w: %q", ErrBadSizeHeader, header)
	}

	if err := c.WriteMessage(ReadyToken); err != nil {
		return nil, err
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
