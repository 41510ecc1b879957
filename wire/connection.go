// Package wire is the byte level transport between the server and one
// trading terminal: typed big-endian values over a blocking socket, with
// buffered writes and explicit close outcomes.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

const (
	// DefaultWriteBufferSize is how many bytes are held back while the peer
	// still has data in flight.
	DefaultWriteBufferSize = 1200

	defaultReadBufferSize = 4096
	maxStringLen          = math.MaxUint16
)

// Option customizes a Connection.
type Option func(*Connection)

// WithWriteBufferSize sets the write buffer capacity in bytes.
func WithWriteBufferSize(n int) Option {
	return func(c *Connection) {
		c.writeSize = n
	}
}

// WithReadBufferSize sets the read buffer capacity in bytes.
func WithReadBufferSize(n int) Option {
	return func(c *Connection) {
		c.readSize = n
	}
}

// Connection frames one accepted socket into typed values.
//
// Receives block until the whole value arrived. Sends are buffered; the
// buffer is flushed when it is full or when, right after a send, the peer has
// no more bytes waiting to be read. Once a receive or send fails the
// connection is terminal: every later call returns the same *CloseError.
//
// A Connection is owned by a single worker goroutine. Only Close may be
// called from other goroutines.
type Connection struct {
	conn   net.Conn
	remote string

	readSize  int
	writeSize int
	r         *bufio.Reader
	w         *bufio.Writer
	pending   func() (int, error)

	scratch  [8]byte
	closeErr *CloseError

	closedLocally atomic.Bool
	closeOnce     sync.Once
	closeResult   error
}

// NewConnection wraps conn.
//
// Parameters:
//   - conn: The accepted socket; the Connection takes ownership of it
//   - opts: Buffer size overrides
//
// Returns:
//   - The new Connection
//   - An error if conn is nil or a buffer size is not positive
func NewConnection(conn net.Conn, opts ...Option) (*Connection, error) {
	if conn == nil {
		return nil, ErrNilConn
	}

	c := &Connection{
		conn:      conn,
		readSize:  defaultReadBufferSize,
		writeSize: DefaultWriteBufferSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.writeSize <= 0 {
		return nil, fmt.Errorf("invalid write buffer size %d", c.writeSize)
	}

	if c.readSize <= 0 {
		return nil, fmt.Errorf("invalid read buffer size %d", c.readSize)
	}

	addr := conn.RemoteAddr()
	if addr == nil {
		return nil, errors.New("socket has no remote address")
	}

	c.remote = addr.String()
	c.r = bufio.NewReaderSize(conn, c.readSize)
	c.w = bufio.NewWriterSize(conn, c.writeSize)
	c.pending = kernelPending(conn)
	return c, nil
}

// TryReceiveByte reads one byte.
func (c *Connection) TryReceiveByte() (byte, error) {
	b, err := c.read(1, false)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

// TryReceiveInteger reads a 32 bit big-endian two's complement integer.
func (c *Connection) TryReceiveInteger() (int32, error) {
	b, err := c.read(4, false)
	if err != nil {
		return 0, err
	}

	return int32(binary.BigEndian.Uint32(b)), nil
}

// TryReceiveLong reads a 64 bit big-endian two's complement integer.
func (c *Connection) TryReceiveLong() (int64, error) {
	b, err := c.read(8, false)
	if err != nil {
		return 0, err
	}

	return int64(binary.BigEndian.Uint64(b)), nil
}

// TryReceiveDouble reads a big-endian IEEE-754 binary64 value.
func (c *Connection) TryReceiveDouble() (float64, error) {
	b, err := c.read(8, false)
	if err != nil {
		return 0, err
	}

	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// TryReceiveString reads a 2 byte length prefix and that many UTF-8 bytes.
func (c *Connection) TryReceiveString() (string, error) {
	b, err := c.read(2, false)
	if err != nil {
		return "", err
	}

	n := int(binary.BigEndian.Uint16(b))
	if n == 0 {
		return "", nil
	}

	payload := make([]byte, n)
	if err := c.readFull(payload, true); err != nil {
		return "", err
	}

	if !utf8.Valid(payload) {
		return "", c.fail(ErrMalformedString)
	}

	return string(payload), nil
}

// TrySendByte queues one byte.
func (c *Connection) TrySendByte(v byte) error {
	c.scratch[0] = v
	return c.send(c.scratch[:1])
}

// TrySendInteger queues a 32 bit integer.
func (c *Connection) TrySendInteger(v int32) error {
	binary.BigEndian.PutUint32(c.scratch[:4], uint32(v))
	return c.send(c.scratch[:4])
}

// TrySendLong queues a 64 bit integer.
func (c *Connection) TrySendLong(v int64) error {
	binary.BigEndian.PutUint64(c.scratch[:8], uint64(v))
	return c.send(c.scratch[:8])
}

// TrySendDouble queues a binary64 value.
func (c *Connection) TrySendDouble(v float64) error {
	binary.BigEndian.PutUint64(c.scratch[:8], math.Float64bits(v))
	return c.send(c.scratch[:8])
}

// TrySendString queues a length-prefixed UTF-8 string. The prefix counts
// encoded bytes, not characters.
func (c *Connection) TrySendString(v string) error {
	if len(v) > maxStringLen {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(v))
	}

	buf := make([]byte, 2+len(v))
	binary.BigEndian.PutUint16(buf, uint16(len(v)))
	copy(buf[2:], v)
	return c.send(buf)
}

// Flush writes everything buffered to the socket.
func (c *Connection) Flush() error {
	if c.closeErr != nil {
		return c.closeErr
	}

	if err := c.w.Flush(); err != nil {
		return c.fail(err)
	}

	return nil
}

// Buffered returns the number of bytes waiting in the write buffer.
func (c *Connection) Buffered() int {
	return c.w.Buffered()
}

// State returns the terminal outcome, or Open while no call has failed.
func (c *Connection) State() Outcome {
	if c.closeErr == nil {
		return Open
	}

	return c.closeErr.Outcome
}

// Err returns the terminal error, or nil while the connection is open.
func (c *Connection) Err() error {
	if c.closeErr == nil {
		return nil
	}

	return c.closeErr
}

// RemoteAddr returns the peer address captured at construction.
func (c *Connection) RemoteAddr() string {
	return c.remote
}

func (c *Connection) String() string {
	return c.remote
}

// Close closes the socket without flushing. Reads blocked in another
// goroutine fail with ClosedNormally. Safe to call multiple times.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closedLocally.Store(true)
		c.closeResult = c.conn.Close()
	})

	return c.closeResult
}

func (c *Connection) read(n int, midValue bool) ([]byte, error) {
	if err := c.readFull(c.scratch[:n], midValue); err != nil {
		return nil, err
	}

	return c.scratch[:n], nil
}

// readFull fills buf. midValue marks reads that continue a value whose first
// bytes were already consumed; running out of data there is abnormal.
func (c *Connection) readFull(buf []byte, midValue bool) error {
	if c.closeErr != nil {
		return c.closeErr
	}

	if _, err := io.ReadFull(c.r, buf); err != nil {
		if midValue && errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return c.fail(err)
	}

	return nil
}

func (c *Connection) send(b []byte) error {
	if c.closeErr != nil {
		return c.closeErr
	}

	if _, err := c.w.Write(b); err != nil {
		return c.fail(err)
	}

	idle, err := c.peerIdle()
	if err != nil {
		return c.fail(err)
	}

	if idle {
		if err := c.w.Flush(); err != nil {
			return c.fail(err)
		}
	}

	return nil
}

// peerIdle reports whether no bytes from the peer are waiting to be read,
// neither in the read buffer nor in the socket's receive queue.
func (c *Connection) peerIdle() (bool, error) {
	if c.r.Buffered() > 0 {
		return false, nil
	}

	n, err := c.pending()
	if err != nil {
		return false, err
	}

	return n <= 0, nil
}

// fail records the terminal outcome for err.
func (c *Connection) fail(err error) *CloseError {
	c.closeErr = &CloseError{Outcome: c.classify(err), Cause: err}
	return c.closeErr
}

func (c *Connection) classify(err error) Outcome {
	// io.ErrUnexpectedEOF does not match io.EOF, so a stream ending inside a
	// value stays abnormal.
	if errors.Is(err, io.EOF) {
		return ClosedNormally
	}

	if c.closedLocally.Load() && errors.Is(err, net.ErrClosed) {
		return ClosedNormally
	}

	return ClosedAbnormally
}
