//go:build linux || darwin

package wire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_WriteBuffering(t *testing.T) {
	const capacity = 64
	conn, client := tcpPair(t, WithWriteBufferSize(capacity))

	// Keep one unread byte queued on the server side.
	_, err := client.Write([]byte{1})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		n, err := conn.pending()
		return err == nil && n > 0
	}, 2*time.Second, 5*time.Millisecond)

	t.Run("held back while the peer has unread data", func(t *testing.T) {
		require.NoError(t, conn.TrySendByte(0xEE))
		assert.Equal(t, 1, conn.Buffered())

		_, err := readWithin(t, client, 1, 100*time.Millisecond)
		assert.True(t, isTimeout(err), "expected no data, got %v", err)
	})

	t.Run("capacity plus one byte delivers exactly capacity", func(t *testing.T) {
		for i := 1; i < capacity+1; i++ {
			require.NoError(t, conn.TrySendByte(byte(i)))
		}

		got, err := readWithin(t, client, capacity, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, byte(0xEE), got[0])
		assert.Equal(t, byte(capacity-1), got[capacity-1])
		assert.Equal(t, 1, conn.Buffered())

		_, err = readWithin(t, client, 1, 100*time.Millisecond)
		assert.True(t, isTimeout(err), "expected only %d bytes, got more: %v", capacity, err)
	})

	t.Run("flushes once the peer is idle", func(t *testing.T) {
		b, err := conn.TryReceiveByte()
		require.NoError(t, err)
		require.Equal(t, byte(1), b)

		require.NoError(t, conn.TrySendByte(0x55))
		assert.Zero(t, conn.Buffered())

		got, err := readWithin(t, client, 2, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, []byte{capacity, 0x55}, got)
	})
}

func TestConnection_FlushOnIdle(t *testing.T) {
	conn, client := tcpPair(t)

	require.NoError(t, conn.TrySendInteger(7))
	assert.Zero(t, conn.Buffered())

	got, err := readWithin(t, client, 4, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 7}, got)
}

func TestConnection_BufferedReadDataDelaysFlush(t *testing.T) {
	conn, client := tcpPair(t)

	_, err := client.Write([]byte{0, 0, 0, 1, 0, 0, 0, 2})
	require.NoError(t, err)

	v, err := conn.TryReceiveInteger()
	require.NoError(t, err)
	require.Equal(t, int32(1), v)

	// The second integer may sit in the read buffer or the socket queue.
	require.NoError(t, conn.TrySendByte(9))
	assert.Equal(t, 1, conn.Buffered())

	v, err = conn.TryReceiveInteger()
	require.NoError(t, err)
	require.Equal(t, int32(2), v)

	require.NoError(t, conn.TrySendByte(10))
	got, err := readWithin(t, client, 2, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 10}, got)
}

func TestKernelPending_CountsQueuedBytes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	serverSide, err := ln.Accept()
	require.NoError(t, err)
	defer serverSide.Close()

	pending := kernelPending(serverSide)
	n, err := pending()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = client.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		n, err := pending()
		return err == nil && n == 3
	}, 2*time.Second, 5*time.Millisecond)
}
