//go:build linux
// +build linux

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (local, remote int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	for _, fd := range fds {
		require.NoError(t, unix.SetNonblock(fd, true))
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

// The step consumes exactly the preamble; application bytes written behind it
// stay queued for the data phase.
func TestRecvProxyStepConsumesExactHeader(t *testing.T) {
	local, remote := socketPair(t)
	line := "PROXY TCP4 192.0.2.1 192.0.2.2 56324 443\r\n"
	_, err := unix.Write(remote, []byte(line+"hello"))
	require.NoError(t, err)

	c := NewConnection(local, &fakeApp{})
	c.SetFlag(FlagAcceptProxy)

	require.Equal(t, StepAdvance, recvProxyStep(c))
	assert.False(t, c.HasFlag(FlagAcceptProxy))
	assert.False(t, c.IsErroring())
	assert.Equal(t, "192.0.2.1:56324", c.Peer(), "peer rewritten to the advertised source")

	buf := make([]byte, 64)
	n, err := unix.Read(local, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

// An incomplete preamble blocks without error, keeps the facet pending, arms
// read interest, and leaves the partial bytes on the socket for the next
// wake-up.
func TestRecvProxyStepBlocksOnPartialHeader(t *testing.T) {
	local, remote := socketPair(t)
	partial := "PROXY TCP4 192."
	_, err := unix.Write(remote, []byte(partial))
	require.NoError(t, err)

	c := NewConnection(local, &fakeApp{})
	c.SetFlag(FlagAcceptProxy)

	require.Equal(t, StepBlocked, recvProxyStep(c))
	assert.False(t, c.IsErroring())
	assert.True(t, c.HasFlag(FlagAcceptProxy))
	assert.True(t, c.WantsRecv())

	buf := make([]byte, 64)
	n, err := unix.Read(local, buf)
	require.NoError(t, err)
	assert.Equal(t, partial, string(buf[:n]), "nothing consumed while blocked")
}

func TestRecvProxyStepBlocksOnEmptySocket(t *testing.T) {
	local, _ := socketPair(t)

	c := NewConnection(local, &fakeApp{})
	c.SetFlag(FlagAcceptProxy)

	require.Equal(t, StepBlocked, recvProxyStep(c))
	assert.False(t, c.IsErroring())
	assert.True(t, c.WantsRecv())
}

// Anything that is not a PROXY line raises the sticky error facet.
func TestRecvProxyStepRejectsMalformed(t *testing.T) {
	local, remote := socketPair(t)
	_, err := unix.Write(remote, []byte("GET / HTTP/1.1\r\n"))
	require.NoError(t, err)

	c := NewConnection(local, &fakeApp{})
	c.SetFlag(FlagAcceptProxy)

	require.Equal(t, StepBlocked, recvProxyStep(c))
	assert.True(t, c.IsErroring())
}

// A peer that closes before sending any preamble is an error, not a block.
func TestRecvProxyStepPeerClosed(t *testing.T) {
	local, remote := socketPair(t)
	require.NoError(t, unix.Close(remote))

	c := NewConnection(local, &fakeApp{})
	c.SetFlag(FlagAcceptProxy)

	require.Equal(t, StepBlocked, recvProxyStep(c))
	assert.True(t, c.IsErroring())
}

func TestSendProxyStepEmitsLine(t *testing.T) {
	local, remote := socketPair(t)

	c := NewConnection(local, &fakeApp{})
	c.SetFlag(FlagSendProxy)
	c.SetProxyAddrs("192.0.2.1:56324", "192.0.2.2:443")

	require.Equal(t, StepAdvance, sendProxyStep(c))
	assert.False(t, c.HasFlag(FlagSendProxy))
	assert.False(t, c.IsErroring())

	buf := make([]byte, 128)
	n, err := unix.Read(remote, buf)
	require.NoError(t, err)
	assert.Equal(t, "PROXY TCP4 192.0.2.1 192.0.2.2 56324 443\r\n", string(buf[:n]))
}

// A send interrupted mid-line on an earlier wake-up resumes from its offset
// instead of repeating bytes.
func TestSendProxyStepResumesPartialWrite(t *testing.T) {
	local, remote := socketPair(t)

	c := NewConnection(local, &fakeApp{})
	c.SetFlag(FlagSendProxy)
	c.SetProxyAddrs("192.0.2.1:56324", "192.0.2.2:443")
	line := string(c.proxyLine)
	c.sendProxyOfs = 10

	require.Equal(t, StepAdvance, sendProxyStep(c))

	buf := make([]byte, 128)
	n, err := unix.Read(remote, buf)
	require.NoError(t, err)
	assert.Equal(t, line[10:], string(buf[:n]))
}
