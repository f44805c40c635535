//go:build linux
// +build linux

package core

import (
	"bytes"

	"github.com/fzft/go-edge-proxy/log"
	"github.com/fzft/go-edge-proxy/metrics"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// recvProxyStep consumes an incoming PROXY protocol v1 preamble. The header
// is peeked first so only the exact preamble is taken off the socket; any
// application data behind it stays queued for the data phase.
func recvProxyStep(c *Connection) StepResult {
	buf := make([]byte, proxyLineMax)

	n, _, err := unix.Recvfrom(c.Fd(), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
	if err != nil {
		if IsTemporaryError(err) {
			c.SockWantRecv()
			metrics.HandshakeSteps.WithLabelValues("recv_proxy", "blocked").Inc()
			return StepBlocked
		}
		log.Logger.Debug("proxy preamble recv failed", zap.Int("fd", c.Fd()), zap.Error(err))
		c.SetError()
		metrics.HandshakeSteps.WithLabelValues("recv_proxy", "error").Inc()
		return StepBlocked
	}
	if n == 0 {
		// peer closed before sending a preamble
		c.SetError()
		metrics.HandshakeSteps.WithLabelValues("recv_proxy", "error").Inc()
		return StepBlocked
	}

	end := bytes.Index(buf[:n], []byte("\r\n"))
	if end < 0 {
		if n >= proxyLineMax {
			c.SetError()
			metrics.HandshakeSteps.WithLabelValues("recv_proxy", "error").Inc()
			return StepBlocked
		}
		// header not complete yet
		c.SockWantRecv()
		metrics.HandshakeSteps.WithLabelValues("recv_proxy", "blocked").Inc()
		return StepBlocked
	}

	src, err := parseProxyV1(string(buf[:end]))
	if err != nil {
		log.Logger.Warn("malformed proxy preamble", zap.Int("fd", c.Fd()), zap.Error(err))
		c.SetError()
		metrics.HandshakeSteps.WithLabelValues("recv_proxy", "error").Inc()
		return StepBlocked
	}

	// consume exactly the preamble
	if _, err := unix.Read(c.Fd(), buf[:end+2]); err != nil {
		c.SetError()
		metrics.HandshakeSteps.WithLabelValues("recv_proxy", "error").Inc()
		return StepBlocked
	}

	if src != "" {
		c.SetPeer(src)
	}
	c.ClearFlag(FlagAcceptProxy)
	c.SockStopRecv()
	metrics.HandshakeSteps.WithLabelValues("recv_proxy", "advance").Inc()
	return StepAdvance
}

// sendProxyStep writes the outgoing PROXY protocol v1 preamble, resuming
// from where a previous wake-up left off.
func sendProxyStep(c *Connection) StepResult {
	if c.proxyLine == nil {
		c.proxyLine = buildProxyV1(c.Local(), c.Peer())
	}
	line := c.proxyLine

	for c.sendProxyOfs < len(line) {
		n, err := unix.Write(c.Fd(), line[c.sendProxyOfs:])
		if n > 0 {
			c.sendProxyOfs += n
		}
		if err != nil {
			if IsTemporaryError(err) || err == unix.ENOTCONN {
				c.SockWantSend()
				metrics.HandshakeSteps.WithLabelValues("send_proxy", "blocked").Inc()
				return StepBlocked
			}
			log.Logger.Debug("proxy preamble send failed", zap.Int("fd", c.Fd()), zap.Error(err))
			c.SetError()
			c.SetFlag(FlagNotifyUpper)
			metrics.HandshakeSteps.WithLabelValues("send_proxy", "error").Inc()
			return StepBlocked
		}
	}

	c.ClearFlag(FlagSendProxy)
	c.SockStopSend()
	metrics.HandshakeSteps.WithLabelValues("send_proxy", "advance").Inc()
	return StepAdvance
}
