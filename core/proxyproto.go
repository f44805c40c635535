package core

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// proxyLineMax is the longest possible PROXY protocol v1 line, CRLF included.
const proxyLineMax = 107

// parseProxyV1 decodes one PROXY protocol v1 line without its trailing CRLF
// and returns the advertised source address as host:port. An UNKNOWN line is
// valid and yields an empty source.
func parseProxyV1(line string) (string, error) {
	fields := strings.Split(line, " ")
	if len(fields) == 0 || fields[0] != "PROXY" {
		return "", fmt.Errorf("proxy v1: bad signature %q", line)
	}
	if len(fields) >= 2 && fields[1] == "UNKNOWN" {
		return "", nil
	}
	if len(fields) != 6 {
		return "", fmt.Errorf("proxy v1: want 6 fields, got %d", len(fields))
	}
	if fields[1] != "TCP4" && fields[1] != "TCP6" {
		return "", fmt.Errorf("proxy v1: bad protocol %q", fields[1])
	}

	// addresses must match the announced family
	v4 := fields[1] == "TCP4"
	for _, f := range fields[2:4] {
		ip := net.ParseIP(f)
		if ip == nil {
			return "", fmt.Errorf("proxy v1: bad address %q", f)
		}
		if v4 && ip.To4() == nil {
			return "", fmt.Errorf("proxy v1: %q is not an IPv4 address", f)
		}
		if !v4 && !strings.Contains(f, ":") {
			return "", fmt.Errorf("proxy v1: %q is not an IPv6 address", f)
		}
	}
	for _, f := range fields[4:6] {
		port, err := strconv.Atoi(f)
		if err != nil || port < 0 || port > 65535 {
			return "", fmt.Errorf("proxy v1: bad port %q", f)
		}
	}

	return net.JoinHostPort(fields[2], fields[4]), nil
}

// buildProxyV1 encodes a PROXY protocol v1 line for the given source and
// destination host:port strings. Anything unparseable degrades to the
// UNKNOWN form, which receivers must accept.
func buildProxyV1(src, dst string) []byte {
	srcHost, srcPort, err1 := net.SplitHostPort(src)
	dstHost, dstPort, err2 := net.SplitHostPort(dst)
	if err1 != nil || err2 != nil {
		return []byte("PROXY UNKNOWN\r\n")
	}

	srcIP := net.ParseIP(srcHost)
	dstIP := net.ParseIP(dstHost)
	if srcIP == nil || dstIP == nil {
		return []byte("PROXY UNKNOWN\r\n")
	}

	// a mixed-family pair has no valid protocol token
	src4, dst4 := srcIP.To4(), dstIP.To4()
	switch {
	case src4 != nil && dst4 != nil:
		return []byte(fmt.Sprintf("PROXY TCP4 %s %s %s %s\r\n", src4, dst4, srcPort, dstPort))
	case src4 == nil && dst4 == nil:
		return []byte(fmt.Sprintf("PROXY TCP6 %s %s %s %s\r\n", srcIP, dstIP, srcPort, dstPort))
	default:
		return []byte("PROXY UNKNOWN\r\n")
	}
}
