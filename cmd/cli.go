package cmd

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
)

const (
	CliHistFileEnv     = "EDGEPROXY_CLI_HISTFILE"
	CliHistFileDefault = ".edgeproxy_history"

	replyTimeout = 2 * time.Second
)

type CliConfig struct {
	Addr      string
	SendProxy bool // emit a PROXY v1 preamble before the first line
	ProxySrc  string
	ProxyDst  string
}

// Run is the `cli` subcommand: an interactive line tester for the proxy.
// With a terminal on stdin it runs a liner REPL with history; otherwise it
// ships stdin line by line, which makes it usable in pipes.
func Run(args []string) error {
	cfg := &CliConfig{}
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", "127.0.0.1:7080", "proxy address")
	fs.BoolVar(&cfg.SendProxy, "send-proxy", false, "send a PROXY v1 preamble first")
	fs.StringVar(&cfg.ProxySrc, "proxy-src", "192.0.2.1:56324", "source announced in the preamble")
	fs.StringVar(&cfg.ProxyDst, "proxy-dst", "192.0.2.2:7080", "destination announced in the preamble")
	if err := fs.Parse(args); err != nil {
		return err
	}

	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}
	defer conn.Close()

	if cfg.SendProxy {
		if err := writePreamble(conn, cfg); err != nil {
			return err
		}
	}

	if isatty.IsTerminal(os.Stdin.Fd()) {
		return runInteractive(conn, cfg)
	}
	return runPipe(conn)
}

func writePreamble(conn net.Conn, cfg *CliConfig) error {
	srcHost, srcPort, err := net.SplitHostPort(cfg.ProxySrc)
	if err != nil {
		return fmt.Errorf("bad proxy-src: %w", err)
	}
	dstHost, dstPort, err := net.SplitHostPort(cfg.ProxyDst)
	if err != nil {
		return fmt.Errorf("bad proxy-dst: %w", err)
	}
	_, err = fmt.Fprintf(conn, "PROXY TCP4 %s %s %s %s\r\n", srcHost, dstHost, srcPort, dstPort)
	return err
}

func histFilePath() string {
	if path := os.Getenv(CliHistFileEnv); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return CliHistFileDefault
	}
	return filepath.Join(home, CliHistFileDefault)
}

func runInteractive(conn net.Conn, cfg *CliConfig) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	histPath := histFilePath()
	if f, err := os.Open(histPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	r := bufio.NewReader(conn)
	prompt := cfg.Addr + "> "
	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		reply, err := exchange(conn, r, input)
		if err != nil {
			return err
		}
		fmt.Println(reply)
	}
}

func runPipe(conn net.Conn) error {
	in := bufio.NewScanner(os.Stdin)
	r := bufio.NewReader(conn)
	for in.Scan() {
		reply, err := exchange(conn, r, in.Text())
		if err != nil {
			return err
		}
		fmt.Println(reply)
	}
	return in.Err()
}

func exchange(conn net.Conn, r *bufio.Reader, input string) (string, error) {
	if _, err := fmt.Fprintf(conn, "%s\n", input); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(replyTimeout))
	reply, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	return strings.TrimRight(reply, "\n"), nil
}
