package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fzft/go-edge-proxy/cmd"
	"github.com/fzft/go-edge-proxy/config"
	"github.com/fzft/go-edge-proxy/core"
	"github.com/fzft/go-edge-proxy/log"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "cli" {
		if err := cmd.Run(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := log.InitLogger(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Logger.Info("starting edge proxy", zap.String("build", BuildIDRaw()))

	s := core.NewServer(cfg)
	if err := s.Run(); err != nil {
		os.Exit(1)
	}
}
