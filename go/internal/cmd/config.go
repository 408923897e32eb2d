package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/mcdev12/scoresync/go/internal/config"
)

type options struct {
	configPath string
	logLevel   string
	addr       string
	help       bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("scoresync", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	flagSet.StringVar(&opts.addr, "addr", "", "override the presentation server listen address")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.help = true
			return opts, nil
		}
		return options{}, err
	}
	if opts.help {
		fmt.Fprintf(os.Stderr, "Usage: scoresync [flags]\n\n%s", flagSet.FlagUsages())
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

func loadConfig(opts options) (config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.addr != "" {
		cfg.Pages.Addr = opts.addr
	}
	return cfg, nil
}
