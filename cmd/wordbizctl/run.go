package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/wordbiz/internal/config"
	"github.com/danmuck/wordbiz/internal/logging"
	"github.com/danmuck/wordbiz/internal/server"
	"github.com/danmuck/wordbiz/internal/supervisor"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var errConfigRequired = errors.New("--config is required")

type options struct {
	ConfigPath string
	AdminAddr  string
	LogFile    string
	Verbose    bool
	Init       bool
	Force      bool
	Validate   bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("wordbizctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (.toml, .yaml, .yml or .json)")
	fs.StringVar(&opts.AdminAddr, "admin-addr", "", "admin HTTP listen address, overrides admin_listen_addr")
	fs.StringVar(&opts.LogFile, "log-file", "", "also write JSON logs to this rotating file")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	fs.BoolVar(&opts.Init, "init", false, "write a starter config to --config and exit")
	fs.BoolVar(&opts.Force, "force", false, "with --init, overwrite an existing file")
	fs.BoolVar(&opts.Validate, "validate", false, "load and validate --config, then exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if strings.TrimSpace(opts.ConfigPath) == "" {
		return options{}, errConfigRequired
	}
	return opts, nil
}

func run(args []string, stdin *os.File, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.Init {
		if err := config.WriteTemplate(opts.ConfigPath, opts.Force); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "wrote config template to %s\n", opts.ConfigPath)
		return nil
	}

	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Validate {
		if _, err := cfg.ServiceConfig(); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "validated config at %s\n", opts.ConfigPath)
		return nil
	}

	logger, closer := logging.Configure(loggingOptions(cfg, opts))
	defer closer.Close()

	if cfg.Password == "" {
		pw, err := promptForPassword(stdin, stderr, fmt.Sprintf("password for %s: ", cfg.Username))
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		cfg.Password = pw
	}

	svcCfg, err := cfg.ServiceConfig()
	if err != nil {
		return err
	}
	svc := supervisor.NewService(svcCfg, logger)

	adminAddr := strings.TrimSpace(cfg.AdminListenAddr)
	if opts.AdminAddr != "" {
		adminAddr = strings.TrimSpace(opts.AdminAddr)
	}
	if adminAddr != "" {
		svc.Attach(server.New(server.Config{
			Addr:        adminAddr,
			CorsOrigins: cfg.AdminCorsOrigins,
			Token:       cfg.AdminToken,
		}, svc.Supervisor(), logger))
	}
	return svc.Run()
}

// loggingOptions layers file settings, then WORDBIZ_LOG_* env, then flags.
func loggingOptions(cfg config.File, opts options) logging.Options {
	out := logging.DefaultOptions(logging.ProfileRuntime)
	out.Console = os.Stderr
	if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
		out.Level = lvl
	}
	out.FilePath = strings.TrimSpace(cfg.LogFile)
	logging.ApplyEnvOverrides(&out)
	if opts.Verbose {
		out.Level = zerolog.DebugLevel
	}
	if opts.LogFile != "" {
		out.FilePath = opts.LogFile
	}
	return out
}

func promptForPassword(stdin *os.File, stderr io.Writer, prompt string) (string, error) {
	fd := int(stdin.Fd())
	fmt.Fprint(stderr, prompt)

	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	pw := strings.TrimSpace(line)
	if pw == "" {
		return "", errors.New("empty password")
	}
	return pw, nil
}
