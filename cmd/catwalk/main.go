package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/catwalk/internal/logger"
	"github.com/marmos91/catwalk/pkg/config"
	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/metrics"
)

const usage = `catwalk - forensic catalog walker

Usage:
  catwalk <command> [flags] [args]

Commands:
  fls     list directory entries (default: root directory)
  istat   print the metadata of one catalog record
  lookup  resolve a path to a catalog record
  parts   list the partitions of a disk image
  init    write a default configuration file

Run "catwalk <command> -h" for the flags of a command.
`

var commands = map[string]func(ctx context.Context, args []string) error{
	"fls":    runFls,
	"istat":  runIstat,
	"lookup": runLookup,
	"parts":  runParts,
	"init":   runInit,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		fmt.Print(usage)
		return
	}

	run, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "catwalk: unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}

	// Cancel the catalog load and walk on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fail(err)
	}
}

// fail prints err and exits.
func fail(err error) {
	report(os.Stderr, diag.Default, err)
	os.Exit(1)
}

// report writes err to w. Toolkit errors go through st so they render as
// one diagnostic line.
func report(w io.Writer, st *diag.State, err error) {
	category, local, ok := diag.CodeOf(err)
	if !ok {
		fmt.Fprintf(w, "catwalk: %v\n", err)
		return
	}
	logger.Debug("%s error %#x", category, uint32(category)|local)

	var de *diag.Error
	errors.As(err, &de)
	st.ReportError(de)
	_ = st.Print(w)
}

// commonFlags are accepted by every command that reads an image.
type commonFlags struct {
	configPath string
	image      string
	partition  int
	offset     int64
	store      string
	format     string
	logLevel   string
	verbose    bool
	listen     string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	fs.StringVar(&c.image, "i", "", "Path to a raw image file (overrides image.*)")
	fs.IntVar(&c.partition, "partition", 0, "Partition slot to open (0 = whole image)")
	fs.Int64Var(&c.offset, "o", 0, "Byte offset of the filesystem in the image")
	fs.StringVar(&c.store, "store", "", "Inode store (memory, badger)")
	fs.StringVar(&c.format, "format", "", "Report format (text, json, yaml)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	fs.BoolVar(&c.verbose, "v", false, "Verbose output (forces DEBUG)")
	fs.StringVar(&c.listen, "metrics-listen", "", "Serve Prometheus metrics on this address while running")
}

// load reads the configuration and applies the flags that were set on the
// command line.
func (c *commonFlags) load(fs *flag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.Image.Type = "file"
			cfg.Image.File["path"] = c.image
		case "partition":
			cfg.Image.Partition = c.partition
		case "o":
			cfg.Image.Offset = c.offset
		case "store":
			cfg.Catalog.Store = c.store
		case "format":
			cfg.Output.Format = c.format
		case "log-level":
			cfg.Logging.Level = c.logLevel
		case "v":
			cfg.Program.Verbose = c.verbose
		case "metrics-listen":
			cfg.Metrics.Enabled = true
			cfg.Metrics.Listen = c.listen
		}
	})

	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// session is the process state shared by the image commands.
type session struct {
	cfg   *config.Config
	runID string

	closers []func() error
}

// setup configures logging and metrics from cfg.
func setup(ctx context.Context, cfg *config.Config) (*session, error) {
	s := &session{cfg: cfg, runID: uuid.New().String()}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	w, closeLog, err := logger.OpenOutput(cfg.Logging.Output)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(w)
	s.closers = append(s.closers, closeLog)

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		srv := metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Listen})
		if err := srv.Listen(); err != nil {
			s.finish()
			return nil, err
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Warn("%v", err)
			}
		}()
		s.closers = append(s.closers, func() error {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Stop(stopCtx)
		})
	}

	logger.Debug("%s run %s", cfg.Program.Name, s.runID)
	return s, nil
}

// output opens the report destination.
func (s *session) output() (io.Writer, error) {
	path := s.cfg.Output.Path
	if path == "" || path == "-" {
		return os.Stdout, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	s.closers = append(s.closers, f.Close)
	return f, nil
}

// finish writes metrics and releases everything setup and output opened.
func (s *session) finish() {
	if s.cfg.Metrics.Enabled && s.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			logger.Warn("Failed to write metrics to %s: %v", s.cfg.Metrics.Textfile, err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}
