package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/marmos91/catwalk/internal/logger"
	"github.com/marmos91/catwalk/pkg/catalog"
	"github.com/marmos91/catwalk/pkg/config"
	"github.com/marmos91/catwalk/pkg/diag"
	"github.com/marmos91/catwalk/pkg/metrics"
	reportfmt "github.com/marmos91/catwalk/pkg/report"
	"github.com/marmos91/catwalk/pkg/volume"
	"github.com/marmos91/catwalk/pkg/walker"
)

// openVolume runs the shared prologue of the image commands.
func openVolume(ctx context.Context, fs *flag.FlagSet, c *commonFlags) (*session, *catalog.Volume, error) {
	cfg, err := c.load(fs)
	if err != nil {
		return nil, nil, err
	}

	s, err := setup(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	vol, _, err := config.OpenCatalog(ctx, cfg, diag.Default)
	if err != nil {
		s.finish()
		return nil, nil, err
	}
	s.closers = append(s.closers, vol.Close)

	// Records skipped while loading are reported, not fatal.
	_ = diag.Default.Print(os.Stderr)
	return s, vol, nil
}

func parseInum(s string) (catalog.Inum, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, diag.New(diag.FSArg, "invalid inode value: %s", s)
	}
	return catalog.Inum(n), nil
}

func runFls(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fls", flag.ContinueOnError)
	var c commonFlags
	c.register(fs)
	recurse := fs.Bool("r", false, "Recurse into subdirectories")
	dirsOnly := fs.Bool("D", false, "Display directory entries only")
	filesOnly := fs.Bool("F", false, "Display file entries only")
	allocOnly := fs.Bool("u", false, "Display allocated entries only")
	unallocOnly := fs.Bool("d", false, "Display unallocated entries only")
	fullPath := fs.Bool("p", false, "Display full paths instead of indenting")
	maxDepth := fs.Int("depth", -1, "Maximum recursion depth (0 = start directory only, default from config)")
	linear := fs.Bool("linear", false, "Scan the whole inode range instead of using the child index")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: catwalk fls [flags] [inode]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, vol, err := openVolume(ctx, fs, &c)
	if err != nil {
		return err
	}
	defer s.finish()
	cfg := s.cfg

	start := vol.RootInum()
	if cfg.Walk.Start != 0 {
		start = catalog.Inum(cfg.Walk.Start)
	}
	if fs.NArg() > 0 {
		if start, err = parseInum(fs.Arg(0)); err != nil {
			return err
		}
	}

	var cli walker.Flags
	for _, sel := range []struct {
		set  bool
		flag walker.Flags
	}{
		{*recurse, walker.FlagRecurse},
		{*dirsOnly, walker.FlagDir},
		{*filesOnly, walker.FlagReg},
		{*allocOnly, walker.FlagAlloc},
		{*unallocOnly, walker.FlagUnalloc},
	} {
		if sel.set {
			cli |= sel.flag
		}
	}
	flags := walkFlags(cfg.Walk, cli)

	depth := cfg.Walk.Depth()
	if *maxDepth >= 0 {
		depth = *maxDepth
	}

	opts := []walker.Option{
		walker.WithState(diag.Default),
		walker.WithMaxDepth(depth),
		walker.WithMetrics(metrics.NewWalkMetrics(vol.Name())),
	}
	if *linear || cfg.Walk.LinearScan {
		opts = append(opts, walker.WithLinearScan())
	}

	out, err := s.output()
	if err != nil {
		return err
	}
	w, err := reportfmt.NewWriter(out, reportfmt.Format(cfg.Output.Format), reportfmt.Options{
		RunID:        s.runID,
		FullPath:     *fullPath || cfg.Output.FullPath,
		UnicodeNames: cfg.Output.UnicodeNames,
	})
	if err != nil {
		return err
	}

	// A cancelled context stops the walk at the next entry.
	visitor := walker.VisitorFunc(func(fs catalog.Filesystem, e *walker.Entry) walker.Action {
		if ctx.Err() != nil {
			return walker.Stop
		}
		return w.Visit(fs, e)
	})

	stats, err := walker.Walk(vol, start, flags, visitor, opts...)
	if err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	logger.Info("Walk of inode %d (%s): %d entries, %d dirs, %d files, %d skipped, %d cycles, %d depth-limited",
		start, flags, stats.Entries, stats.Dirs, stats.Files, stats.Skipped, stats.Cycles, stats.DepthLimited)

	// The last skipped record, if any.
	return diag.Default.Print(os.Stderr)
}

const (
	allocBits = walker.FlagAlloc | walker.FlagUnalloc
	kindBits  = walker.FlagDir | walker.FlagReg
)

// walkFlags combines the configured filters with those given on the command
// line. A command line allocation or kind selection replaces the configured
// one; -r only adds recursion.
func walkFlags(cfg config.WalkConfig, cli walker.Flags) walker.Flags {
	f := configFlags(cfg)
	if cli&allocBits != 0 {
		f = f&^allocBits | cli&allocBits
	}
	if cli&kindBits != 0 {
		f = f&^kindBits | cli&kindBits
	}
	return f | cli&walker.FlagRecurse
}

// configFlags converts the configured filters.
func configFlags(cfg config.WalkConfig) walker.Flags {
	var f walker.Flags
	if cfg.Recurse {
		f |= walker.FlagRecurse
	}
	if cfg.Alloc {
		f |= walker.FlagAlloc
	}
	if cfg.Unalloc {
		f |= walker.FlagUnalloc
	}
	if cfg.Dirs {
		f |= walker.FlagDir
	}
	if cfg.Files {
		f |= walker.FlagReg
	}
	return f
}

func runIstat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("istat", flag.ContinueOnError)
	var c commonFlags
	c.register(fs)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: catwalk istat [flags] inode")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return flag.ErrHelp
	}
	inum, err := parseInum(fs.Arg(0))
	if err != nil {
		return err
	}

	s, vol, err := openVolume(ctx, fs, &c)
	if err != nil {
		return err
	}
	defer s.finish()

	inode, err := vol.Lookup(inum)
	if err != nil {
		return err
	}
	return printInode(s, vol, inode)
}

func printInode(s *session, vol *catalog.Volume, inode *catalog.Inode) error {
	out, err := s.output()
	if err != nil {
		return err
	}
	return reportfmt.Istat(out, vol, inode, reportfmt.Format(s.cfg.Output.Format), reportfmt.Options{
		RunID:        s.runID,
		UnicodeNames: s.cfg.Output.UnicodeNames,
	})
}

func runLookup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	var c commonFlags
	c.register(fs)
	stat := fs.Bool("stat", false, "Print the record's metadata instead of its number")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: catwalk lookup [flags] path")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return flag.ErrHelp
	}

	s, vol, err := openVolume(ctx, fs, &c)
	if err != nil {
		return err
	}
	defer s.finish()

	inode, err := walker.Lookup(vol, fs.Arg(0), walker.WithState(diag.Default))
	if err != nil {
		return err
	}
	if *stat {
		return printInode(s, vol, inode)
	}
	fmt.Println(inode.Inum)
	return nil
}

func runParts(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("parts", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: catwalk parts image")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return flag.ErrHelp
	}

	parts, err := volume.Partitions(fs.Arg(0))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "Slot\tStart\tEnd\tLength\tTable\tType\tName")
	for _, p := range parts {
		fmt.Fprintf(tw, "%03d\t%012d\t%012d\t%012d\t%s\t%s\t%s\n",
			p.Index, p.Start, p.Start+p.Size-1, p.Size, p.Table, p.Type, p.Name)
	}
	return tw.Flush()
}

func runInit(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	path := fs.String("path", "", "Write to this path instead of the default location")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *path != "" {
		if err := config.InitConfigToPath(*path, *force); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", *path)
		return nil
	}

	replaced := config.ConfigExists()
	written, err := config.InitConfig(*force)
	if err != nil {
		return err
	}
	if replaced {
		fmt.Printf("Configuration replaced at %s\n", written)
		return nil
	}
	fmt.Printf("Configuration written to %s\n", written)
	return nil
}
