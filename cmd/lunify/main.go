// Command lunify upgrades Lua 5.0 byte code to Lua 5.1, or repages Lua 5.1
// byte code compiled with a different LFIELDS_PER_FLUSH, one or more files
// at a time.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"zombiezen.com/go/log"

	"github.com/speedata/lunify"
	"github.com/speedata/lunify/internal/config"
)

type globalOptions struct {
	configPath string
	debug      bool
}

func main() {
	g := new(globalOptions)

	rootCommand := &cobra.Command{
		Use:           "lunify",
		Short:         "rewrite Lua byte code between 5.0 and 5.1",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCommand.PersistentFlags().StringVar(&g.configPath, "config", "", "`path` to a settings override file (JWCC)")
	rootCommand.PersistentFlags().BoolVar(&g.debug, "debug", false, "show debugging output")
	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(g.debug)
		return nil
	}

	rootCommand.AddCommand(
		newUpgradeCommand(g),
		newConvertCommand(g),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(g.debug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
}

type convertOptions struct {
	sizeTWidth          uint
	fieldsPerFlush      uint64
	inputFieldsPerFlush uint64
	bzip2Output         bool
	outPath             string
	files               []string
}

func newUpgradeCommand(g *globalOptions) *cobra.Command {
	opts := new(convertOptions)
	c := &cobra.Command{
		Use:                   "upgrade [options] FILE [...]",
		Short:                 "upcast Lua 5.0 byte code to Lua 5.1",
		DisableFlagsInUseLine: true,
		Args:                  cobra.MinimumNArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.Flags().UintVar(&opts.sizeTWidth, "size-t-width", 4, "output size_t width in bytes (4 or 8)")
	c.Flags().Uint64Var(&opts.fieldsPerFlush, "fields-per-flush", 50, "output LFIELDS_PER_FLUSH")
	c.Flags().BoolVar(&opts.bzip2Output, "bzip2", false, "bzip2-compress each output file")
	c.Flags().StringVar(&opts.outPath, "out", "", "output `directory` (defaults to overwriting each input file)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.files = args
		return runConvert(cmd.Context(), g, opts, false)
	}
	return c
}

func newConvertCommand(g *globalOptions) *cobra.Command {
	opts := new(convertOptions)
	c := &cobra.Command{
		Use:                   "convert [options] FILE [...]",
		Short:                 "repage Lua 5.1 byte code to a different LFIELDS_PER_FLUSH",
		DisableFlagsInUseLine: true,
		Args:                  cobra.MinimumNArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	c.Flags().UintVar(&opts.sizeTWidth, "size-t-width", 4, "output size_t width in bytes (4 or 8)")
	c.Flags().Uint64Var(&opts.fieldsPerFlush, "fields-per-flush", 50, "output LFIELDS_PER_FLUSH")
	c.Flags().Uint64Var(&opts.inputFieldsPerFlush, "input-fields-per-flush", 50, "input LFIELDS_PER_FLUSH (not recorded in the byte code itself)")
	c.Flags().BoolVar(&opts.bzip2Output, "bzip2", false, "bzip2-compress each output file")
	c.Flags().StringVar(&opts.outPath, "out", "", "output `directory` (defaults to overwriting each input file)")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.files = args
		return runConvert(cmd.Context(), g, opts, true)
	}
	return c
}

func runConvert(ctx context.Context, g *globalOptions, opts *convertOptions, repageOnly bool) error {
	configPath := g.configPath
	explicit := configPath != ""
	if configPath == "" {
		configPath = config.DefaultPath()
	}
	settings, err := config.Load(configPath, explicit)
	if err != nil {
		return err
	}

	width := lunify.Width32
	if opts.sizeTWidth == 8 {
		width = lunify.Width64
	} else if opts.sizeTWidth != 4 {
		return fmt.Errorf("--size-t-width must be 4 or 8, got %d", opts.sizeTWidth)
	}
	settings.Lua51.FieldsPerFlush = opts.fieldsPerFlush
	outputFormat := lunify.DefaultFormatWithSizeT(width)

	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for _, path := range opts.files {
		path := path
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			n, err := convertOneFile(path, opts, outputFormat, settings, repageOnly)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			mu.Lock()
			if interactive {
				log.Infof(groupCtx, "%s: %d bytes written", path, n)
			}
			mu.Unlock()
			return nil
		})
	}
	return group.Wait()
}

func convertOneFile(path string, opts *convertOptions, outputFormat lunify.Format, settings lunify.Settings, repageOnly bool) (int, error) {
	input, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var output []byte
	if repageOnly {
		output, err = lunify.Convert(input, outputFormat, settings, opts.inputFieldsPerFlush)
	} else {
		output, err = lunify.Unify(input, outputFormat, settings)
	}
	if err != nil {
		return 0, err
	}

	outPath := path
	if opts.outPath != "" {
		outPath = opts.outPath + "/" + lastPathComponent(path)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var n int
	if opts.bzip2Output {
		bz, err := bzip2.NewWriter(w, nil)
		if err != nil {
			return 0, err
		}
		if n, err = bz.Write(output); err != nil {
			bz.Close()
			return 0, err
		}
		if err := bz.Close(); err != nil {
			return 0, err
		}
	} else {
		if n, err = w.Write(output); err != nil {
			return 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return n, nil
}

func lastPathComponent(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "lunify: ", log.StdFlags, nil),
		})
	})
}
