package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/cobra"

	"github.com/uniplat/mpresolve/internal/exitcode"
	"github.com/uniplat/mpresolve/internal/fs"
	"github.com/uniplat/mpresolve/internal/logger"
	"github.com/uniplat/mpresolve/internal/metrics"
	"github.com/uniplat/mpresolve/internal/plugin"
	"github.com/uniplat/mpresolve/internal/resolver"
	"github.com/uniplat/mpresolve/internal/watch"
)

type buildFlags struct {
	outfile     string
	outdir      string
	bundle      bool
	format      string
	external    []string
	minify      bool
	sourcemap   bool
	watch       bool
	metricsAddr string
}

var buildOpts buildFlags

var buildCmd = &cobra.Command{
	Use:   "build <entry>...",
	Short: "Bundle with esbuild, resolving platform-specific files",
	Long: `Bundles the entry points with esbuild. Extensionless relative imports are
resolved to platform-specific files first.

With --watch, the directories of the entry points and of every file the last
build read are watched. Creating a platform file next to any of them triggers
a rebuild. Files inside node_modules are not watched.`,
	Example: `  mpresolve build --platform h5 src/main.ts --outdir dist/h5
  mpresolve build --platform weapp src/main.ts --outdir dist/weapp --watch --metrics-addr :9090`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(current, args, buildOpts)
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
	f := buildCmd.Flags()
	f.StringVar(&buildOpts.outfile, "outfile", "", "The output file (for one entry point)")
	f.StringVar(&buildOpts.outdir, "outdir", "", "The output directory (for multiple entry points)")
	f.BoolVar(&buildOpts.bundle, "bundle", true, "Bundle all dependencies into the output files")
	f.StringVar(&buildOpts.format, "format", "", "Output format (iife, cjs, esm)")
	f.StringArrayVar(&buildOpts.external, "external", nil, "Exclude module M from the bundle (repeatable)")
	f.BoolVar(&buildOpts.minify, "minify", false, "Minify the output")
	f.BoolVar(&buildOpts.sourcemap, "sourcemap", false, "Emit a source map")
	f.BoolVar(&buildOpts.watch, "watch", false, "Rebuild when files change")
	f.StringVar(&buildOpts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while watching")
}

func parseFormat(text string) (api.Format, error) {
	switch text {
	case "":
		return api.FormatDefault, nil
	case "iife":
		return api.FormatIIFE, nil
	case "cjs":
		return api.FormatCommonJS, nil
	case "esm":
		return api.FormatESModule, nil
	}
	return api.FormatDefault, exitcode.Usagef("invalid value for --format: %q (expected iife, cjs or esm)", text)
}

// esbuild prints its own messages. Keep it at the same verbosity as ours,
// but never below info so build summaries still show up at debug level.
func esbuildLogLevel(level logger.LogLevel) api.LogLevel {
	switch level {
	case logger.LevelWarning:
		return api.LogLevelWarning
	case logger.LevelError:
		return api.LogLevelError
	case logger.LevelSilent:
		return api.LogLevelSilent
	}
	return api.LogLevelInfo
}

func newBuildOptions(s *session, entries []string, opts buildFlags, r *resolver.Resolver) (api.BuildOptions, error) {
	if opts.outfile != "" && opts.outdir != "" {
		return api.BuildOptions{}, exitcode.Usagef("cannot use both --outfile and --outdir")
	}
	if opts.outfile != "" && len(entries) > 1 {
		return api.BuildOptions{}, exitcode.Usagef("must use --outdir when there are multiple entry points")
	}
	format, err := parseFormat(opts.format)
	if err != nil {
		return api.BuildOptions{}, err
	}

	options := api.BuildOptions{
		AbsWorkingDir:     s.cwd,
		EntryPoints:       entries,
		Outfile:           opts.outfile,
		Outdir:            opts.outdir,
		Bundle:            opts.bundle,
		Format:            format,
		External:          opts.external,
		MinifyWhitespace:  opts.minify,
		MinifyIdentifiers: opts.minify,
		MinifySyntax:      opts.minify,
		Write:             true,
		LogLevel:          esbuildLogLevel(s.log.Level),
		Plugins:           []api.Plugin{plugin.New(r)},

		// The inputs listed in the metafile decide which directories are watched
		Metafile: opts.watch,
	}
	if opts.sourcemap {
		options.Sourcemap = api.SourceMapLinked
	}
	return options, nil
}

func runBuild(s *session, entries []string, opts buildFlags) error {
	collector := metrics.New()
	r := s.newResolver(fs.RealFS(), collector)

	options, err := newBuildOptions(s, entries, opts, r)
	if err != nil {
		return err
	}

	if !opts.watch {
		if opts.metricsAddr != "" {
			s.log.AddWarning("Ignoring --metrics-addr because --watch is not set")
		}
		result := api.Build(options)
		logSummary(s.log, collector)
		if len(result.Errors) > 0 {
			return errReported
		}
		return nil
	}

	return runWatch(s, entries, options, opts.metricsAddr, collector)
}

func runWatch(s *session, entries []string, options api.BuildOptions, metricsAddr string, collector *metrics.Collector) error {
	ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer signalStop()

	buildContext, ctxErr := api.Context(options)
	if ctxErr != nil {
		return errReported
	}
	defer buildContext.Dispose()

	if metricsAddr != "" {
		stop, err := serveMetrics(s, metricsAddr, collector)
		if err != nil {
			return err
		}
		defer stop()
	}

	result := buildContext.Rebuild()
	logSummary(s.log, collector)

	w, err := watch.New(watchRoots(s.cwd, entries), s.log, watch.DefaultDebounce)
	if err != nil {
		return err
	}
	defer w.Close()
	watchInputs(s, w, result.Metafile)
	s.log.AddInfo(fmt.Sprintf("Watching %d directories for changes (press Ctrl+C to stop)", w.Dirs()))

	return w.Run(ctx, func(paths []string) {
		text := fmt.Sprintf("Rebuilding after a change to %s", paths[0])
		if len(paths) > 1 {
			text = fmt.Sprintf("Rebuilding after changes to %d files", len(paths))
		}
		s.log.AddInfo(text)
		result := buildContext.Rebuild()
		logSummary(s.log, collector)
		watchInputs(s, w, result.Metafile)
	})
}

// watchInputs adds the directories of every file the last build read. An
// import can reach outside the entry point directories ("../shared/foo"), and
// a platform file created next to it must trigger a rebuild too.
func watchInputs(s *session, w *watch.Watcher, metafile string) {
	roots, err := inputRoots(s.cwd, metafile)
	if err != nil {
		s.log.AddWarning(fmt.Sprintf("Cannot read the build inputs: %s", err))
		return
	}
	if err := w.Add(roots); err != nil {
		s.log.AddWarning(err.Error())
	}
}

// inputRoots returns the directories holding the inputs of an esbuild
// metafile, sorted. Input paths are relative to the working directory.
// Dependencies and modules from other namespaces ("virtual:env") are skipped.
func inputRoots(cwd string, metafile string) ([]string, error) {
	if metafile == "" {
		return nil, nil
	}

	var meta struct {
		Inputs map[string]json.RawMessage `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return nil, err
	}

	var roots []string
	seen := make(map[string]bool)
	for input := range meta.Inputs {
		if strings.Contains("/"+input+"/", "/node_modules/") {
			continue
		}
		path := filepath.FromSlash(input)
		if !filepath.IsAbs(path) {
			if strings.Contains(input, ":") {
				continue
			}
			path = filepath.Join(cwd, path)
		}
		dir := filepath.Dir(path)
		if !seen[dir] {
			seen[dir] = true
			roots = append(roots, dir)
		}
	}
	sort.Strings(roots)
	return roots, nil
}

// watchRoots returns the directories containing the entry points. Nested
// roots are fine since the watcher ignores directories it already has.
func watchRoots(cwd string, entries []string) []string {
	var roots []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		if !filepath.IsAbs(entry) {
			entry = filepath.Join(cwd, entry)
		}
		dir := filepath.Dir(entry)
		if !seen[dir] {
			seen[dir] = true
			roots = append(roots, dir)
		}
	}
	return roots
}

func serveMetrics(s *session, addr string, collector *metrics.Collector) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("serve metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.AddError(fmt.Sprintf("Metrics server: %s", err))
		}
	}()
	s.log.AddInfo(fmt.Sprintf("Serving metrics on http://%s/metrics", listener.Addr()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
		}
	}, nil
}

func logSummary(log logger.Log, collector *metrics.Collector) {
	if log.Level > logger.LevelDebug {
		return
	}
	forwarded := collector.Count(resolver.Forwarded)
	declined := 0.0
	for _, kind := range resolver.AllDecisionKinds {
		if kind.IsDecline() {
			declined += collector.Count(kind)
		}
	}
	log.AddDebug(fmt.Sprintf("%.0f requests rewritten, %.0f declined so far", forwarded, declined))
}
