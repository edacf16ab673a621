package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/uniplat/mpresolve/internal/config"
	"github.com/uniplat/mpresolve/internal/exitcode"
	"github.com/uniplat/mpresolve/internal/fs"
	"github.com/uniplat/mpresolve/internal/logger"
	"github.com/uniplat/mpresolve/internal/resolver"
)

var rootCmd = &cobra.Command{
	Use:   "mpresolve",
	Short: "Resolve extensionless imports to platform-specific files",
	Long: `mpresolve lets one source tree serve several target platforms. With the
platform set to "h5", an import of "./index" loads "index.h5.js" when it
exists and falls back to "index.js" otherwise.

The platform comes from --platform, the "platform" key of mpresolve.yaml,
or the UNI_PLATFORM environment variable (a .env file is read first).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(globalFlags)
		if err != nil {
			return err
		}
		current = s
		return nil
	},
}

type flags struct {
	platform   string
	include    []string
	extensions []string
	configPath string
	logLevel   string
	color      string
}

var globalFlags flags

// Everything a command needs once flags, config files and the environment
// have been combined
type session struct {
	cwd      string
	log      logger.Log
	options  config.Options
	platform string
}

var current *session

func init() {
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return exitcode.Set(err, exitcode.Usage)
	})

	f := rootCmd.PersistentFlags()
	f.StringVar(&globalFlags.platform, "platform", "", "Platform identifier, e.g. h5 or weapp")
	f.StringArrayVar(&globalFlags.include, "include", nil, "Rewrite paths inside node_modules containing this (repeatable)")
	f.StringArrayVar(&globalFlags.extensions, "ext", nil, "Implicit extension in priority order (repeatable, default .js .jsx .ts .tsx)")
	f.StringVar(&globalFlags.configPath, "config", "", "Config file (default: mpresolve.{yaml,yml,toml,json} in the working directory)")
	f.StringVar(&globalFlags.logLevel, "log-level", "", "verbose, debug, info, warning, error or silent (default info)")
	f.StringVar(&globalFlags.color, "color", "", "Force terminal colors on or off (true or false)")
}

func parseColor(text string) (logger.StderrColor, error) {
	switch text {
	case "":
		return logger.ColorIfTerminal, nil
	case "true":
		return logger.ColorAlways, nil
	case "false":
		return logger.ColorNever, nil
	}
	return 0, exitcode.Usagef("invalid value for --color: %q (expected true or false)", text)
}

func newSession(f flags) (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	if err := config.LoadDotEnv(cwd); err != nil {
		return nil, err
	}

	// Config warnings are printed once the log level is known
	deferred := logger.NewDeferLog(logger.LevelNone)

	var options config.Options
	path := f.configPath
	if path == "" {
		path, _ = config.Find(cwd)
	}
	if path != "" {
		if options, err = config.Load(path, deferred); err != nil {
			return nil, exitcode.Set(err, exitcode.Usage)
		}
	}

	level := options.LogLevel
	if f.logLevel != "" {
		var ok bool
		if level, ok = logger.ParseLogLevel(f.logLevel); !ok {
			return nil, exitcode.Usagef("invalid value for --log-level: %q", f.logLevel)
		}
	}
	if level == logger.LevelNone {
		level = logger.LevelInfo
	}

	color, err := parseColor(f.color)
	if err != nil {
		return nil, err
	}

	if len(f.include) > 0 {
		options.Include = f.include
	}
	if len(f.extensions) > 0 {
		for _, ext := range f.extensions {
			if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
				return nil, exitcode.Usagef("invalid value for --ext: %q (must start with \".\")", ext)
			}
		}
		options.Extensions = f.extensions
	}

	log := logger.NewStderrLog(logger.StderrOptions{
		ErrorLimit: 10,
		Color:      color,
		LogLevel:   level,
	})
	for _, msg := range deferred.Done() {
		log.AddMsg(msg)
	}

	return &session{
		cwd:      cwd,
		log:      log,
		options:  options,
		platform: f.platform,
	}, nil
}

func (s *session) newResolver(files fs.FS, observer resolver.Observer) *resolver.Resolver {
	options := resolver.Options{
		Extensions: s.options.Extensions,
		Include:    s.options.Include,
		Log:        s.log,
		Observer:   observer,
		SourceHook: s.options.SourceHook,
		TargetHook: s.options.TargetHook,
	}

	// An explicit platform is fixed for the whole run. Otherwise follow the
	// environment variable so a long-running watch picks up changes to it.
	if s.platform != "" || s.options.Platform != "" {
		options.Platform = s.options.ResolvePlatform(s.platform)
	} else {
		options.PlatformFunc = resolver.PlatformFromEnv(s.options.PlatformEnvName())
	}

	return resolver.NewResolver(files, options)
}

// absDir makes a directory flag absolute, defaulting to the working directory
func (s *session) absDir(files fs.FS, dir string) string {
	if dir == "" {
		return s.cwd
	}
	if files.IsAbs(dir) {
		return dir
	}
	return files.Join(s.cwd, dir)
}
