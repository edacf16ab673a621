// Package multiplatform exposes the multi-platform resolver as an esbuild
// plugin.
//
//	result := api.Build(api.BuildOptions{
//		EntryPoints: []string{"src/main.js"},
//		Bundle:      true,
//		Plugins: []api.Plugin{multiplatform.Plugin(multiplatform.Options{
//			Platform: "h5",
//		})},
//	})
//
// With the platform set to "h5", an import of "./index" loads "index.h5.js"
// when it exists and "index.js" otherwise.
package multiplatform

import (
	"github.com/evanw/esbuild/pkg/api"

	"github.com/uniplat/mpresolve/internal/fs"
	"github.com/uniplat/mpresolve/internal/logger"
	"github.com/uniplat/mpresolve/internal/plugin"
	"github.com/uniplat/mpresolve/internal/resolver"
)

type Options struct {
	// Substrings that make a path under "node_modules" eligible for rewriting
	Include []string

	// Implicit extensions in priority order. Defaults to
	// [".js", ".jsx", ".ts", ".tsx"].
	Extensions []string

	// The platform identifier, e.g. "h5" or "weapp". Ignored when
	// PlatformFunc is set.
	Platform string

	// Called on every resolution. PlatformFromEnv("UNI_PLATFORM") follows the
	// environment variable.
	PlatformFunc func() string

	// Rewrites are logged at debug level and declined requests at verbose
	// level. Silent by default.
	LogLevel api.LogLevel
}

// PlatformFromEnv returns a function reading the named environment variable
// each time it is called
func PlatformFromEnv(name string) func() string {
	return resolver.PlatformFromEnv(name)
}

func Plugin(options Options) api.Plugin {
	r := resolver.NewResolver(fs.RealFS(), resolver.Options{
		Include:      options.Include,
		Extensions:   options.Extensions,
		Platform:     options.Platform,
		PlatformFunc: options.PlatformFunc,
		Log:          logger.NewStderrLog(logger.StderrOptions{LogLevel: convertLogLevel(options.LogLevel)}),
	})
	return plugin.New(r)
}

func convertLogLevel(level api.LogLevel) logger.LogLevel {
	switch level {
	case api.LogLevelVerbose:
		return logger.LevelVerbose
	case api.LogLevelDebug:
		return logger.LevelDebug
	case api.LogLevelInfo:
		return logger.LevelInfo
	case api.LogLevelWarning:
		return logger.LevelWarning
	case api.LogLevelError:
		return logger.LevelError
	default:
		return logger.LevelSilent
	}
}
