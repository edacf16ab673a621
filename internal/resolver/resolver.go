package resolver

import (
	"fmt"
	"os"
	"strings"

	"github.com/uniplat/mpresolve/internal/fs"
	"github.com/uniplat/mpresolve/internal/logger"
)

// The implicit extensions tried for an extensionless import, in priority order
var DefaultExtensionOrder = []string{".js", ".jsx", ".ts", ".tsx"}

// The environment variable conventionally holding the platform identifier
const DefaultPlatformEnv = "UNI_PLATFORM"

// Paths containing this are third-party code and are left alone unless they
// match one of the "include" entries
const dependencyDir = "node_modules"

const (
	DefaultSourceHook = "resolve"
	DefaultTargetHook = "resolved"
)

const PluginName = "multi-platform"

type Options struct {
	// Defaults to DefaultExtensionOrder when empty
	Extensions []string

	// The platform identifier, e.g. "h5" or "weapp". Empty disables all
	// platform-specific probing.
	Platform string

	// If set, this is called on every request instead of using Platform. Use
	// PlatformFromEnv to follow an environment variable that may change while
	// the process is running.
	PlatformFunc func() string

	// Substrings that make a path under "node_modules" eligible for rewriting
	Include []string

	Log      logger.Log
	Observer Observer

	// The pipeline hooks used by Apply
	SourceHook string
	TargetHook string
}

// PlatformFromEnv returns a PlatformFunc that reads the named environment
// variable at call time
func PlatformFromEnv(name string) func() string {
	return func() string {
		return os.Getenv(name)
	}
}

type Resolver struct {
	fs           fs.FS
	log          logger.Log
	observer     Observer
	extensions   []string
	include      []string
	platform     string
	platformFunc func() string
	sourceHook   string
	targetHook   string
}

func NewResolver(fs fs.FS, options Options) *Resolver {
	r := &Resolver{
		fs:           fs,
		log:          options.Log,
		observer:     options.Observer,
		extensions:   options.Extensions,
		include:      options.Include,
		platform:     options.Platform,
		platformFunc: options.PlatformFunc,
		sourceHook:   options.SourceHook,
		targetHook:   options.TargetHook,
	}
	if len(r.extensions) == 0 {
		r.extensions = DefaultExtensionOrder
	}
	if r.log.AddMsg == nil {
		r.log = logger.NewNopLog()
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.sourceHook == "" {
		r.sourceHook = DefaultSourceHook
	}
	if r.targetHook == "" {
		r.targetHook = DefaultTargetHook
	}
	return r
}

// Platform returns the platform identifier in effect for the next request
func (r *Resolver) Platform() string {
	if r.platformFunc != nil {
		return r.platformFunc()
	}
	return r.platform
}

// Hooks returns the pipeline hooks Apply registers on and forwards to
func (r *Resolver) Hooks() (source string, target string) {
	return r.sourceHook, r.targetHook
}

func (r *Resolver) Extensions() []string {
	return append([]string{}, r.extensions...)
}

// forEachCandidate visits candidate paths for "base" in priority order until
// the visitor returns true.
//
// The loop over extensions is the outer loop. A platform-specific ".ts" file
// therefore loses to a generic ".js" file when ".js" comes first in the
// extension order. Project layouts rely on this, so it must not be "fixed" by
// hoisting the platform checks out of the loop.
func (r *Resolver) forEachCandidate(base string, platform string, visit func(candidate string) bool) {
	sep := string(r.fs.PathSeparator())

	for _, ext := range r.extensions {
		if platform != "" {
			// "foo.h5.js"
			if visit(base + "." + platform + ext) {
				return
			}

			// "foo/index.h5.js"
			if visit(base + sep + "index." + platform + ext) {
				return
			}

			// "foo/index" => "foo.h5/index.js", a platform-specific directory next
			// to the generic one. Only forward slashes match.
			if strings.HasSuffix(base, "/index") {
				if visit(base[:len(base)-len("/index")] + "." + platform + "/index" + ext) {
					return
				}
			}
		}

		// "foo.js"
		if visit(base + ext) {
			return
		}

		// "foo/index.js"
		if visit(base + sep + "index" + ext) {
			return
		}
	}
}

// Candidates lists every path Generate would probe for "base", in order
func (r *Resolver) Candidates(base string) []string {
	var candidates []string
	r.forEachCandidate(base, r.Platform(), func(candidate string) bool {
		candidates = append(candidates, candidate)
		return false
	})
	return candidates
}

// Generate returns the first candidate for "base" that exists, or "base"
// itself if none of them do. The path is used verbatim without validation.
func (r *Resolver) Generate(base string) string {
	result, _ := r.generate(base, r.Platform(), nil)
	return result
}

func (r *Resolver) generate(base string, platform string, debugLogs *debugLogs) (string, int) {
	result := base
	probes := 0

	r.forEachCandidate(base, platform, func(candidate string) bool {
		probes++
		if r.fs.Exists(candidate) {
			if debugLogs != nil {
				debugLogs.addNote(fmt.Sprintf("Found %q", candidate))
			}
			result = candidate
			return true
		}
		if debugLogs != nil {
			debugLogs.addNote(fmt.Sprintf("Checked for %q", candidate))
		}
		return false
	})

	return result, probes
}

type debugLogs struct {
	notes []string
}

func (d *debugLogs) addNote(text string) {
	d.notes = append(d.notes, text)
}
