// Package pipeline is a small hook-based resolver pipeline. Plugins tap named
// hooks and either handle a request or decline it, in which case the next tap
// on the same hook gets a turn. A tap may dispatch a new request to another
// hook, which is how a plugin hands a rewritten request to a later stage.
package pipeline

import (
	"fmt"

	"github.com/uniplat/mpresolve/internal/logger"
)

// Request is the unit of work flowing through the pipeline. Only Request and
// Path are interpreted by the multi-platform plugin. Everything else belongs
// to the host and is carried along verbatim.
type Request struct {
	// The unresolved import specifier, e.g. "./foo" or "lodash"
	Request string

	// The directory the request originates from
	Path string

	Importer   string
	Kind       string
	Namespace  string
	PluginData interface{}

	// Arbitrary host metadata. The map itself is shared between copies of the
	// request and must not be mutated by taps.
	Context map[string]interface{}
}

type Result struct {
	Path       string
	Namespace  string
	External   bool
	PluginData interface{}
}

// Handler is the body of a tap. Returning handled == false declines the
// request. When handled is true, a non-nil error is the outcome, otherwise
// the result is, and a nil result means "resolved to nothing".
type Handler func(req Request) (result *Result, handled bool, err error)

// Target is a downstream resolution stage. A nil result with a nil error
// means the stage produced no result.
type Target interface {
	Resolve(req Request) (*Result, error)
}

// TargetFunc adapts a function into a Target
type TargetFunc func(req Request) (*Result, error)

func (fn TargetFunc) Resolve(req Request) (*Result, error) {
	return fn(req)
}

type tap struct {
	name    string
	handler Handler
}

type Hook struct {
	name string
	taps []tap
}

func (h *Hook) Name() string {
	return h.name
}

// Tap appends a handler. Handlers run in registration order.
func (h *Hook) Tap(name string, handler Handler) {
	h.taps = append(h.taps, tap{name: name, handler: handler})
}

// Pipeline is configured up front and then only read, so it is safe to
// resolve through it from multiple goroutines once every tap is registered.
type Pipeline struct {
	hooks map[string]*Hook
	log   logger.Log
}

func New(log logger.Log) *Pipeline {
	return &Pipeline{
		hooks: make(map[string]*Hook),
		log:   log,
	}
}

// EnsureHook returns the named hook, creating it if necessary
func (p *Pipeline) EnsureHook(name string) *Hook {
	if hook, ok := p.hooks[name]; ok {
		return hook
	}
	hook := &Hook{name: name}
	p.hooks[name] = hook
	return hook
}

func (p *Pipeline) GetHook(name string) (*Hook, bool) {
	hook, ok := p.hooks[name]
	return hook, ok
}

// DoResolve runs the taps of a hook in order until one of them handles the
// request. If none does, the result is nil with no error.
func (p *Pipeline) DoResolve(hook *Hook, req Request, message string) (*Result, error) {
	if p.log.Level <= logger.LevelVerbose {
		p.log.AddVerbose(fmt.Sprintf("%s: %s %q from %q", hook.name, message, req.Request, req.Path))
	}

	for _, t := range hook.taps {
		result, handled, err := t.handler(req)
		if !handled {
			continue
		}
		if p.log.Level <= logger.LevelVerbose {
			switch {
			case err != nil:
				p.log.AddVerbose(fmt.Sprintf("%s: %s failed: %s", hook.name, t.name, err))
			case result == nil:
				p.log.AddVerbose(fmt.Sprintf("%s: %s produced no result", hook.name, t.name))
			default:
				p.log.AddVerbose(fmt.Sprintf("%s: %s resolved to %q", hook.name, t.name, result.Path))
			}
		}
		return result, err
	}

	return nil, nil
}

// Target binds a hook as a downstream stage. The hook is created if it does
// not exist yet so plugins can be applied before the stage is populated.
func (p *Pipeline) Target(name string, message string) Target {
	hook := p.EnsureHook(name)
	return TargetFunc(func(req Request) (*Result, error) {
		return p.DoResolve(hook, req, message)
	})
}

// Resolve dispatches a request to a hook by name
func (p *Pipeline) Resolve(hookName string, req Request) (*Result, error) {
	hook, ok := p.hooks[hookName]
	if !ok {
		return nil, fmt.Errorf("unknown hook %q", hookName)
	}
	return p.DoResolve(hook, req, "resolve")
}
