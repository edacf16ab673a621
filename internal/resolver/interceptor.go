package resolver

import (
	"fmt"
	"strings"

	"github.com/uniplat/mpresolve/internal/logger"
	"github.com/uniplat/mpresolve/internal/pipeline"
)

type DecisionKind uint8

const (
	DeclinedNoRequest DecisionKind = iota
	DeclinedHasExtension
	DeclinedBare
	DeclinedDependency
	DeclinedNoCandidate
	Forwarded
	ForwardedNoResult
	ForwardedError
)

func (kind DecisionKind) String() string {
	switch kind {
	case DeclinedNoRequest:
		return "no_request"
	case DeclinedHasExtension:
		return "has_extension"
	case DeclinedBare:
		return "bare"
	case DeclinedDependency:
		return "dependency"
	case DeclinedNoCandidate:
		return "no_candidate"
	case Forwarded:
		return "forwarded"
	case ForwardedNoResult:
		return "no_result"
	case ForwardedError:
		return "error"
	default:
		panic("Internal error")
	}
}

var AllDecisionKinds = []DecisionKind{
	DeclinedNoRequest,
	DeclinedHasExtension,
	DeclinedBare,
	DeclinedDependency,
	DeclinedNoCandidate,
	Forwarded,
	ForwardedNoResult,
	ForwardedError,
}

func (kind DecisionKind) IsDecline() bool {
	return kind < Forwarded
}

// Decision describes how a single request was handled. Probes is the number
// of existence checks made, zero if the generator never ran.
type Decision struct {
	Kind      DecisionKind
	Request   string
	Candidate string
	Probes    int
}

// Observer is notified of every decision. Implementations must be safe for
// concurrent use since hosts may resolve many requests in parallel.
type Observer interface {
	Observe(Decision)
}

type nopObserver struct{}

func (nopObserver) Observe(Decision) {}

// Extname returns the extension of the last path element the way node's
// "path.extname" does. A dot that starts the element is not an extension, so
// "./.env" has none while "./foo." has ".".
func Extname(p string) string {
	p = strings.TrimRight(p, "/\\")
	if i := strings.LastIndexAny(p, "/\\"); i != -1 {
		p = p[i+1:]
	}
	if p == ".." {
		return ""
	}
	dot := strings.LastIndexByte(p, '.')
	if dot <= 0 {
		return ""
	}
	return p[dot:]
}

// Intercept decides what to do with one request. If it returns handled ==
// false the caller should pass the request on unchanged. Otherwise a
// rewritten copy of the request was sent to "target" and its outcome is
// returned as is: the target's error, or its result, which may be nil.
func (r *Resolver) Intercept(req pipeline.Request, target pipeline.Target) (*pipeline.Result, bool, error) {
	inner := req.Request
	if inner == "" {
		inner = req.Path
	}
	if inner == "" {
		return r.decline(DeclinedNoRequest, inner, "", 0)
	}

	// Fully-specified files are never rewritten
	if Extname(inner) != "" {
		return r.decline(DeclinedHasExtension, inner, "", 0)
	}

	var absPath string
	switch {
	case r.fs.IsAbs(inner):
		absPath = inner

	case strings.HasPrefix(inner, "."):
		dir := req.Path
		if req.Request == "" {
			// The request is the path itself, so there's nothing to resolve against
			dir = ""
		}
		if dir == "" {
			dir = r.fs.Cwd()
		}
		absPath = r.fs.Join(dir, inner)
		if abs, ok := r.fs.Abs(absPath); ok {
			absPath = abs
		}

	default:
		// Bare package paths belong to later resolution stages
		return r.decline(DeclinedBare, inner, "", 0)
	}

	if strings.Contains(absPath, dependencyDir) && !r.isIncluded(absPath) {
		return r.decline(DeclinedDependency, inner, absPath, 0)
	}

	var trace *debugLogs
	if r.log.Level <= logger.LevelDebug {
		trace = &debugLogs{}
	}
	candidate, probes := r.generate(absPath, r.Platform(), trace)

	if candidate == absPath {
		if r.log.Level <= logger.LevelVerbose {
			r.log.AddMsg(logger.Msg{
				Kind:       logger.Verbose,
				PluginName: PluginName,
				Text:       fmt.Sprintf("No platform or extension match for %q", inner),
				Notes:      trace.notesOrNil(),
			})
		}
		return r.decline(DeclinedNoCandidate, inner, absPath, probes)
	}

	if r.log.Level <= logger.LevelDebug {
		r.log.AddMsg(logger.Msg{
			Kind:       logger.Debug,
			PluginName: PluginName,
			Text:       fmt.Sprintf("Rewrote %q to %q", inner, candidate),
			Notes:      trace.notesOrNil(),
		})
	}

	// Only the request string changes. Everything else the host attached to
	// the request is passed along untouched.
	forwarded := req
	forwarded.Request = candidate

	result, err := target.Resolve(forwarded)
	decision := Decision{Kind: Forwarded, Request: inner, Candidate: candidate, Probes: probes}
	switch {
	case err != nil:
		decision.Kind = ForwardedError
	case result == nil:
		decision.Kind = ForwardedNoResult
	}
	r.observer.Observe(decision)

	if err != nil {
		return nil, true, err
	}
	return result, true, nil
}

func (r *Resolver) decline(kind DecisionKind, request string, candidate string, probes int) (*pipeline.Result, bool, error) {
	if r.log.Level <= logger.LevelVerbose && kind != DeclinedNoCandidate {
		r.log.AddMsg(logger.Msg{
			Kind:       logger.Verbose,
			PluginName: PluginName,
			Text:       fmt.Sprintf("Skipped %q (%s)", request, kind),
		})
	}
	r.observer.Observe(Decision{Kind: kind, Request: request, Candidate: candidate, Probes: probes})
	return nil, false, nil
}

func (r *Resolver) isIncluded(path string) bool {
	if len(r.include) == 0 {
		return false
	}

	path = strings.ReplaceAll(path, "\\", "/")
	for _, item := range r.include {
		// An empty entry would match every path
		if item != "" && strings.Contains(path, item) {
			return true
		}
	}
	return false
}

// Apply registers the resolver on its source hook. Rewritten requests are
// dispatched to the target hook.
func (r *Resolver) Apply(p *pipeline.Pipeline) {
	target := p.Target(r.targetHook, "resolve multi platform file path")
	p.EnsureHook(r.sourceHook).Tap(PluginName, func(req pipeline.Request) (*pipeline.Result, bool, error) {
		return r.Intercept(req, target)
	})
}

func (d *debugLogs) notesOrNil() []string {
	if d == nil {
		return nil
	}
	return d.notes
}
