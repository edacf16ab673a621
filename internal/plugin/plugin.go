// Package plugin hosts the multi-platform resolver inside esbuild. Every
// relative or absolute import in the "file" namespace goes through the
// resolver. Rewritten paths are handed back to esbuild's own resolver with
// "build.Resolve" so "sideEffects" annotations and later plugins still apply
// to the platform-specific file.
package plugin

import (
	"errors"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/uniplat/mpresolve/internal/pipeline"
	"github.com/uniplat/mpresolve/internal/resolver"
)

// Absolute paths (Unix or Windows) and anything starting with a dot. Bare
// package paths never reach the plugin.
const Filter = `^(\.|/|[A-Za-z]:[\\/])`

var kindNames = map[api.ResolveKind]string{
	api.ResolveEntryPoint:        "entry-point",
	api.ResolveJSImportStatement: "import-statement",
	api.ResolveJSRequireCall:     "require-call",
	api.ResolveJSDynamicImport:   "dynamic-import",
	api.ResolveJSRequireResolve:  "require-resolve",
	api.ResolveCSSImportRule:     "import-rule",
	api.ResolveCSSComposesFrom:   "composes-from",
	api.ResolveCSSURLToken:       "url-token",
}

func kindFromName(name string) api.ResolveKind {
	for kind, text := range kindNames {
		if text == name {
			return kind
		}
	}
	return api.ResolveNone
}

// Errors reported by esbuild's resolver for the rewritten path. They are
// handed back to esbuild as is.
type resolveError struct {
	errors   []api.Message
	warnings []api.Message
}

func (e *resolveError) Error() string {
	if len(e.errors) == 0 {
		return "resolve failed"
	}
	return e.errors[0].Text
}

func requestFromArgs(args api.OnResolveArgs) pipeline.Request {
	req := pipeline.Request{
		Request:    args.Path,
		Path:       args.ResolveDir,
		Importer:   args.Importer,
		Kind:       kindNames[args.Kind],
		Namespace:  args.Namespace,
		PluginData: args.PluginData,
	}
	if len(args.With) > 0 {
		req.Context = map[string]interface{}{"with": args.With}
	}
	return req
}

func New(r *resolver.Resolver) api.Plugin {
	return api.Plugin{
		Name: resolver.PluginName,
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: Filter, Namespace: "file"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return onResolve(r, build, args)
			})
		},
	}
}

func onResolve(r *resolver.Resolver, build api.PluginBuild, args api.OnResolveArgs) (api.OnResolveResult, error) {
	// Set by the target below. Each callback has its own copy, so concurrent
	// resolutions don't share it.
	var resolved api.ResolveResult

	target := pipeline.TargetFunc(func(req pipeline.Request) (*pipeline.Result, error) {
		options := api.ResolveOptions{
			PluginName: resolver.PluginName,
			Importer:   req.Importer,
			Namespace:  req.Namespace,
			ResolveDir: req.Path,
			Kind:       kindFromName(req.Kind),
			PluginData: req.PluginData,
		}
		if with, ok := req.Context["with"].(map[string]string); ok {
			options.With = with
		}

		resolved = build.Resolve(req.Request, options)
		if len(resolved.Errors) > 0 {
			return nil, &resolveError{errors: resolved.Errors, warnings: resolved.Warnings}
		}
		if resolved.Path == "" && !resolved.External {
			return nil, nil
		}
		return &pipeline.Result{
			Path:       resolved.Path,
			Namespace:  resolved.Namespace,
			External:   resolved.External,
			PluginData: resolved.PluginData,
		}, nil
	})

	result, handled, err := r.Intercept(requestFromArgs(args), target)
	if !handled {
		return api.OnResolveResult{}, nil
	}

	if err != nil {
		var re *resolveError
		if errors.As(err, &re) {
			return api.OnResolveResult{Errors: re.errors, Warnings: re.warnings}, nil
		}
		return api.OnResolveResult{}, fmt.Errorf("resolve %q: %w", args.Path, err)
	}

	// esbuild has no way to say "resolved to nothing" other than returning an
	// empty result, which lets the next resolver try
	if result == nil {
		return api.OnResolveResult{}, nil
	}

	out := api.OnResolveResult{
		Path:       result.Path,
		External:   result.External,
		Namespace:  result.Namespace,
		Suffix:     resolved.Suffix,
		PluginData: result.PluginData,
		Warnings:   resolved.Warnings,
	}
	if !resolved.SideEffects {
		out.SideEffects = api.SideEffectsFalse
	}
	return out, nil
}
