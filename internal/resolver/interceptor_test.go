package resolver

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniplat/mpresolve/internal/fs"
	"github.com/uniplat/mpresolve/internal/logger"
	"github.com/uniplat/mpresolve/internal/pipeline"
)

type recordingTarget struct {
	requests []pipeline.Request
	result   *pipeline.Result
	err      error
}

func (t *recordingTarget) Resolve(req pipeline.Request) (*pipeline.Result, error) {
	t.requests = append(t.requests, req)
	if t.err != nil {
		return nil, t.err
	}
	return t.result, nil
}

type recordingObserver struct {
	mutex     sync.Mutex
	decisions []Decision
}

func (o *recordingObserver) Observe(d Decision) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.decisions = append(o.decisions, d)
}

func (o *recordingObserver) kinds() []DecisionKind {
	var kinds []DecisionKind
	for _, d := range o.decisions {
		kinds = append(kinds, d.Kind)
	}
	return kinds
}

var projectFiles = []string{
	"/project/src/index.js",
	"/project/src/index.h5.js",
	"/project/src/util.ts",
	"/project/src/pages/home/index.weapp.tsx",
	"/project/src/pages/home/index.tsx",
	"/project/node_modules/lodash/index.js",
	"/project/node_modules/@tarojs/components/index.js",
	"/project/node_modules/@tarojs/components/index.h5.js",
}

func newTestResolver(platform string, include []string) (*Resolver, *recordingObserver) {
	observer := &recordingObserver{}
	r := NewResolver(fs.MockFS(projectFiles, fs.MockUnix, "/project"), Options{
		Platform: platform,
		Include:  include,
		Observer: observer,
	})
	return r, observer
}

func TestInterceptRewritesRelativeRequest(t *testing.T) {
	r, observer := newTestResolver("h5", nil)
	target := &recordingTarget{result: &pipeline.Result{Path: "/project/src/index.h5.js"}}

	req := pipeline.Request{
		Request:    "./index",
		Path:       "/project/src",
		Importer:   "/project/src/app.js",
		Kind:       "import-statement",
		Namespace:  "file",
		PluginData: "opaque",
		Context:    map[string]interface{}{"issuer": "app"},
	}
	result, handled, err := r.Intercept(req, target)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, &pipeline.Result{Path: "/project/src/index.h5.js"}, result)

	// Only the request field differs
	require.Len(t, target.requests, 1)
	expected := req
	expected.Request = "/project/src/index.h5.js"
	assert.Equal(t, expected, target.requests[0])
	assert.Equal(t, "./index", req.Request)

	require.Len(t, observer.decisions, 1)
	assert.Equal(t, Decision{
		Kind:      Forwarded,
		Request:   "./index",
		Candidate: "/project/src/index.h5.js",
		Probes:    1,
	}, observer.decisions[0])
}

func TestInterceptRewritesAbsoluteRequest(t *testing.T) {
	r, _ := newTestResolver("weapp", nil)
	target := &recordingTarget{result: &pipeline.Result{Path: "/x"}}

	_, handled, err := r.Intercept(pipeline.Request{Request: "/project/src/pages/home", Path: "/elsewhere"}, target)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "/project/src/pages/home/index.weapp.tsx", target.requests[0].Request)
}

func TestInterceptRelativeParentDirectory(t *testing.T) {
	r, _ := newTestResolver("", nil)
	target := &recordingTarget{result: &pipeline.Result{}}

	_, handled, err := r.Intercept(pipeline.Request{Request: "../util", Path: "/project/src/pages"}, target)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "/project/src/util.ts", target.requests[0].Request)
}

func TestInterceptFallsBackToPath(t *testing.T) {
	r, _ := newTestResolver("h5", nil)
	target := &recordingTarget{result: &pipeline.Result{}}

	_, handled, err := r.Intercept(pipeline.Request{Path: "/project/src/index"}, target)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "/project/src/index.h5.js", target.requests[0].Request)
	assert.Equal(t, "/project/src/index", target.requests[0].Path)
}

func TestInterceptDeclines(t *testing.T) {
	cases := []struct {
		name     string
		req      pipeline.Request
		include  []string
		expected DecisionKind
	}{
		{"Empty", pipeline.Request{}, nil, DeclinedNoRequest},
		{"HasExtension", pipeline.Request{Request: "./foo.ts", Path: "/project/src"}, nil, DeclinedHasExtension},
		{"HasUnknownExtension", pipeline.Request{Request: "./index.h5", Path: "/project/src"}, nil, DeclinedHasExtension},
		{"AbsoluteWithExtension", pipeline.Request{Request: "/project/src/index.js"}, nil, DeclinedHasExtension},
		{"Bare", pipeline.Request{Request: "lodash", Path: "/project/src"}, nil, DeclinedBare},
		{"BareScoped", pipeline.Request{Request: "@tarojs/components", Path: "/project/src"}, []string{"@tarojs"}, DeclinedBare},
		{"Dependency", pipeline.Request{Request: "./components", Path: "/project/node_modules/@tarojs"}, nil, DeclinedDependency},
		{"DependencyNotIncluded", pipeline.Request{Request: "./components", Path: "/project/node_modules/@tarojs"}, []string{"@vant"}, DeclinedDependency},
		{"NoCandidate", pipeline.Request{Request: "./missing", Path: "/project/src"}, nil, DeclinedNoCandidate},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r, observer := newTestResolver("h5", c.include)
			target := &recordingTarget{result: &pipeline.Result{Path: "unexpected"}}

			result, handled, err := r.Intercept(c.req, target)
			assert.NoError(t, err)
			assert.False(t, handled)
			assert.Nil(t, result)
			assert.Empty(t, target.requests)
			assert.Equal(t, []DecisionKind{c.expected}, observer.kinds())
		})
	}
}

func TestInterceptIncludedDependency(t *testing.T) {
	r, _ := newTestResolver("h5", []string{"@tarojs/components"})
	target := &recordingTarget{result: &pipeline.Result{}}

	_, handled, err := r.Intercept(pipeline.Request{Request: "./components", Path: "/project/node_modules/@tarojs"}, target)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "/project/node_modules/@tarojs/components/index.h5.js", target.requests[0].Request)
}

func TestEmptyIncludeEntryMatchesNothing(t *testing.T) {
	r, observer := newTestResolver("h5", []string{""})
	target := &recordingTarget{result: &pipeline.Result{}}

	result, handled, err := r.Intercept(pipeline.Request{Request: "./components", Path: "/project/node_modules/@tarojs"}, target)
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Nil(t, result)
	assert.Empty(t, target.requests)
	assert.Equal(t, []DecisionKind{DeclinedDependency}, observer.kinds())

	// Non-empty entries next to it still apply
	r, _ = newTestResolver("h5", []string{"", "@tarojs"})
	_, handled, err = r.Intercept(pipeline.Request{Request: "./components", Path: "/project/node_modules/@tarojs"}, target)
	require.NoError(t, err)
	assert.True(t, handled)
}

func TestIncludeNormalizesWindowsSeparators(t *testing.T) {
	r := NewResolver(fs.MockFS(projectFiles, fs.MockWindows, "C:\\project"), Options{
		Platform: "h5",
		Include:  []string{"@tarojs/components"},
	})
	target := &recordingTarget{result: &pipeline.Result{}}

	_, handled, err := r.Intercept(pipeline.Request{Request: ".\\components", Path: "C:\\project\\node_modules\\@tarojs"}, target)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "C:\\project\\node_modules\\@tarojs\\components\\index.h5.js", target.requests[0].Request)
}

func TestInterceptPropagatesTargetError(t *testing.T) {
	r, observer := newTestResolver("h5", nil)
	failure := errors.New("could not read file")
	target := &recordingTarget{err: failure}

	result, handled, err := r.Intercept(pipeline.Request{Request: "./index", Path: "/project/src"}, target)
	assert.True(t, handled)
	assert.Nil(t, result)
	assert.Same(t, failure, err)
	assert.Equal(t, []DecisionKind{ForwardedError}, observer.kinds())
}

func TestInterceptSurfacesNoResult(t *testing.T) {
	r, observer := newTestResolver("h5", nil)
	target := &recordingTarget{}

	result, handled, err := r.Intercept(pipeline.Request{Request: "./index", Path: "/project/src"}, target)
	assert.True(t, handled)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, []DecisionKind{ForwardedNoResult}, observer.kinds())
}

func TestInterceptLogsRewrite(t *testing.T) {
	log := logger.NewDeferLog(logger.LevelDebug)
	r := NewResolver(fs.MockFS(projectFiles, fs.MockUnix, "/project"), Options{Log: log})

	_, _, err := r.Intercept(pipeline.Request{Request: "./util", Path: "/project/src"}, &recordingTarget{result: &pipeline.Result{}})
	require.NoError(t, err)
	_, _, err = r.Intercept(pipeline.Request{Request: "lodash", Path: "/project/src"}, &recordingTarget{})
	require.NoError(t, err)

	msgs := log.Done()
	require.Len(t, msgs, 1)
	assert.Equal(t, logger.Debug, msgs[0].Kind)
	assert.Equal(t, PluginName, msgs[0].PluginName)
	assert.Equal(t, `Rewrote "./util" to "/project/src/util.ts"`, msgs[0].Text)
	assert.Equal(t, []string{
		`Checked for "/project/src/util.js"`,
		`Checked for "/project/src/util/index.js"`,
		`Checked for "/project/src/util.jsx"`,
		`Checked for "/project/src/util/index.jsx"`,
		`Found "/project/src/util.ts"`,
	}, msgs[0].Notes)
}

func TestApplyRegistersOnSourceHook(t *testing.T) {
	p := pipeline.New(logger.NewNopLog())
	r, _ := newTestResolver("h5", nil)
	r.Apply(p)

	// Fallback for requests the plugin declines
	p.EnsureHook(DefaultSourceHook).Tap("fallback", func(req pipeline.Request) (*pipeline.Result, bool, error) {
		return &pipeline.Result{Path: req.Request, External: true}, true, nil
	})
	p.EnsureHook(DefaultTargetHook).Tap("file", func(req pipeline.Request) (*pipeline.Result, bool, error) {
		return &pipeline.Result{Path: req.Request}, true, nil
	})

	result, err := p.Resolve(DefaultSourceHook, pipeline.Request{Request: "./index", Path: "/project/src"})
	require.NoError(t, err)
	assert.Equal(t, &pipeline.Result{Path: "/project/src/index.h5.js"}, result)

	result, err = p.Resolve(DefaultSourceHook, pipeline.Request{Request: "lodash", Path: "/project/src"})
	require.NoError(t, err)
	assert.Equal(t, &pipeline.Result{Path: "lodash", External: true}, result)
}

func TestApplyCustomHooks(t *testing.T) {
	p := pipeline.New(logger.NewNopLog())
	r := NewResolver(fs.MockFS(projectFiles, fs.MockUnix, "/project"), Options{
		SourceHook: "described-resolve",
		TargetHook: "raw-file",
	})
	r.Apply(p)

	_, ok := p.GetHook("raw-file")
	require.True(t, ok)

	// Nothing is tapped on the target yet, so the forward produces no result
	result, err := p.Resolve("described-resolve", pipeline.Request{Request: "./util", Path: "/project/src"})
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestExtname(t *testing.T) {
	for input, expected := range map[string]string{
		"./foo":         "",
		"./foo.ts":      ".ts",
		"./foo.h5":      ".h5",
		"./foo.":        ".",
		"./.env":        "",
		"..":            "",
		".":             "",
		"../":           "",
		"/a.b/c":        "",
		"/a/b.tar.gz":   ".gz",
		"C:\\a\\b.js":   ".js",
		"./dir.js/":     ".js",
		"lodash":        "",
		"@scope/pkg.js": ".js",
	} {
		assert.Equal(t, expected, Extname(input), input)
	}
}

func TestDecisionKinds(t *testing.T) {
	seen := make(map[string]bool)
	for _, kind := range AllDecisionKinds {
		name := kind.String()
		assert.False(t, seen[name], name)
		seen[name] = true
		assert.Equal(t, kind < Forwarded, kind.IsDecline())
	}
}
