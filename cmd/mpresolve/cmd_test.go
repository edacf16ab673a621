package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniplat/mpresolve/internal/config"
	"github.com/uniplat/mpresolve/internal/exitcode"
	"github.com/uniplat/mpresolve/internal/fs"
	"github.com/uniplat/mpresolve/internal/logger"
)

var projectFiles = []string{
	"/project/src/index.js",
	"/project/src/index.h5.js",
	"/project/src/util.ts",
	"/project/src/pages/home/index.tsx",
	"/project/src/pages/home/index.weapp.tsx",
}

func testSession(platform string) *session {
	return &session{
		cwd:      "/project",
		log:      logger.NewDeferLog(logger.LevelNone),
		platform: platform,
		options:  config.Options{PlatformEnv: "MPRESOLVE_TEST_PLATFORM_UNSET"},
	}
}

func TestRunResolve(t *testing.T) {
	files := fs.MockFS(projectFiles, fs.MockUnix, "/project")
	var out bytes.Buffer

	err := runResolve(testSession("h5"), files, &out, "src", []string{"./index", "./util", "./util.ts"})
	require.NoError(t, err)
	assert.Equal(t,
		"./index\t/project/src/index.h5.js\n"+
			"./util\t/project/src/util.ts\n"+
			"./util.ts\t/project/src/util.ts\n",
		out.String())
}

func TestRunResolveFailure(t *testing.T) {
	files := fs.MockFS(projectFiles, fs.MockUnix, "/project")
	s := testSession("")
	var out bytes.Buffer

	err := runResolve(s, files, &out, "src", []string{"./index", "./missing", "lodash"})
	assert.ErrorIs(t, err, errReported)
	assert.Equal(t, exitcode.Failure, exitcode.Get(err))
	assert.True(t, s.log.HasErrors())
	assert.Equal(t, "./index\t/project/src/index.js\n", out.String())

	msgs := s.log.Done()
	var errorsSeen []string
	for _, msg := range msgs {
		if msg.Kind == logger.Error {
			errorsSeen = append(errorsSeen, msg.Text)
		}
	}
	assert.Equal(t, []string{`Could not resolve "./missing"`, `Could not resolve "lodash"`}, errorsSeen)
}

func TestRunExplain(t *testing.T) {
	files := fs.MockFS(projectFiles, fs.MockUnix, "/project")
	var out bytes.Buffer

	require.NoError(t, runExplain(testSession("weapp"), files, &out, "src/pages/home"))
	assert.Equal(t, `- /project/src/pages/home.weapp.js
- /project/src/pages/home/index.weapp.js
- /project/src/pages/home.js
- /project/src/pages/home/index.js
- /project/src/pages/home.weapp.jsx
- /project/src/pages/home/index.weapp.jsx
- /project/src/pages/home.jsx
- /project/src/pages/home/index.jsx
- /project/src/pages/home.weapp.ts
- /project/src/pages/home/index.weapp.ts
- /project/src/pages/home.ts
- /project/src/pages/home/index.ts
- /project/src/pages/home.weapp.tsx
* /project/src/pages/home/index.weapp.tsx
- /project/src/pages/home.tsx
+ /project/src/pages/home/index.tsx

platform weapp: /project/src/pages/home/index.weapp.tsx
`, out.String())
}

func TestRunExplainNoMatch(t *testing.T) {
	files := fs.MockFS(projectFiles, fs.MockUnix, "/project")
	var out bytes.Buffer

	require.NoError(t, runExplain(testSession(""), files, &out, "/project/src/missing"))
	assert.Contains(t, out.String(), "platform (none): no candidate exists, /project/src/missing is left to default resolution\n")
}

func TestNewSession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mpresolve.yaml"), []byte("platform: weapp\ninclude: [\"@tarojs\"]\nlogLevel: warning\n"), 0o644))
	t.Chdir(dir)

	s, err := newSession(flags{})
	require.NoError(t, err)
	assert.Equal(t, []string{"@tarojs"}, s.options.Include)
	assert.Equal(t, logger.LevelWarning, s.log.Level)
	assert.Equal(t, "weapp", s.newResolver(fs.RealFS(), nil).Platform())

	s, err = newSession(flags{platform: "h5", logLevel: "silent", include: []string{"@dcloudio"}, extensions: []string{".ts"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"@dcloudio"}, s.options.Include)
	assert.Equal(t, []string{".ts"}, s.options.Extensions)
	assert.Equal(t, logger.LevelSilent, s.log.Level)
	assert.Equal(t, "h5", s.newResolver(fs.RealFS(), nil).Platform())
}

func TestNewSessionPlatformFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("UNI_PLATFORM", "mp-alipay")

	s, err := newSession(flags{logLevel: "silent"})
	require.NoError(t, err)
	r := s.newResolver(fs.RealFS(), nil)
	assert.Equal(t, "mp-alipay", r.Platform())

	// Read on every request
	t.Setenv("UNI_PLATFORM", "h5")
	assert.Equal(t, "h5", r.Platform())
}

func TestNewSessionInvalidFlags(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := newSession(flags{logLevel: "loud"})
	assert.EqualError(t, err, `invalid value for --log-level: "loud"`)
	assert.Equal(t, exitcode.Usage, exitcode.Get(err))

	_, err = newSession(flags{color: "sometimes"})
	assert.Error(t, err)

	_, err = newSession(flags{extensions: []string{"ts"}})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for _, text := range []string{"", "iife", "cjs", "esm"} {
		_, err := parseFormat(text)
		assert.NoError(t, err, text)
	}
	_, err := parseFormat("umd")
	assert.Error(t, err)
}

func TestWatchRoots(t *testing.T) {
	roots := watchRoots("/project", []string{"src/main.ts", "src/admin.ts", "/other/entry.js"})
	assert.Equal(t, []string{filepath.FromSlash("/project/src"), filepath.FromSlash("/other")}, roots)
}

func TestInputRoots(t *testing.T) {
	metafile := `{
  "inputs": {
    "src/main.js": {"bytes": 10, "imports": []},
    "src/pages/home/index.h5.js": {"bytes": 10, "imports": []},
    "../shared/foo.js": {"bytes": 10, "imports": []},
    "node_modules/ui/button.js": {"bytes": 10, "imports": []},
    "virtual:env": {"bytes": 10, "imports": []}
  },
  "outputs": {}
}`

	roots, err := inputRoots("/project", metafile)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.FromSlash("/project/src"),
		filepath.FromSlash("/project/src/pages/home"),
		filepath.FromSlash("/shared"),
	}, roots)

	roots, err = inputRoots("/project", "")
	require.NoError(t, err)
	assert.Empty(t, roots)

	_, err = inputRoots("/project", "{")
	assert.Error(t, err)
}

func TestVersionIgnoresBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mpresolve.yaml"), []byte("include: [unterminated"), 0o644))
	t.Chdir(dir)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "mpresolve version ")

	// Commands that resolve anything still refuse the broken file
	rootCmd.SetArgs([]string{"explain", "src/index"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, exitcode.Usage, exitcode.Get(err))
}
