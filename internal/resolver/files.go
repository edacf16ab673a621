package resolver

import (
	"strings"

	"github.com/uniplat/mpresolve/internal/fs"
	"github.com/uniplat/mpresolve/internal/pipeline"
)

// FileHandler is plain file resolution for hosts without a resolver of their
// own: the exact path if it has an extension, then each extension, then each
// extension on "index" inside the directory. Bare package paths are not
// handled.
func FileHandler(fs fs.FS, extensions []string) pipeline.Handler {
	if len(extensions) == 0 {
		extensions = DefaultExtensionOrder
	}

	return func(req pipeline.Request) (*pipeline.Result, bool, error) {
		path := req.Request
		switch {
		case path == "":
			return nil, false, nil
		case fs.IsAbs(path):
		case strings.HasPrefix(path, "."):
			dir := req.Path
			if dir == "" {
				dir = fs.Cwd()
			}
			path = fs.Join(dir, path)
		default:
			return nil, false, nil
		}

		if Extname(path) != "" && fs.Exists(path) {
			return &pipeline.Result{Path: path, Namespace: req.Namespace, PluginData: req.PluginData}, true, nil
		}
		for _, ext := range extensions {
			if fs.Exists(path + ext) {
				return &pipeline.Result{Path: path + ext, Namespace: req.Namespace, PluginData: req.PluginData}, true, nil
			}
		}
		for _, ext := range extensions {
			if index := fs.Join(path, "index"+ext); fs.Exists(index) {
				return &pipeline.Result{Path: index, Namespace: req.Namespace, PluginData: req.PluginData}, true, nil
			}
		}

		// Handled but unresolved, so later taps don't guess
		return nil, true, nil
	}
}
