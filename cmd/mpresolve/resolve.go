package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/uniplat/mpresolve/internal/fs"
	"github.com/uniplat/mpresolve/internal/pipeline"
	"github.com/uniplat/mpresolve/internal/resolver"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <request>...",
	Short: "Print the file each request resolves to",
	Long: `Resolves each request the way a build would and prints the request and the
resolved path separated by a tab. Relative requests are resolved against
--from, which defaults to the working directory.`,
	Example: `  mpresolve resolve --platform h5 --from src ./index ./pages/home`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		return runResolve(current, fs.RealFS(), cmd.OutOrStdout(), from, args)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().String("from", "", "Directory the requests are made from")
}

// newPipeline sets up the resolver on its source hook with plain file
// resolution behind it on both hooks
func newPipeline(s *session, files fs.FS) (*pipeline.Pipeline, string) {
	r := s.newResolver(files, nil)
	p := pipeline.New(s.log)
	r.Apply(p)

	source, target := r.Hooks()
	handler := resolver.FileHandler(files, r.Extensions())
	p.EnsureHook(source).Tap("files", handler)
	p.EnsureHook(target).Tap("files", handler)
	return p, source
}

func runResolve(s *session, files fs.FS, out io.Writer, from string, requests []string) error {
	p, source := newPipeline(s, files)
	dir := s.absDir(files, from)

	for _, request := range requests {
		result, err := p.Resolve(source, pipeline.Request{
			Request:   request,
			Path:      dir,
			Namespace: "file",
		})
		switch {
		case err != nil:
			s.log.AddError(fmt.Sprintf("Could not resolve %q: %s", request, err))
		case result == nil:
			s.log.AddError(fmt.Sprintf("Could not resolve %q", request))
		default:
			fmt.Fprintf(out, "%s\t%s\n", request, result.Path)
		}
	}

	if s.log.HasErrors() {
		return errReported
	}
	return nil
}
