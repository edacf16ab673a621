package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/uniplat/mpresolve/internal/fs"
)

var explainCmd = &cobra.Command{
	Use:   "explain <path>",
	Short: "List the candidate files tried for an extensionless path",
	Long: `Prints every candidate in the order it is tried. The first existing one is
marked with "*", other existing ones with "+" and missing ones with "-".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExplain(current, fs.RealFS(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func runExplain(s *session, files fs.FS, out io.Writer, path string) error {
	r := s.newResolver(files, nil)
	if !files.IsAbs(path) {
		path = files.Join(s.cwd, path)
	}

	selected := ""
	for _, candidate := range r.Candidates(path) {
		mark := "-"
		if files.Exists(candidate) {
			mark = "+"
			if selected == "" {
				selected = candidate
				mark = "*"
			}
		}
		fmt.Fprintf(out, "%s %s\n", mark, candidate)
	}

	platform := r.Platform()
	if platform == "" {
		platform = "(none)"
	}
	if selected == "" {
		fmt.Fprintf(out, "\nplatform %s: no candidate exists, %s is left to default resolution\n", platform, path)
	} else {
		fmt.Fprintf(out, "\nplatform %s: %s\n", platform, selected)
	}
	return nil
}
