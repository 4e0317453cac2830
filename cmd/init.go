package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yarlson/coralph/cmd/internal"
	"github.com/yarlson/coralph/internal/loop"
	"github.com/yarlson/coralph/internal/scaffold"
)

// runInit scaffolds the working files for workDir. When stdin is a terminal
// and the project type cannot be detected, the user picks one from a menu.
func runInit(cmd *cobra.Command, workDir string) error {
	opts := scaffold.Options{ConfigFile: GetConfigFile()}

	if internal.IsInteractiveReader(cmd.InOrStdin()) {
		opts.Choose = func() (scaffold.ProjectType, error) {
			labels := make([]string, len(scaffold.ProjectTypes))
			for i, pt := range scaffold.ProjectTypes {
				labels[i] = pt.Label()
			}
			idx, err := internal.PromptSelection(cmd.OutOrStdout(), cmd.InOrStdin(), "Select project type", labels, 0)
			if err != nil {
				return "", err
			}
			return scaffold.ProjectTypes[idx], nil
		}
	}

	if err := scaffold.Run(workDir, opts, cmd.OutOrStdout()); err != nil {
		return &exitError{code: loop.ExitFatal, msg: err.Error()}
	}
	return nil
}
