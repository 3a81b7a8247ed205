package commands

import (
	"errors"
	"fmt"

	"github.com/pbinitiative/zenorchestrator/pkg/bpmn/model"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate process definition files without deploying them",
		Example: `  # Validate a single file
  zenorch validate order.yaml

  # Validate every definition of a directory
  zenorch validate processes/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errJoin error
			for _, file := range args {
				if err := validateFile(cmd, file); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", file, err)
					errJoin = errors.Join(errJoin, err)
				}
			}
			if errJoin != nil {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}
}

func validateFile(cmd *cobra.Command, file string) error {
	definitions, err := model.LoadFromFile(file)
	if err != nil {
		return err
	}
	for i := range definitions {
		if err := definitions[i].Validate(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s is valid (%d activities)\n", file, definitions[i].Key, len(definitions[i].Activities))
	}
	return nil
}
