package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harperdean/rocklens/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with defaults",
	Long: `Create a config file populated with the default settings.

Without --path the file goes to ~/.config/rocklens/config.yaml. An existing
file is left alone unless --force is given.`,
	Example: `  # Create the default config
  rocklens init

  # Write to a custom location, overwriting if present
  rocklens init --path ./rocklens.yaml --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		force, _ := cmd.Flags().GetBool("force")

		written, err := config.WriteDefault(path, force)
		if err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", written)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().String("path", "", "Where to write the config file")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")
}
