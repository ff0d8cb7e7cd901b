package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/taleclaw/cmd/taleclaw/internal"
	"github.com/tinyland-inc/taleclaw/pkg/migrate"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate on-disk data to current schema versions",
		Example: `  taleclaw migrate users
  taleclaw migrate users --dry-run
  taleclaw migrate users --data-dir /path/to/data`,
	}

	var opts migrate.Options

	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Upgrade user state files to the current schema version",
		Args:  cobra.NoArgs,
		Example: `  taleclaw migrate users
  taleclaw migrate users --dry-run`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if opts.DataDir == "" {
				cfg, err := internal.LoadConfig()
				if err != nil {
					return fmt.Errorf("error loading config: %w", err)
				}
				opts.DataDir = cfg.DataDir
			}

			result, err := migrate.RunUsers(opts)
			if err != nil {
				return err
			}
			if opts.DryRun {
				fmt.Println("Dry run, no files were modified.")
			}
			migrate.PrintSummary(result)
			return nil
		},
	}

	usersCmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Show what would be migrated without making changes")
	usersCmd.Flags().StringVar(&opts.DataDir, "data-dir", "",
		"Override data directory (default: from config)")

	cmd.AddCommand(usersCmd)

	return cmd
}
