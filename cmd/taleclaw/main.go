// TaleClaw - multi-bot storytelling gateway for group chats.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/taleclaw/cmd/taleclaw/internal"
	"github.com/tinyland-inc/taleclaw/cmd/taleclaw/internal/gateway"
	"github.com/tinyland-inc/taleclaw/cmd/taleclaw/internal/migrate"
	"github.com/tinyland-inc/taleclaw/cmd/taleclaw/internal/version"
)

func NewTaleclawCommand() *cobra.Command {
	short := fmt.Sprintf("%s taleclaw - Storytelling Gateway v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "taleclaw",
		Short:   short,
		Example: "taleclaw gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		migrate.NewMigrateCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewTaleclawCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
