package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/gilkh/livret/internal/config"
	"github.com/gilkh/livret/internal/database"
)

var errMongoReadOnly = errors.New("DB_TYPE=mongodb is read-only; this command needs a relational database")

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.LoadServerSettings().DBType == dbTypeMongo {
				return errMongoReadOnly
			}
			if err := database.Initialize(); err != nil {
				return err
			}
			defer database.Close()
			return writeLine(cmd.OutOrStdout(), "migrations applied")
		},
	}
}
