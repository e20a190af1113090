// Package secretscmd implements the secrets management CLI surface,
// one cobra subcommand factory per operation.
package secretscmd

import (
	"github.com/spf13/cobra"

	"github.com/cronsentinel/cronsentinel/internal/secrets"
)

const (
	defaultSecretsFile = "./secrets.json.enc"
	defaultKeyFile     = "./secrets.key"
)

// NewRootCommand builds the cronsentinel-secrets CLI root command.
func NewRootCommand() *cobra.Command {
	var secretsFile, keyFile string

	root := &cobra.Command{
		Use:   "cronsentinel-secrets",
		Short: "Manage the encrypted secrets store used by cronsentinel jobs",
	}

	root.PersistentFlags().StringVarP(&secretsFile, "secrets-file", "f", defaultSecretsFile, "path to the encrypted secrets file")
	root.PersistentFlags().StringVarP(&keyFile, "key-file", "k", defaultKeyFile, "path to the encryption key file")

	store := func() *secrets.Store { return secrets.New(secretsFile, keyFile) }

	root.AddCommand(newSetCommand(store))
	root.AddCommand(newGetCommand(store))
	root.AddCommand(newDeleteCommand(store))
	root.AddCommand(newListCommand(store))
	root.AddCommand(newExistsCommand(store))
	root.AddCommand(newImportCommand(store))
	root.AddCommand(newBackupCommand(store))

	return root
}
