package secretscmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cronsentinel/cronsentinel/internal/secrets"
)

type storeFactory func() *secrets.Store

func newSetCommand(newStore storeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newStore().Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret '%s' stored\n", args[0])
			return nil
		},
	}
}

func newGetCommand(newStore storeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a masked secret value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := newStore().Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("secret not found: %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret '%s': %s\n", args[0], secrets.Mask(value))
			return nil
		},
	}
}

func newDeleteCommand(newStore storeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := newStore().Delete(args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("secret not found: %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret '%s' deleted\n", args[0])
			return nil
		},
	}
}

func newListCommand(newStore storeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := newStore().Keys()
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No secrets stored")
				return nil
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func newExistsCommand(newStore storeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <key>",
		Short: "Check whether a secret is present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exists, err := newStore().Exists(args[0])
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("secret not found: %s", args[0])
			}
			return nil
		},
	}
}

func newImportCommand(newStore storeFactory) *cobra.Command {
	const defaultPrefix = "SECRET_"
	return &cobra.Command{
		Use:   "import",
		Short: "Import secrets from environment variables prefixed SECRET_",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := newStore().ImportFromEnv(defaultPrefix)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d secret(s)\n", count)
			return nil
		},
	}
}

func newBackupCommand(newStore storeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <file>",
		Short: "Copy the encrypted secrets store to file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := newStore().Backup(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no secrets store to back up")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up secrets to %s\n", args[0])
			return nil
		},
	}
}
