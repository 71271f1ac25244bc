package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-vaults/internal/engine"
	"github.com/celerix-dev/celerix-vaults/pkg/schema"
	"github.com/celerix-dev/celerix-vaults/pkg/sdk"
)

func parseNumber(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, sdk.ErrInvalidNumber
	}
	return n, nil
}

var ownersCmd = &cobra.Command{
	Use:   "owners",
	Short: "List every owner with a vault file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owners, err := vaults.ListOwners()
		if err != nil {
			return err
		}
		for _, o := range owners {
			fmt.Println(o)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list <owner>",
	Short: "List an owner's vault numbers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		numbers, err := vaults.ListVaultNumbers(args[0])
		if err != nil {
			return err
		}
		printJSON(numbers)
		return nil
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists <owner> <number>",
	Short: "Report whether a vault has stored contents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := parseNumber(args[1])
		if err != nil {
			return err
		}
		ok, err := vaults.Exists(args[0], n)
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <owner> <number>",
	Short: "Print a vault's slots as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := parseNumber(args[1])
		if err != nil {
			return err
		}
		contents, err := vaults.Show(args[0], n)
		if err != nil {
			return err
		}
		overflow, err := vaults.Overflow(args[0], n)
		if err != nil {
			return err
		}
		printJSON(struct {
			sdk.VaultContents
			Overflow []*schema.SlotEntry `json:"overflow,omitempty"`
		}{contents, overflow})
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <owner> <number>",
	Short: "Delete one vault",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := parseNumber(args[1])
		if err != nil {
			return err
		}
		if err := vaults.Delete(args[0], n); err != nil {
			return err
		}
		fmt.Printf("Deleted vault %d of %s\n", n, args[0])
		return nil
	},
}

var deleteAllCmd = &cobra.Command{
	Use:   "delete-all <owner>",
	Short: "Delete every vault of an owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := vaults.DeleteAll(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted all vaults of %s\n", args[0])
		return nil
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Close every open vault and refuse new opens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := vaults.SetLocked(true); err != nil {
			return err
		}
		fmt.Println("Vaults locked")
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Allow vaults to be opened again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := vaults.SetLocked(false); err != nil {
			return err
		}
		fmt.Println("Vaults unlocked")
		return nil
	},
}

var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Show open vaults and who is viewing them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := vaults.Views()
		if err != nil {
			return err
		}
		locked, err := vaults.IsLocked()
		if err != nil {
			return err
		}
		printJSON(struct {
			sdk.ViewState
			Locked bool `json:"locked"`
		}{state, locked})
		return nil
	},
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Show recent persistence failures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		diags, err := vaults.Diagnostics()
		if err != nil {
			return err
		}
		printJSON(diags)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <destination-dir>",
	Short: "Copy every vault file into another data directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if svc == nil {
			return errors.New("migrate works on the data directory; run it without --addr")
		}
		dst, err := engine.NewPersistence(args[0], "", false)
		if err != nil {
			return err
		}
		n, err := engine.Migrate(svc.Store, dst)
		if err != nil {
			return err
		}
		fmt.Printf("Migrated %d vault files to %s\n", n, args[0])
		return nil
	},
}
