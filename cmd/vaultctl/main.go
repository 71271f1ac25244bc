package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-vaults/internal/config"
	"github.com/celerix-dev/celerix-vaults/internal/service"
)

var (
	dataDir    string
	backupDir  string
	noBackups  bool
	remoteAddr string

	vaults admin
	svc    *service.Service
)

var rootCmd = &cobra.Command{
	Use:   "vaultctl",
	Short: "vaultctl administers player vaults",
	Long: `Inspect and edit vaults, either through a running daemon's admin API
(--addr or VAULTS_ADDR) or directly on disk. When working on disk, stop the
daemon first: vaultctl assumes it is the only process using the data directory.`,
	SilenceUsage: true,
	// PersistentPreRunE runs before every subcommand and picks the backend.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("data-dir") {
			cfg.DataDir = dataDir
		}
		if cmd.Flags().Changed("backup-dir") {
			cfg.BackupDir = backupDir
		}
		if noBackups {
			cfg.BackupsEnabled = false
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		vaults, svc, err = connect(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if svc != nil {
			svc.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&remoteAddr, "addr", "", "Daemon admin API address (overrides VAULTS_ADDR)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Vault data directory (overrides VAULTS_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&backupDir, "backup-dir", "./backups", "Backup directory (overrides VAULTS_BACKUP_DIR)")
	rootCmd.PersistentFlags().BoolVar(&noBackups, "no-backups", false, "Do not keep a backup of rewritten vault files")

	rootCmd.AddCommand(ownersCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(deleteAllCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(viewsCmd)
	rootCmd.AddCommand(diagnosticsCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(v any) {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(bytes))
}
