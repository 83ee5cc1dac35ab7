package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"blik/core/appbootstrap"
	"blik/core/store"
)

var (
	upgradeList   bool
	upgradeDryRun bool
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Apply one-time data upgrade steps",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := store.NewDB(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		if err := store.ApplyMigrations(ctx, db, logger); err != nil {
			return err
		}
		runtime, err := appbootstrap.Compose(cfg, db, logger)
		if err != nil {
			return err
		}

		if upgradeList {
			statuses, err := runtime.Upgrades.Status(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tSTATUS\tAPPLIED\tERROR")
			for _, st := range statuses {
				applied := ""
				if st.AppliedAt != nil {
					applied = st.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.Name, st.Status, applied, st.Error)
			}
			return w.Flush()
		}

		return runtime.Upgrades.Run(ctx, upgradeDryRun)
	},
}

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeList, "list", false, "list registered steps and their status")
	upgradeCmd.Flags().BoolVar(&upgradeDryRun, "dry-run", false, "preview pending steps without applying them")
}
