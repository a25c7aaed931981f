package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/boristopalov/rlab/internal/store"
)

var checkpointsFlags struct {
	db        string
	algorithm string
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "List saved net checkpoints of an algorithm",
	RunE:  runCheckpoints,
}

func init() {
	checkpointsCmd.Flags().StringVar(&checkpointsFlags.db, "db", "", "checkpoint database (default from config)")
	checkpointsCmd.Flags().StringVar(&checkpointsFlags.algorithm, "algorithm", "", "algorithm name")
	checkpointsCmd.MarkFlagRequired("algorithm")
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	cfg, err := loadLabConfig()
	if err != nil {
		return err
	}
	if checkpointsFlags.db != "" {
		cfg.Checkpoint.DB = checkpointsFlags.db
	}

	db, err := store.Open(cfg.Checkpoint.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	cps, err := db.ListCheckpoints(cmd.Context(), checkpointsFlags.algorithm)
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no checkpoints for %s in %s\n", checkpointsFlags.algorithm, cfg.Checkpoint.DB)
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NET\tCKPT\tSAVED")
	for _, c := range cps {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Net, c.Ckpt, time.UnixMilli(c.CreatedAt).Format(time.RFC3339))
	}
	return tw.Flush()
}
