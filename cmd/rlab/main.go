package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rlab",
	Short: "rlab runs reinforcement learning lab sessions from a declarative spec.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "lab config file (YAML)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	for _, envFile := range []string{
		".env",
		"../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
