package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/spf13/cobra"
)

// logger is configured from LOG_LEVEL and LOG_FORMAT before any command runs.
var logger = slog.Default()

var rootCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Face recognition classroom attendance",
	Long: `Attendance recognizes students in camera frames or still images and
records them present once per day.

A classifier proposes the most probable students for each face and every
proposal is verified against that student's gallery of reference embeddings.
Results are written to a SQLite, PostgreSQL or MariaDB ledger.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	logger = newLogger(config.Load().Log, os.Stderr)
	slog.SetDefault(logger)
}
