package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/honeynil/CampusGigService/internal/config"
	"github.com/honeynil/CampusGigService/internal/infrastructure/observability"
	"github.com/honeynil/CampusGigService/migrations"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the campus gigs database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(migrations.Up)
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps < 1 {
			return fmt.Errorf("steps must be at least 1, got %d", steps)
		}
		return withDB(func(db *sql.DB) error { return migrations.Down(db, steps) })
	},
}

var forceCmd = &cobra.Command{
	Use:   "force VERSION",
	Short: "Record VERSION as applied and clear the dirty flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withDB(func(db *sql.DB) error { return migrations.Force(db, version) })
	},
}

func init() {
	downCmd.Flags().Int("steps", 1, "number of migrations to roll back")
	rootCmd.AddCommand(upCmd, downCmd, forceCmd)
}

func withDB(fn func(db *sql.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.InitLogger(cfg.LogLevel)

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
}
