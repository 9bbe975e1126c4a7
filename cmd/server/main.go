package main

import (
	"fmt"
	"os"

	"gamelobby/backend/internal/config"

	"github.com/spf13/cobra"
)

var envDir string

var rootCmd = &cobra.Command{
	Use:   "lobby-server",
	Short: "Game lobby backend",
	Long: `Lobby membership, game lifecycle and presence service.

Configuration is read from a .env file and the environment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envDir, "env-dir", ".", "Directory containing the .env file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(envDir)
}

// @title           Game Lobby API
// @version         1.0
// @description     Lobby membership, game lifecycle and presence for the game lobby service.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
