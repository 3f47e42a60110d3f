// Command server runs the shop-chat service.
//
//	@title						Shop Chat API
//	@version					1.0
//	@description				Direct-message chat between shop users. REST covers accounts and history; live traffic uses the websocket gateway at /ws/chat.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the access token.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-shop-chat/internal/config"
	"github.com/tbourn/go-shop-chat/internal/repo"
	"github.com/tbourn/go-shop-chat/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "shop-chat",
	Short: "Real-time chat service for shop users",
	Long: `shop-chat serves the chat websocket gateway and its REST API.

Running it without a subcommand is the same as "shop-chat serve".`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		config.LoadDotenv(envFiles...)
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd, createAdminCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads configuration, installs the global logger and opens the
// database. Every subcommand starts here.
func bootstrap() (config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, nil, err
	}
	sysutil.SetupLogger(nil, cfg.LogLevel, cfg.LogPretty, sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, "shop-chat"))

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("open database")
		return cfg, nil, err
	}
	return cfg, db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
