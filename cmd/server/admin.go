package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-shop-chat/internal/repo"
	"github.com/tbourn/go-shop-chat/internal/services"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(*cobra.Command, []string) error {
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer closeDB(db)

		if err := repo.AutoMigrate(db); err != nil {
			return err
		}
		log.Info().Str("path", cfg.DBPath).Msg("schema up to date")
		return nil
	},
}

var tokenUserID int64

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an access token for an existing user (local testing)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if tokenUserID < 1 {
			return errors.New("--user must be a positive user id")
		}
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer closeDB(db)

		auth := services.NewAuthService(db, &services.TokenIssuer{
			Secret: []byte(cfg.Auth.TokenSecret),
			Issuer: cfg.Auth.Issuer,
			TTL:    cfg.Auth.TokenTTL,
		})
		tok, err := auth.TokenFor(cmd.Context(), tokenUserID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var adminEmail string

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account; the password is read from ADMIN_PASSWORD",
	RunE: func(cmd *cobra.Command, _ []string) error {
		password := os.Getenv("ADMIN_PASSWORD")
		if adminEmail == "" || password == "" {
			return errors.New("--email and ADMIN_PASSWORD are required")
		}
		cfg, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer closeDB(db)
		if err := repo.AutoMigrate(db); err != nil {
			return err
		}

		auth := services.NewAuthService(db, nil)
		auth.HashCost = cfg.Auth.HashCost
		u, err := auth.RegisterAdmin(cmd.Context(), adminEmail, password)
		if err != nil {
			return err
		}
		log.Info().Int64("user_id", u.ID).Msg("admin created")
		fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "shop-chat %s\n", version)
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenUserID, "user", 0, "user id to mint a token for")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "admin email address")
}
