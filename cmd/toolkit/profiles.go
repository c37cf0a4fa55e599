package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	storeimpl "github.com/fargraph/go-fargraph/pkg/store/impl"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manages the denormalized user profiles view",
	Long:  `Manages the denormalized user profiles view`,
	Args:  cobra.ExactArgs(1),
}

var profilesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refreshes the user_profiles materialized view",
	Long:  `Refreshes the user_profiles materialized view`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		postgresURI, err := cmd.Flags().GetString("postgres-uri")
		if err != nil {
			return errors.New("failed to parse postgres-uri")
		}
		ctx := context.Background()

		db, err := storeimpl.New(ctx, postgresURI, storeimpl.EnvironmentDev)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %s", err)
		}
		defer db.Close()

		start := time.Now()
		if err := db.RefreshUserProfiles(ctx); err != nil {
			return fmt.Errorf("refreshing user profiles: %s", err)
		}
		fmt.Printf("user_profiles refreshed in %s\n", time.Since(start))
		return nil
	},
}
