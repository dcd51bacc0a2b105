// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/database"
	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/internal/config"
)

func openCertificatePool(cfg *config.Config) (*database.Database, *certmanager.Manager, error) {
	db, err := database.New(&database.Config{
		DataDir:        cfg.DatabasePath,
		Logger:         slog.Default(),
		MetadataPlugin: cfg.MetadataPlugin,
		AssetPlugin:    cfg.AssetPlugin,
		CachePlugin:    cfg.CachePlugin,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	opts := []certmanager.ManagerOptionFunc{
		certmanager.WithLogger(slog.Default()),
		certmanager.WithStore(db),
	}
	if cfg.MasterSecret != "" {
		c, err := certmanager.NewCipher([]byte(cfg.MasterSecret))
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		opts = append(opts, certmanager.WithCipher(c))
	}
	if db.Cache() != nil {
		opts = append(opts, certmanager.WithSharedCache(db.Cache()))
	}
	certs, err := certmanager.NewManager(opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, certs, nil
}

func certsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage the signing certificate pool",
	}
	cmd.AddCommand(certsImportCommand())
	cmd.AddCommand(certsListCommand())
	cmd.AddCommand(certsRevokeCommand())
	return cmd
}

func certsImportCommand() *cobra.Command {
	var identifier, teamID, p12Path, password string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Add a PKCS#12 signing certificate to the pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			commonRun()
			p12, err := os.ReadFile(p12Path)
			if err != nil {
				return err
			}
			db, certs, err := openCertificatePool(configFromContext(cmd))
			if err != nil {
				return err
			}
			defer db.Close()
			record, err := certs.Provision(
				context.Background(),
				identifier,
				teamID,
				p12,
				password,
			)
			if err != nil {
				return err
			}
			fmt.Printf("imported certificate %s for %s\n", record.ID, record.PassTypeIdentifier)
			return nil
		},
	}
	cmd.Flags().StringVar(&identifier, "identifier", "", "pass type identifier (default is read from the certificate)")
	cmd.Flags().StringVar(&teamID, "team", "", "team identifier (default is read from the certificate)")
	cmd.Flags().StringVar(&p12Path, "p12", "", "path to the PKCS#12 file")
	cmd.Flags().StringVar(&password, "password", "", "PKCS#12 password")
	_ = cmd.MarkFlagRequired("p12")
	return cmd
}

func certsListCommand() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pool certificates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFromContext(cmd)
			db, err := database.New(&database.Config{
				DataDir:        cfg.DatabasePath,
				MetadataPlugin: cfg.MetadataPlugin,
				AssetPlugin:    cfg.AssetPlugin,
			})
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()
			records, err := db.ListCertificates(
				context.Background(),
				models.CertificateStatus(status),
			)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPASS TYPE\tTEAM\tSTATUS\tBUSINESS")
			for _, record := range records {
				business := "-"
				if record.BusinessID != nil {
					business = *record.BusinessID
				}
				fmt.Fprintf(
					w,
					"%s\t%s\t%s\t%s\t%s\n",
					record.ID,
					record.PassTypeIdentifier,
					record.TeamID,
					record.Status,
					business,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only list certificates with this status")
	return cmd
}

func certsRevokeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a pool certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			commonRun()
			db, certs, err := openCertificatePool(configFromContext(cmd))
			if err != nil {
				return err
			}
			defer db.Close()
			return certs.Revoke(context.Background(), args[0])
		},
	}
	return cmd
}
