//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of databarc.
//
// databarc is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// databarc is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with databarc. If not, see https://www.gnu.org/licenses/.

package main

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/betaplane/databarc"
	"github.com/betaplane/databarc/aggregate"
	"github.com/betaplane/databarc/config"
	"github.com/betaplane/databarc/store/postgres"
	"github.com/betaplane/databarc/writers"
)

var (
	envFile     string
	flagStation int
	flagSource  string
	flagCodes   []string
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "databarc",
		Short: "Temporal aggregation of observation series",
		Long: `databarc converts irregularly sampled observation series into daily and
monthly aggregates with source-specific reductions, and exports the results.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "Path to a .env file with runtime settings")
	root.AddCommand(newInitDBCommand(), newAggregateCommand(), newExportCommand())
	return root
}

func newInitDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			store, err := postgres.NewStore(postgres.WithDSN(cfg.PostgresDSN))
			if err != nil {
				return err
			}
			defer store.Close()
			return store.EnsureSchema(cmd.Context())
		},
	}
}

func newAggregateCommand() *cobra.Command {
	var (
		setName      string
		intervalName string
		workers      int
		commit       bool
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate a station's series with a named configuration set",
		Example: `  databarc aggregate --set dmi_daily --interval day --station 4250 --source dmi --commit
  databarc aggregate --set dmi_monthly --interval month --station 4250 --source dmi`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			interval, err := databarc.ParseInterval(intervalName)
			if err != nil {
				return err
			}
			set, err := aggregate.SetByName(setName)
			if err != nil {
				return err
			}
			if workers == 0 {
				workers = cfg.Workers
			}

			store, err := postgres.NewStore(postgres.WithDSN(cfg.PostgresDSN))
			if err != nil {
				return err
			}
			defer store.Close()

			codes := flagCodes
			if len(codes) == 0 {
				for code := range set {
					codes = append(codes, code)
				}
			}
			series, err := store.LoadSeries(cmd.Context(), flagStation, flagSource, codes)
			if err != nil {
				return err
			}
			if len(series) == 0 {
				return fmt.Errorf("no series for station %d source %q codes %s",
					flagStation, flagSource, strings.Join(codes, ","))
			}

			aggs, err := aggregate.RunThreads(cmd.Context(), interval, series, set, workers,
				aggregate.WithStore(store), aggregate.WithCommit(commit))
			for _, a := range aggs {
				log.Printf("INFO: %s: %d records", a.Name, len(a.Records))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&setName, "set", "", "Aggregation set name (dmi_daily, dmi_monthly, ncdc_daily)")
	cmd.Flags().StringVar(&intervalName, "interval", "day", "Aggregation interval (day or month)")
	cmd.Flags().IntVar(&flagStation, "station", 0, "Station identifier")
	cmd.Flags().StringVar(&flagSource, "source", "", "Data source identifier")
	cmd.Flags().StringSliceVar(&flagCodes, "code", nil, "Series codes to aggregate (default: all codes in the set)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (default from environment)")
	cmd.Flags().BoolVar(&commit, "commit", false, "Persist the aggregates to the store")
	cmd.MarkFlagRequired("set")
	cmd.MarkFlagRequired("station")
	cmd.MarkFlagRequired("source")
	return cmd
}

func newExportCommand() *cobra.Command {
	var (
		intervalName string
		outDir       string
		upload       bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export persisted aggregates to Parquet files",
		Example: `  databarc export --station 4250 --source dmi --code t --code r --interval day
  databarc export --station 4250 --source dmi --code r --interval month --s3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			interval, err := databarc.ParseInterval(intervalName)
			if err != nil {
				return err
			}
			if len(flagCodes) == 0 {
				return fmt.Errorf("at least one --code is required")
			}
			if outDir == "" {
				outDir = cfg.ExportDir
			}

			store, err := postgres.NewStore(postgres.WithDSN(cfg.PostgresDSN))
			if err != nil {
				return err
			}
			defer store.Close()

			var uploader *writers.S3Uploader
			if upload {
				if cfg.S3Bucket == "" {
					return fmt.Errorf("--s3 requires DATABARC_S3_BUCKET")
				}
				uploader, err = writers.NewS3Uploader(
					writers.WithS3Bucket(cfg.S3Bucket),
					writers.WithS3Region(cfg.S3Region),
					writers.WithS3Endpoint(cfg.S3Endpoint),
					writers.WithS3ContentType("application/vnd.apache.parquet"),
				)
				if err != nil {
					return err
				}
			}

			for _, code := range flagCodes {
				key := databarc.Key{Code: code, Station: flagStation, Source: flagSource}
				agg, err := store.FindExistingAggregate(cmd.Context(), key, interval)
				if err != nil {
					return err
				}
				records, err := store.LoadRecordsWithProvenance(cmd.Context(), agg.ID)
				if err != nil {
					return err
				}
				agg.Records = records

				filename := filepath.Join(outDir, writers.ExportFilename(agg))
				stats, err := writers.ExportParquet(filename, agg)
				if err != nil {
					return err
				}
				log.Printf("INFO: wrote %s (%d records)", filename, stats.RecordsWritten)

				if uploader != nil {
					objKey, err := uploader.Upload(cmd.Context(), filename)
					if err != nil {
						return err
					}
					log.Printf("INFO: uploaded s3://%s/%s", cfg.S3Bucket, objKey)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&intervalName, "interval", "day", "Aggregation interval (day or month)")
	cmd.Flags().IntVar(&flagStation, "station", 0, "Station identifier")
	cmd.Flags().StringVar(&flagSource, "source", "", "Data source identifier")
	cmd.Flags().StringSliceVar(&flagCodes, "code", nil, "Series codes to export")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (default from environment)")
	cmd.Flags().BoolVar(&upload, "s3", false, "Upload exported files to the configured bucket")
	cmd.MarkFlagRequired("station")
	cmd.MarkFlagRequired("source")
	return cmd
}
