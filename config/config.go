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

// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings of the aggregation tools.
type Config struct {
	PostgresDSN string // Connection string for the series store
	MongoURI    string // Connection string for observation ingest
	Workers     int    // Worker pool size for batch aggregation
	ZeroHour    int    // Default daily cycle boundary hour (UTC)
	ExportDir   string // Directory for exported files
	S3Bucket    string // Bucket for uploaded exports, empty disables upload
	S3Region    string // Region of the export bucket
	S3Endpoint  string // Custom S3 endpoint, for S3-compatible services
}

// Load reads the configuration from the environment. When envFile is
// non-empty it is loaded first; a missing file is an error, since an
// explicitly named file is expected to exist.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	} else {
		// Best effort: a .env in the working directory seeds the
		// environment without overriding what is already set.
		godotenv.Load()
	}

	cfg := &Config{
		PostgresDSN: getenvDefault("DATABARC_POSTGRES_DSN", ""),
		MongoURI:    getenvDefault("DATABARC_MONGO_URI", "mongodb://localhost:27017"),
		ExportDir:   getenvDefault("DATABARC_EXPORT_DIR", "."),
		S3Bucket:    getenvDefault("DATABARC_S3_BUCKET", ""),
		S3Region:    getenvDefault("DATABARC_S3_REGION", ""),
		S3Endpoint:  getenvDefault("DATABARC_S3_ENDPOINT", ""),
	}

	var err error
	if cfg.Workers, err = getenvInt("DATABARC_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.ZeroHour, err = getenvInt("DATABARC_ZERO_HOUR", 6); err != nil {
		return nil, err
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("config: DATABARC_WORKERS must be at least 1, got %d", cfg.Workers)
	}
	if cfg.ZeroHour < 0 || cfg.ZeroHour > 23 {
		return nil, fmt.Errorf("config: DATABARC_ZERO_HOUR must be in [0, 23], got %d", cfg.ZeroHour)
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
