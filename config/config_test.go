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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 6, cfg.ZeroHour)
	assert.Equal(t, ".", cfg.ExportDir)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABARC_POSTGRES_DSN", "postgres://localhost/databarc")
	t.Setenv("DATABARC_WORKERS", "8")
	t.Setenv("DATABARC_S3_BUCKET", "exports")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/databarc", cfg.PostgresDSN)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "exports", cfg.S3Bucket)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DATABARC_EXPORT_DIR=/tmp/exports\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/exports", cfg.ExportDir)
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("DATABARC_WORKERS", "zero")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("DATABARC_WORKERS", "0")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("DATABARC_WORKERS", "2")
	t.Setenv("DATABARC_ZERO_HOUR", "24")
	_, err = Load("")
	assert.Error(t, err)
}
