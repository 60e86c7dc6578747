// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDirEnv overrides the datastore data directory.
const DataDirEnv = "DATASTORE_DATA_DIR"

// GetDataDir returns the datastore data directory.
//
// Priority:
// 1. DATASTORE_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.datastore (default)
//
// The returned path is always absolute. Tilde (~) is expanded to the user's
// home directory and relative paths are made absolute.
//
// This is read before the config file is loaded (it locates the file), so it
// reads os.Getenv directly instead of going through viper.
func GetDataDir() string {
	if dataDir := os.Getenv(DataDirEnv); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".datastore"
	}
	return filepath.Join(homeDir, ".datastore")
}

// expandPath expands ~ and resolves to absolute path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
