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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name used for keyring lookups.
	KeyringService = "datastore"
	// KeyringPasswordKey is the keyring entry holding the database password.
	KeyringPasswordKey = "database_password"
)

// ResolvePassword returns the database password.
//
// Order: the explicit Password field, then the contents of PasswordFile
// (trailing whitespace trimmed), then the system keyring when UseKeyring is
// set. A missing file or keyring entry falls through to the next source; an
// empty string is returned when no source has a password.
func (d DSN) ResolvePassword() (string, error) {
	if d.Password != "" {
		return d.Password, nil
	}

	if d.PasswordFile != "" {
		data, err := os.ReadFile(d.PasswordFile)
		switch {
		case err == nil:
			return strings.TrimRight(string(data), "\r\n\t "), nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("failed to read password file %s: %w", d.PasswordFile, err)
		}
	}

	if !d.UseKeyring {
		return "", nil
	}
	secret, err := keyring.Get(KeyringService, KeyringPasswordKey)
	if err == nil {
		return secret, nil
	}
	// Non-fatal: the keyring may be absent or hold no entry.
	return "", nil
}

// SavePasswordToKeyring stores the database password in the system keyring.
func SavePasswordToKeyring(password string) error {
	return keyring.Set(KeyringService, KeyringPasswordKey, password)
}
