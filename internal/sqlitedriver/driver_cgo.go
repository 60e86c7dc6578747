//go:build cgo

package sqlitedriver

import (
	"net/url"
	"strconv"

	_ "github.com/mutecomm/go-sqlcipher/v4" // registers "sqlite3" driver with encryption
)

// EncryptionSupported indicates whether the active SQLite driver supports
// SQLCipher encryption (PRAGMA key). True when built with CGO.
const EncryptionSupported = true

func pragmaParams() url.Values {
	return values(
		"_busy_timeout", strconv.Itoa(BusyTimeoutMillis),
		"_fk", "1",
	)
}
