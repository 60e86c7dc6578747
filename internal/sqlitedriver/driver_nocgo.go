//go:build !cgo

package sqlitedriver

import (
	"database/sql"
	"fmt"
	"net/url"

	"modernc.org/sqlite"
)

func init() {
	sql.Register(DriverName, &sqlite.Driver{})
}

// EncryptionSupported indicates whether the active SQLite driver supports
// SQLCipher encryption (PRAGMA key). False when built without CGO.
const EncryptionSupported = false

func pragmaParams() url.Values {
	return values(
		"_pragma", fmt.Sprintf("busy_timeout(%d)", BusyTimeoutMillis),
		"_pragma", "foreign_keys(1)",
	)
}
