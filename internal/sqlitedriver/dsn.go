package sqlitedriver

import (
	"net/url"
	"strings"
)

// DriverName is the database/sql driver name registered by this package.
const DriverName = "sqlite3"

// BusyTimeoutMillis is how long a connection waits on a locked database.
const BusyTimeoutMillis = 5000

// FileDSN returns a data source name for the database file at path with a
// busy timeout and foreign key enforcement.
func FileDSN(path string) string {
	q := pragmaParams()
	if strings.Contains(path, "?") {
		return path + "&" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}

// IsMemory reports whether path names an in-memory database.
func IsMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

func values(pairs ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Add(pairs[i], pairs[i+1])
	}
	return v
}
