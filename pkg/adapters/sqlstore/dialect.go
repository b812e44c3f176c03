package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures what differs between the supported SQL engines.
type Dialect struct {
	// Name is reported by ComponentType, e.g. "sqlite".
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Schema is executed statement by statement on Initialize.
	Schema []string
	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
}

// SQLite is the dialect for modernc.org/sqlite.
// AUTOINCREMENT keeps identities from being reused after delete.
var SQLite = Dialect{
	Name:   "sqlite",
	Driver: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS records (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT    NOT NULL,
			last_name  TEXT    NOT NULL,
			date       INTEGER NOT NULL,
			is_read    INTEGER NOT NULL DEFAULT 0,
			text       TEXT    NOT NULL,
			color      INTEGER
		)`,
	},
}

// Postgres is the dialect for the pgx database/sql driver.
var Postgres = Dialect{
	Name:   "postgres",
	Driver: "pgx",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS records (
			id         BIGINT  GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			first_name TEXT    NOT NULL,
			last_name  TEXT    NOT NULL,
			date       BIGINT  NOT NULL,
			is_read    BOOLEAN NOT NULL DEFAULT FALSE,
			text       TEXT    NOT NULL,
			color      INTEGER
		)`,
	},
	Numbered: true,
}

// rebind rewrites "?" placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
