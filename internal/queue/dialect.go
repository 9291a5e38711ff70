package queue

import (
	"strconv"
	"strings"
)

// dialect captures the few places SQLite and Postgres disagree.
type dialect struct {
	name          string
	driverName    string
	numbered      bool
	jsonMerge     string
	lockClause    string
	migrationLock string
}

var sqliteDialect = dialect{
	name:       "sqlite",
	driverName: "sqlite",
	jsonMerge:  "json_patch(%s, ?)",
}

var postgresDialect = dialect{
	name:          "postgres",
	driverName:    "postgres",
	numbered:      true,
	jsonMerge:     "((%s)::jsonb || ?::jsonb)::text",
	lockClause:    " FOR UPDATE SKIP LOCKED",
	migrationLock: "SELECT pg_advisory_xact_lock(7630)",
}

// rebind rewrites ? placeholders into $n for drivers that need numbered parameters.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
