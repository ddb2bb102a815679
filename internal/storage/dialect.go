package storage

import (
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour behind a *sql.DB.
type Dialect int

const (
	Unknown Dialect = iota
	SQLite
	MySQL
	Postgres
)

// DialectOf maps a configured driver name to its dialect.
func DialectOf(driver string) Dialect {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite
	case "mysql":
		return MySQL
	case "postgres", "postgresql", "pgx":
		return Postgres
	default:
		return Unknown
	}
}

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite3"
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// Rebind rewrites '?' placeholders into the dialect's native form.
// Queries are written with '?' everywhere; only postgres needs $n.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

// Upsert renders "INSERT ... ON CONFLICT DO UPDATE" for the dialect.
// conflict lists the unique key columns, update the columns to overwrite.
func (d Dialect) Upsert(table string, columns, conflict, update []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(Placeholders(len(columns)))
	b.WriteString(")")

	sets := make([]string, 0, len(update))
	if d == MySQL {
		for _, col := range update {
			sets = append(sets, col+" = VALUES("+col+")")
		}
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
	} else {
		for _, col := range update {
			sets = append(sets, col+" = excluded."+col)
		}
		b.WriteString(" ON CONFLICT(")
		b.WriteString(strings.Join(conflict, ", "))
		b.WriteString(") DO UPDATE SET ")
	}
	b.WriteString(strings.Join(sets, ", "))
	return d.Rebind(b.String())
}

// Placeholders returns "?, ?, ..." with n entries.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
