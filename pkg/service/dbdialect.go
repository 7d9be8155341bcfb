package service

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// DatabaseDialect provides database-specific SQL syntax
type DatabaseDialect interface {
	// FitRunsTableSQL creates the fit run table when it is missing
	FitRunsTableSQL() string

	EscapeColumnName(name string) string

	// FloatType is the column type of a float64
	FloatType() string

	// PlaceholderFormat configures the query builders
	PlaceholderFormat() sq.PlaceholderFormat
}

// GetDialect returns the appropriate dialect for the given driver name
func GetDialect(driverName string) DatabaseDialect {
	switch driverName {
	case "mysql":
		return &MySQLDialect{}
	case "postgres":
		return &PostgreSQLDialect{}
	default:
		return &SQLiteDialect{}
	}
}

// fitRunSchema lists the column definitions of etasfit_fit_runs after the
// primary key, in FitRunColumns order.
var fitRunSchema = []string{
	"VARCHAR(36) NOT NULL",
	"VARCHAR(255) NOT NULL DEFAULT ''",
	"VARCHAR(8) NOT NULL",
	"VARCHAR(24) NOT NULL",
	"INT NOT NULL",
	"INT NOT NULL",
	"INT NOT NULL",
	"DOUBLE NOT NULL",
	"DOUBLE NOT NULL",
	"DOUBLE",
	"DOUBLE NOT NULL DEFAULT 0",
	"DOUBLE NOT NULL DEFAULT 0",
	"DOUBLE NOT NULL DEFAULT 0",
	"DOUBLE NOT NULL DEFAULT 0",
	"DOUBLE NOT NULL DEFAULT 0",
	"DOUBLE NOT NULL DEFAULT 0",
}

func fitRunColumnsSQL(d DatabaseDialect) string {
	var sb strings.Builder
	for i, c := range FitRunColumns {
		if c == "created_at" {
			continue
		}
		sb.WriteString("\n    ")
		sb.WriteString(d.EscapeColumnName(c))
		sb.WriteString(" ")
		sb.WriteString(strings.Replace(fitRunSchema[i], "DOUBLE", d.FloatType(), 1))
		sb.WriteString(",")
	}
	return sb.String()
}

// MySQLDialect implements MySQL-specific SQL syntax
type MySQLDialect struct{}

func (d *MySQLDialect) FitRunsTableSQL() string {
	return "CREATE TABLE IF NOT EXISTS `etasfit_fit_runs`\n(\n" +
		"    `gid` BIGINT UNSIGNED NOT NULL AUTO_INCREMENT," +
		fitRunColumnsSQL(d) + "\n" +
		"    `created_at` DATETIME(3) NOT NULL,\n" +
		"    PRIMARY KEY (`gid`),\n" +
		"    UNIQUE KEY `run_id` (`run_id`)\n);"
}

func (d *MySQLDialect) EscapeColumnName(name string) string {
	return "`" + name + "`"
}

func (d *MySQLDialect) FloatType() string { return "DOUBLE" }

func (d *MySQLDialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Question
}

// PostgreSQLDialect implements PostgreSQL-specific SQL syntax
type PostgreSQLDialect struct{}

func (d *PostgreSQLDialect) FitRunsTableSQL() string {
	return "CREATE TABLE IF NOT EXISTS etasfit_fit_runs\n(\n" +
		"    gid BIGSERIAL PRIMARY KEY," +
		fitRunColumnsSQL(d) + "\n" +
		"    \"created_at\" TIMESTAMP(3) NOT NULL,\n" +
		"    UNIQUE (\"run_id\")\n);"
}

func (d *PostgreSQLDialect) EscapeColumnName(name string) string {
	return `"` + name + `"`
}

func (d *PostgreSQLDialect) FloatType() string { return "DOUBLE PRECISION" }

func (d *PostgreSQLDialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Dollar
}

// SQLiteDialect implements SQLite-specific SQL syntax
type SQLiteDialect struct{}

func (d *SQLiteDialect) FitRunsTableSQL() string {
	return "CREATE TABLE IF NOT EXISTS `etasfit_fit_runs`\n(\n" +
		"    `gid` INTEGER PRIMARY KEY AUTOINCREMENT," +
		fitRunColumnsSQL(d) + "\n" +
		"    `created_at` DATETIME(3) NOT NULL,\n" +
		"    UNIQUE (`run_id`)\n);"
}

func (d *SQLiteDialect) EscapeColumnName(name string) string {
	return "`" + name + "`"
}

func (d *SQLiteDialect) FloatType() string { return "REAL" }

func (d *SQLiteDialect) PlaceholderFormat() sq.PlaceholderFormat {
	return sq.Question
}
