package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "modernc.org/sqlite"
)

// Engine names an embedded SQL engine variant.
type Engine string

const (
	// EngineModernc is the pure Go transpiled SQLite (driver "sqlite").
	EngineModernc Engine = "modernc"
	// EngineWASM is SQLite compiled to WebAssembly (driver "sqlite3").
	EngineWASM Engine = "wasm"
	// EngineUnavailable marks a store with no usable engine.
	EngineUnavailable Engine = "unavailable"
)

// DefaultEngines is the probing order used when none is configured.
var DefaultEngines = []Engine{EngineModernc, EngineWASM}

// ParseEngines converts configured engine names, dropping unknown ones.
func ParseEngines(names []string) []Engine {
	var engines []Engine
	for _, name := range names {
		switch e := Engine(strings.ToLower(strings.TrimSpace(name))); e {
		case EngineModernc, EngineWASM:
			engines = append(engines, e)
		}
	}
	return engines
}

// opener opens and configures a database file for one engine.
type opener func(path string) (*sql.DB, error)

var openers = map[Engine]opener{
	EngineModernc: func(path string) (*sql.DB, error) {
		return openSQL("sqlite", path)
	},
	EngineWASM: func(path string) (*sql.DB, error) {
		return openSQL("sqlite3", "file:"+(&url.URL{Path: path}).EscapedPath())
	},
}

func openSQL(driver, dsn string) (*sql.DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One physical writer per process; every statement and transaction is
	// serialized on this connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	// Capability probe: the engine must evaluate the table-valued pragma
	// functions the schema manager depends on.
	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM pragma_table_info('sqlite_master')").Scan(&n); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("engine lacks pragma functions: %w", err)
	}

	return conn, nil
}
