// Package database provides the SQLite store behind the garage event history.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Additive schema migrations read from an fs.FS (see package migrations)
//   - Lifecycle and health checks
//
// All queries use parameterised statements and the database file is
// created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{
//	    Path:       cfg.Database.Path,
//	    WALMode:    cfg.Database.WALMode,
//	    Migrations: migrations.FS,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. New columns must be NULLABLE or carry a
// DEFAULT.
package database
