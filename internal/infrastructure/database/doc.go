// Package database provides SQLite connectivity for Imperium Core.
//
// The engine keeps no point history in SQLite. The database holds the
// status report log written by package status and the schema_migrations
// bookkeeping table.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are files named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Each is applied in its own transaction.
package database
