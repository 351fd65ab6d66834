// Package database provides the SQLite connection used by oilfoxd.
//
// The database holds the reading history, devices adopted through
// discovery, and the poll log. It is opened in WAL mode with a single
// connection so that API reads do not block poll writes for long.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// with a matching .down.sql, read from any fs.FS. They are additive: new
// columns are nullable or carry a default.
package database
