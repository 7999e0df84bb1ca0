// Package database provides SQLite connectivity for homefleet.
//
// This package manages:
//   - Opening the database with WAL mode and foreign keys enabled
//   - Forward-only schema migrations read from an fs.FS
//   - Transactions (WithTx) and constraint-error classification
//   - The fixed-width UTC timestamp format shared by every table
//
// All queries elsewhere use parameterised statements.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
