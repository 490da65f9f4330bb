// Package database opens the sensor node's local SQLite file and applies
// schema migrations to it.
//
// The store is small: a schema_migrations table plus the reading outbox,
// where measurements that could not be published wait for the next
// broker session. Migrations are supplied as an fs.FS (normally the
// embedded migrations package) so tests can use their own.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
//	    return err
//	}
package database
