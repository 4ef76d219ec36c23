// Package database provides SQLite storage for the appliance bridge.
//
// The schema comes from the embedded migrations package:
//   - appliance_state: the last persisted state of each device, restored on
//     start so counters, discovered keys and recent events survive restarts
//   - appliance_snapshot_history: published snapshots, pruned by age
//   - appliance_audit_log: operator actions taken through the REST API
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql, with an
// optional .down.sql used by Rollback. Each runs in its own transaction.
package database
