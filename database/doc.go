// Package database opens the service's SQLite database through GORM and
// applies versioned schema migrations with golang-migrate. The task
// history archive is its only tenant.
//
//	database:
//	  enabled: true
//	  path: ./data/whisper-subtitle.db
package database
