//go:build cgo

package store

import (
	// Register the libsql database/sql driver.
	_ "github.com/tursodatabase/go-libsql"
)
