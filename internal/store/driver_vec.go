//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// driverName selects mattn/go-sqlite3 so the native sqlite-vec extension
// provides vec_distance_cosine.
const driverName = "sqlite3"

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver.
	vec.Auto()
}

// serializeVector encodes a vector in sqlite-vec's float32 blob layout.
func serializeVector(v []float32) ([]byte, error) {
	return vec.SerializeFloat32(v)
}
