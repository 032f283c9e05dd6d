package util

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewRunID returns an ETL run id that sorts by start time,
// e.g. run_20240110T073015Z_1f2e3d4c.
func NewRunID(startedAt time.Time) string {
	bytes := make([]byte, 4)
	_, _ = rand.Read(bytes)
	return "run_" + startedAt.UTC().Format("20060102T150405Z") + "_" + hex.EncodeToString(bytes)
}
