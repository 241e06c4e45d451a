// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration knobs for the HTTP server and the store.
type Config struct {
	HTTPAddr        string
	DBPath          string
	WarehouseID     string
	CORSOrigin      string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		DBPath:          getenv("DB_PATH", "file:pharmacy.db?cache=shared&mode=rwc"),
		WarehouseID:     getenv("WAREHOUSE_ID", "main"),
		CORSOrigin:      getenv("CORS_ORIGIN", "*"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),
		MaxBodyBytes:    int64(atoienv("MAX_BODY_BYTES", 1<<20)),
	}
}
