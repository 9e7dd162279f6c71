package main

import (
	"os"
	"strconv"
	"time"
)

// envPrefix of variables which provide flag defaults.
const envPrefix = "PLAYER_"

func envString(name, def string) string {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) int {
	v, err := strconv.Atoi(os.Getenv(envPrefix + name))
	if err != nil {
		return def
	}
	return v
}

func envDuration(name string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(envPrefix + name))
	if err != nil {
		return def
	}
	return v
}

func envBool(name string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(envPrefix + name))
	if err != nil {
		return def
	}
	return v
}
