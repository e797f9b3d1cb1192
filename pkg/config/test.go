package config

import "time"

// NewForTest returns a config suitable for package tests without consulting
// the environment.
func NewForTest() *Config {
	cfg := &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 1,
		DatabaseConnectRetryDelay: 10 * time.Millisecond,
		DatabaseMaxRetries:        3,
		Hostname:                  "test",
		WorkerProcesses:           1,
	}
	loadTestConfig(cfg)
	return cfg
}

func loadTestConfig(cfg *Config) {
	cfg.DatabaseFilePath = ":memory:"
	cfg.ServerHost = "127.0.0.1"
	// Let the OS pick a free port so parallel test runs don't collide.
	cfg.ServerPort = 0
	cfg.SweepInterval = 100 * time.Millisecond
}
