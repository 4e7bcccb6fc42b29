package config

type BackendCfg struct {
	BaseURL    string `json:"baseUrl"`
	TimeoutSec int    `json:"timeoutSec"`
}

type UICfg struct {
	Listen         string `json:"listen"`
	MessageTTLMs   int    `json:"messageTtlMs"`
	DownloadTTLSec int    `json:"downloadTtlSec"`
}

// FallbackCfg holds the headline numbers shown when stats cannot be loaded.
type FallbackCfg struct {
	Customers    int64   `json:"customers"`
	Interactions int64   `json:"interactions"`
	ChurnRate    float64 `json:"churnRate"`
}

type LoggingCfg struct {
	Level string `json:"level"`
}

type RuntimeCfg struct {
	// StateDbPath is the bbolt file; empty keeps state in memory.
	StateDbPath string `json:"stateDbPath"`
	WatchConfig bool   `json:"watchConfig"`
	DebounceMs  int    `json:"debounceMs"`
}

type Config struct {
	Version  int         `json:"version"`
	Backend  BackendCfg  `json:"backend"`
	UI       UICfg       `json:"ui"`
	Fallback FallbackCfg `json:"fallback"`
	Logging  LoggingCfg  `json:"logging"`
	Runtime  RuntimeCfg  `json:"runtime"`
}
