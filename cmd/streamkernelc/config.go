package main

import (
	"encoding/json"
	"os"
)

// Config for streamkernelc
type Config struct {
	LocalPort  int    `json:"localport"`
	RemoteAddr string `json:"remoteaddr"`
	Key        string `json:"key"`
	NoComp     bool   `json:"nocomp"`
	MaxFiles   int    `json:"maxfiles"`
	MaxPort    int    `json:"maxport"`
	CloseWait  int    `json:"closewait"`
	Quiet      bool   `json:"quiet"`
	Selftest   bool   `json:"selftest"`
	Log        string `json:"log"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
