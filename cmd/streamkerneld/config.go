package main

import (
	"encoding/json"
	"os"
)

// Config for streamkerneld
type Config struct {
	Listen      string `json:"listen"`
	Port        int    `json:"port"`
	Key         string `json:"key"`
	NoComp      bool   `json:"nocomp"`
	MaxFiles    int    `json:"maxfiles"`
	MaxPort     int    `json:"maxport"`
	CloseWait   int    `json:"closewait"`
	StatsLog    string `json:"statslog"`
	StatsPeriod int    `json:"statsperiod"`
	Pprof       bool   `json:"pprof"`
	Quiet       bool   `json:"quiet"`
	Log         string `json:"log"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}
