package config

import (
	"fmt"
	"os"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/mlnlabs/mln/migration"
)

// LoadGenesis reads and parses a genesis.yml file.
func LoadGenesis(path string) (*Genesis, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis %s: %w", path, err)
	}
	defer file.Close()

	var genesisFile GenesisFile
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&genesisFile); err != nil {
		return nil, fmt.Errorf("decode genesis %s: %w", path, err)
	}
	return &genesisFile.Genesis, nil
}

// ConvertMigrationSchedule builds the migration registry from the genesis
// schedule. Unknown or duplicated migration names stop startup here.
func ConvertMigrationSchedule(entries []MigrationSchedule) (*migration.Registry, error) {
	schedules := make([]migration.Schedule, len(entries))
	for i, e := range entries {
		schedules[i] = migration.Schedule{Name: e.Name, Height: e.Height}
	}
	registry, err := migration.NewRegistry(schedules)
	if err != nil {
		return nil, fmt.Errorf("invalid migration schedule: %w", err)
	}
	return registry, nil
}

// NodeConfig is the [node] section of mln.ini.
type NodeConfig struct {
	DBBackend   string `ini:"db_backend"`
	DBPath      string `ini:"db_path"`
	GenesisPath string `ini:"genesis_path"`
}

// RPCConfig is the [rpc] section of mln.ini.
type RPCConfig struct {
	ListenAddr  string `ini:"listen_addr"`
	CORSOrigins string `ini:"cors_origins"`
	RateLimit   bool   `ini:"rate_limit"`
}

// MetricsConfig is the [metrics] section of mln.ini.
type MetricsConfig struct {
	Enabled    bool   `ini:"enabled"`
	ListenAddr string `ini:"listen_addr"`
}

// IndexerConfig is the [indexer] section of mln.ini.
type IndexerConfig struct {
	Enabled     bool   `ini:"enabled"`
	PostgresDSN string `ini:"postgres_dsn"`
}

// LoadNodeConfig reads node settings from an .ini file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	nodeSection := cfg.Section("node")
	nodeCfg := &NodeConfig{
		DBBackend:   "leveldb",
		DBPath:      "./data/mln",
		GenesisPath: "./genesis.yml",
	}
	err = nodeSection.MapTo(nodeCfg)
	if err != nil {
		return nil, err
	}
	return nodeCfg, nil
}

func LoadRPCConfig(path string) (*RPCConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	rpcSection := cfg.Section("rpc")
	rpcCfg := &RPCConfig{
		ListenAddr:  ":8080",
		CORSOrigins: "*",
		RateLimit:   true,
	}
	err = rpcSection.MapTo(rpcCfg)
	if err != nil {
		return nil, err
	}
	return rpcCfg, nil
}

func LoadMetricsConfig(path string) (*MetricsConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	metricsSection := cfg.Section("metrics")
	metricsCfg := &MetricsConfig{
		ListenAddr: ":9100",
	}
	err = metricsSection.MapTo(metricsCfg)
	if err != nil {
		return nil, err
	}
	return metricsCfg, nil
}

func LoadIndexerConfig(path string) (*IndexerConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	indexerSection := cfg.Section("indexer")
	indexerCfg := &IndexerConfig{}
	err = indexerSection.MapTo(indexerCfg)
	if err != nil {
		return nil, err
	}
	return indexerCfg, nil
}
