package config

const (
	DefaultConfigPath  = "./mln.ini"
	DefaultGenesisPath = "./genesis.yml"
)
