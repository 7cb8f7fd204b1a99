package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mlnlabs/mln/logx"
	"github.com/spf13/cobra"
)

var (
	initConfigDir   string
	initConfigForce bool
)

const nodeConfigTemplate = `[node]
db_backend   = leveldb
db_path      = ./data/mln
genesis_path = ./genesis.yml

[rpc]
listen_addr  = :8080
cors_origins = *
rate_limit   = true

[metrics]
enabled     = true
listen_addr = :9100

[indexer]
enabled      = false
postgres_dsn =
`

const genesisTemplate = `genesis:
  chain_id: mln-local
  symbols: []
    # - symbol: MLN
    #   name: Example Token
    #   decimals: 6
    #   owner: <base58 address>
  balances: []
    # - address: <base58 address>
    #   symbol: MLN
    #   amount: "1000000"
  kv_entries: []
  multisigs: []
  migrations: []
    # - name: token-commands
    #   height: 1
  features:
    token_commands: true
    multisig: true
    kvstore: true
    allow_addrs: []
`

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write starter mln.ini and genesis.yml files",
	Run: func(cmd *cobra.Command, args []string) {
		initConfigFiles()
	},
}

func init() {
	rootCmd.AddCommand(initConfigCmd)
	initConfigCmd.Flags().StringVar(&initConfigDir, "dir", ".", "Directory to write configuration into")
	initConfigCmd.Flags().BoolVar(&initConfigForce, "force", false, "Overwrite existing files")
}

func initConfigFiles() {
	files := map[string]string{
		"mln.ini":     nodeConfigTemplate,
		"genesis.yml": genesisTemplate,
	}
	for name, content := range files {
		path := filepath.Join(initConfigDir, name)
		if !initConfigForce {
			if _, err := os.Stat(path); err == nil {
				logx.Error("CMD", fmt.Sprintf("%s already exists, use --force to overwrite", path))
				os.Exit(1)
			}
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			logx.Error("CMD", fmt.Sprintf("Write %s failed: %v", path, err))
			os.Exit(1)
		}
		logx.Info("CMD", fmt.Sprintf("Wrote %s", path))
	}
}
