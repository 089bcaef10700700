// Command mrpc-echo-server is a minimal reference server: it registers
// an "echo" method returning its single argument unchanged and an
// "add" method summing two integers, then serves until signaled.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/msgpack-rpc/msgpack-rpc-go/config"
	"github.com/msgpack-rpc/msgpack-rpc-go/methods"
	"github.com/msgpack-rpc/msgpack-rpc-go/rpclog"
	"github.com/msgpack-rpc/msgpack-rpc-go/server"
)

func main() {
	var (
		listenURI  string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "mrpc-echo-server",
		Short: "Run a reference MessagePack-RPC echo server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServerConfig().WithURIs(listenURI)
			if configPath != "" {
				loaded, err := loadServerConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			logger := rpclog.New(cfg.Logging.ToLoggerConfig())
			defer logger.Sync()

			proc := methods.NewProcessor(logger, nil)
			if err := proc.Register("echo", func(v any) (any, error) { return v, nil }); err != nil {
				return err
			}
			if err := proc.Register("add", func(a, b int) (int, error) { return a + b, nil }); err != nil {
				return err
			}

			srv := server.New(cfg, proc, logger)
			if err := srv.Start(); err != nil {
				return err
			}
			logger.Info("server listening", "addrs", srv.Addrs())
			if fatal := srv.RunUntilSignal(); fatal != nil {
				return fatal
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listenURI, "listen", "tcp://127.0.0.1:18800", "URI to listen on")
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file overriding --listen")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadServerConfig(path string) (config.ServerConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return config.ServerConfig{}, err
	}
	defer f.Close()

	cfg := config.DefaultServerConfig()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return config.ServerConfig{}, err
	}
	return cfg, nil
}
