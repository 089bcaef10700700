// Command mrpc-echo-client dials a MessagePack-RPC server and invokes
// one method, printing the result or the failure it received.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/msgpack-rpc/msgpack-rpc-go/client"
	"github.com/msgpack-rpc/msgpack-rpc-go/config"
	"github.com/msgpack-rpc/msgpack-rpc-go/rpclog"
)

func main() {
	var (
		serverURI  string
		configPath string
		method     string
		timeout    time.Duration
		rawArgs    []string
	)

	cmd := &cobra.Command{
		Use:   "mrpc-echo-client [args...]",
		Short: "Call a method on a MessagePack-RPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawArgs = args

			cfg := config.DefaultClientConfig().WithURIs(serverURI).WithCallTimeout(timeout)
			if configPath != "" {
				loaded, err := loadClientConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			logger := rpclog.New(cfg.Logging.ToLoggerConfig())
			defer logger.Sync()

			c, err := client.New(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Stop()

			params, err := parseParams(rawArgs)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout())
			defer cancel()

			result, err := client.Call[any](c, ctx, method, params...)
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURI, "server", "tcp://127.0.0.1:18800", "server URI to dial")
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file overriding --server")
	cmd.Flags().StringVar(&method, "method", "echo", "method name to call")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "call timeout")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseParams projects each positional CLI argument into a Go value:
// an argument that parses as a number is passed as a float64, one that
// parses as any other JSON value (bool, string, null, array, object) is
// passed as the decoded value, and anything else is passed through as a
// plain string.
func parseParams(args []string) ([]any, error) {
	params := make([]any, 0, len(args))
	for _, a := range args {
		if n, err := strconv.ParseFloat(a, 64); err == nil {
			params = append(params, n)
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(a), &v); err == nil {
			params = append(params, v)
			continue
		}
		params = append(params, a)
	}
	return params, nil
}

func loadClientConfig(path string) (config.ClientConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return config.ClientConfig{}, err
	}
	defer f.Close()

	cfg := config.DefaultClientConfig()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}
