// Command vine matches supplier catalog imports against the master product
// catalog.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/vine/config"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

func main() {
	root := &cobra.Command{
		Use:           "vine",
		Short:         "Supplier product matching and deduplication",
		Long:          "vine resolves supplier import lines against the master catalog, links SKUs and queues uncertain lines for review.\n\n" + config.Usage(),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var envFile string
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Load environment variables from this file when present")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, codeError(3, "%s", err)
		}
		if cfg.Version == "dev" {
			cfg.Version = version
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(loadConfig),
		newMatchCmd(loadConfig),
		newPreviewCmd(),
		newReindexCmd(loadConfig),
		newMigrateCmd(loadConfig),
	)

	if err := root.Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
