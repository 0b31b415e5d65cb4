// Command steeze-vault relays records from a Kafka topic through the vault's
// insert API and republishes the returned tokens to a second topic.
//
// Configuration is read from $STEEZE_VAULT_CONFIG (default ./config.toml).
package main

import (
	"fmt"
	"os"

	"github.com/joeydtaylor/steeze-vault/pkg/serverfx"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(serverfx.Module(serverfx.WithService("steeze-vault")))
	if err := app.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "steeze-vault:", err)
		os.Exit(1)
	}
	// Run blocks until SIGINT/SIGTERM and exits non-zero if start fails.
	app.Run()
}
