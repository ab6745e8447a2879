package main

import (
	"fmt"
	"os"
	"time"

	"github.com/younsl/snapkeeper/internal/config"
	"github.com/younsl/snapkeeper/pkg/aws"
)

func main() {
	rootCmd := newRootCmd(&env{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		showSpinner: true,
		metadata: func(timeout time.Duration) *aws.MetadataResolver {
			return aws.NewMetadataResolver(timeout)
		},
		clients: func(cfg *config.Config) aws.ClientFactory {
			return aws.NewClientFactory(cfg.Credentials(), cfg.Region)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
