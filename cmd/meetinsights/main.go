package main

import (
	"os"

	"github.com/imalyk/go-meeting-insights/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
