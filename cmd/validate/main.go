// validate is a CLI tool that validates a pixoo-daemon YAML
// configuration file without starting the daemon.
//
// Usage:
//
//	validate -f config.yaml
//
// Exit codes:
//   - 0: configuration is valid
//   - 1: configuration is invalid (parse or validation error)
//   - 2: usage error (missing required flag)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pixoo/daemon/internal/config"
)

var version = "dev"

func main() {
	var file string
	var showVersion bool

	flag.StringVar(&file, "file", "", "path to YAML configuration file")
	flag.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  validate -f config.yaml")
		os.Exit(2)
	}

	loader := config.NewLoader(file, version)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %s:\n  %v\n", file, err)
		os.Exit(1)
	}

	fmt.Printf("%s is valid (%d device(s) configured)\n", file, len(cfg.Devices))
}
