// Command sasmerge merges small-angle scattering curves measured over
// overlapping q-ranges into one consensus curve.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/sasmerge/internal/fsutil"
	"github.com/banshee-data/sasmerge/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			if err := runServe(os.Args[2:], os.Stderr); err != nil {
				log.Fatalf("serve: %v", err)
			}
			return
		case "migrate":
			if err := runMigrate(os.Args[2:], os.Stdin, os.Stdout, os.Stderr); err != nil {
				log.Fatalf("migrate: %v", err)
			}
			return
		}
	}

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.version {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if _, err := runMerge(cfg, fsutil.OSFileSystem{}, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}
