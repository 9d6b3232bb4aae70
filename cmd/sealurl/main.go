// Command sealurl turns camera URLs into "enc:" values for the camera file.
// It reads one URL per line on stdin and writes the sealed form to stdout,
// using the hex key in STREAMCHECK_URL_KEY (or .env).
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Asteroidea-tn/streamcheck/pkg/checkenv"
	"github.com/Asteroidea-tn/streamcheck/pkg/urlcrypt"
)

type config struct {
	URLKey string `env:"STREAMCHECK_URL_KEY"`
}

func main() {
	var cfg config
	if err := checkenv.Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	svc, err := urlcrypt.NewServiceFromHex(cfg.URLKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: STREAMCHECK_URL_KEY: %v\n", err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		url := strings.TrimSpace(scanner.Text())
		if url == "" {
			continue
		}
		sealed, err := svc.Seal(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(sealed)
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
		os.Exit(1)
	}
}
