// hashpass is a filter for preparing hashed rosters: it reads
// "identity:secret" lines from stdin and writes "identity:hash" to stdout,
// where the hash is argon2id in encoded form. Blank lines and comment lines
// pass through the filter unwritten.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"codecell/internal/store"
)

func main() {
	in := bufio.NewScanner(os.Stdin)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, secret, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		hashed, err := store.HashSecret(strings.TrimSpace(secret))
		if err != nil {
			fmt.Fprintf(os.Stderr, "hashpass: %s: %v\n", identity, err)
			os.Exit(1)
		}
		fmt.Fprintf(out, "%s:%s\n", strings.TrimSpace(identity), hashed)
	}
	if err := in.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "hashpass: read: %v\n", err)
		os.Exit(1)
	}
}
