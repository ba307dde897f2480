// rosterize turns a whitespace-separated enrollment table into roster lines.
// The identity is taken from the second column and the initial secret is the
// identity reversed; pipe the result through hashpass before deploying it.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
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
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		identity := fields[1]
		fmt.Fprintf(out, "%s:%s\n", identity, reverse(identity))
	}
	if err := in.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "rosterize: read: %v\n", err)
		os.Exit(1)
	}
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
