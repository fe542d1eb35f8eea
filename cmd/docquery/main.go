// Command docquery runs filters and aggregation pipelines over documents
// read from files, stdin or a PostgreSQL-backed collection store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
