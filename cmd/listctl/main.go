// listctl is the admin command line for a listkeeper database.
// Usage: listctl <command> [options]
package main

import (
	"os"
)

func main() {
	exitOnError(execute(os.Args[1:], os.Stdout, os.Stderr))
}
