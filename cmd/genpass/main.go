// Command genpass prints the argon2id hash of a password, suitable for
// the OPENSENTRY_PASS_HASH environment variable.
package main

import (
	"fmt"
	"os"

	"github.com/Sbussiso/OpenSentry/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: genpass <password>")
		os.Exit(2)
	}
	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "genpass:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
