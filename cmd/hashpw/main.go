// Command hashpw hashes a monitor password for WARDEN_MONITOR_PASSWORD_HASH.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	pkgauth "github.com/wardenhq/warden/pkg/auth"
)

func main() {
	skipValidation := flag.Bool("weak", false, "skip password strength validation")
	flag.Parse()

	var password string
	if flag.NArg() > 0 {
		password = flag.Arg(0)
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read password: %v\n", err)
			os.Exit(1)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if !*skipValidation {
		if err := pkgauth.ValidatePassword(password); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hash)
}
