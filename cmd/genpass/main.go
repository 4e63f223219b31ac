package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/oddmeter/camhub/internal/auth"
)

func main() {
	flag.Parse()
	password := flag.Arg(0)
	if password == "" {
		fmt.Fprintln(os.Stderr, "usage: genpass <password>")
		os.Exit(2)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashing password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
