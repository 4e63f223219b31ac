package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/oddmeter/camhub/internal/tokens"
)

func main() {
	userID := flag.Int64("user", 0, "user id (required)")
	admin := flag.Bool("admin", false, "mint a token with the is_admin claim set")
	refresh := flag.Bool("refresh", false, "mint a refresh token instead of an access token")
	flag.Parse()

	if *userID == 0 {
		fmt.Fprintln(os.Stderr, "usage: token_gen --user <id> [--admin] [--refresh]")
		os.Exit(2)
	}

	signingKey := os.Getenv("JWT_SIGNING_KEY")
	if signingKey == "" {
		signingKey = "dev-secret-do-not-use-in-prod"
	}

	mgr := tokens.NewManager(signingKey)

	var (
		token string
		err   error
	)
	if *refresh {
		token, err = mgr.GenerateRefreshToken(*userID, *admin)
	} else {
		token, err = mgr.GenerateAccessToken(*userID, *admin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "generating token for user %s: %v\n", strconv.FormatInt(*userID, 10), err)
		os.Exit(1)
	}

	fmt.Println(token)
}
