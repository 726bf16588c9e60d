// Command keygen prints fresh API keys for the API_KEYS setting.
//
// Usage:
//
//	go run ./cmd/keygen       # One key
//	go run ./cmd/keygen 3     # Three keys
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/mbd888/starledger/internal/auth"
)

func main() {
	n := 1
	if len(os.Args) > 1 {
		v, err := strconv.Atoi(os.Args[1])
		if err != nil || v < 1 {
			fmt.Println("Usage: keygen [count]")
			os.Exit(1)
		}
		n = v
	}

	for range n {
		raw, err := auth.GenerateKey()
		if err != nil {
			log.Fatalf("Failed to generate key: %v", err)
		}
		// The id is what the server logs; the raw key is shown only here.
		fmt.Printf("%s\t%s\n", auth.KeyID(raw), raw)
	}
}
