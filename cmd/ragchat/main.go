// Command ragchat is a retrieval-augmented chat relay. It serves an HTTP API
// that forwards conversations to a chat model after recalling similar past
// messages, and offers CLI commands for one-off turns, search and backfill.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ragchat-go/cmd/ragchat/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
