package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/daemon"
	"github.com/yoursandeshshrestha/TreesIndia-sub004/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	conversationFlag := flag.Int64("conversation", 0, "conversation id to open on start")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName:    sessionName,
			ConversationID: *conversationFlag,
		}),
	)

	app.Run()
}
