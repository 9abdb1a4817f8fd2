package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

const defaultServer = "http://localhost:8080"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "smartmarks",
		Usage: "keep your bookmarks on a smartmarks server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "server base URL (defaults to the one you signed in to)",
				EnvVars: []string{"SMARTMARKS_SERVER"},
			},
			&cli.StringFlag{
				Name:    "session",
				Usage:   "session file (default: <config dir>/smartmarks/session.json)",
				EnvVars: []string{"SMARTMARKS_SESSION"},
			},
		},
		Commands: []*cli.Command{
			signupCommand(),
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			listCommand(),
			addCommand(),
			editCommand(),
			rmCommand(),
			mvCommand(),
			copyCommand(),
			openCommand(),
			watchCommand(),
			trashCommand(),
			restoreCommand(),
			purgeCommand(),
			importCommand(),
			exportCommand(),
			keysCommand(),
		},
	}
}
