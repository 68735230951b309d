package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"

	"prayerbell/internal/app"
)

var version = "dev"

func main() {
	// A missing .env is fine; the token can come from the real environment.
	_ = godotenv.Load()

	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	app := cli.NewApp()
	app.Name = "prayerbell"
	app.HelpName = "prayerbell"
	app.Usage = "prayer time countdown and Telegram reminders"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  "./config.yaml",
			EnvVar: "PRAYERBELL_CONFIG",
			Usage:  "path to config file (json or yaml)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run the bot until interrupted",
			Action: runBot,
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "stop-timeout", Value: 10 * time.Second, Usage: "graceful shutdown budget"},
			},
		},
		{
			Name:   "plan",
			Usage:  "print the alerts that would be scheduled now",
			Action: printPlan,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "limit, n", Value: 20, Usage: "max alerts to print (0 for all)"},
			},
		},
		{
			Name:    "next",
			Aliases: []string{"n"},
			Usage:   "print the next visible prayer and the time left",
			Action:  printNext,
		},
	}
	app.Action = runBot
	return app
}

func configPath(c *cli.Context) string {
	if p := c.GlobalString("config"); p != "" {
		return p
	}
	return c.String("config")
}

func signalContext() (context.Context, func() app.StopReason, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	reason := app.StopUnknown
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigCh:
			reason = reasonForSignal(sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	get := func() app.StopReason {
		<-done
		return reason
	}
	stop := func() {
		signal.Stop(sigCh)
		cancel()
	}
	return ctx, get, stop
}
