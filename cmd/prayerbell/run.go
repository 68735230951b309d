package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"prayerbell/internal/app"
	"prayerbell/internal/countdown"
	logx "prayerbell/pkg/logx"
)

func reasonForSignal(sig os.Signal) app.StopReason {
	switch sig {
	case os.Interrupt:
		return app.StopSIGINT
	case syscall.SIGTERM:
		return app.StopSIGTERM
	}
	return app.StopUnknown
}

func runBot(c *cli.Context) error {
	ctx, reasonOf, stop := signalContext()
	defer stop()

	a, err := app.NewApp(configPath(c))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.Stop(stopCtx, app.StopFatalError)
		cancel()
		return fmt.Errorf("start: %w", err)
	}

	var reason app.StopReason
	select {
	case <-ctx.Done():
		reason = reasonOf()
	case <-a.Done():
		reason = app.StopFatalError
		if ctx.Err() != nil {
			reason = reasonOf()
		}
	}

	timeout := c.Duration("stop-timeout")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func openPreview(c *cli.Context) (*app.Preview, error) {
	return app.NewPreview(configPath(c), logx.NewConsole("warn"))
}

func printPlan(c *cli.Context) error {
	p, err := openPreview(c)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	plan, err := p.Plan(ctx)
	if err != nil {
		return err
	}

	limit := c.Int("limit")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tIN\tKIND\tTITLE")
	now := time.Now()
	for i, cand := range plan.Candidates {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "… and %d more\t\t\t\n", len(plan.Candidates)-limit)
			break
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			cand.Trigger.Format("Mon 02 Jan 15:04"),
			humanize.RelTime(now, cand.Trigger, "ago", ""),
			cand.Kind,
			cand.Payload.Title,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d scheduled, %d generated, %d dropped", len(plan.Candidates), plan.Generated, plan.Dropped)
	if !plan.Through.IsZero() {
		fmt.Printf(", covered through %s", plan.Through.Format("Mon 02 Jan 15:04"))
	}
	fmt.Println()
	return nil
}

func printNext(c *cli.Context) error {
	p, err := openPreview(c)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fmt.Println(describeState(p.Next(ctx)))
	return nil
}

func describeState(st countdown.State) string {
	switch st.Kind {
	case countdown.KindEvent:
		return fmt.Sprintf("Next: %s at %s (%s)", st.Label(), st.Target.Format("15:04"), strings.TrimSpace(st.Display))
	case countdown.KindNow:
		return fmt.Sprintf("%s: now", st.Category)
	case countdown.KindPending:
		return "Waiting for tomorrow's prayer times"
	case countdown.KindNone:
		return "No upcoming prayer times"
	default:
		return "Loading prayer times"
	}
}
