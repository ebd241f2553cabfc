package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"notifysync/internal/app"
	"notifysync/internal/client"
)

func main() {
	var (
		cfgPath string
		asJSON  bool
		audit   int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json or yaml)")
	flag.BoolVar(&asJSON, "json", false, "print updates as JSON lines")
	flag.IntVar(&audit, "audit", 0, "print the newest N audit entries and exit")
	flag.Parse()

	if audit > 0 {
		if err := printAudit(cfgPath, audit); err != nil {
			fmt.Fprintln(os.Stderr, "audit:", err)
			os.Exit(1)
		}
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	updates, unsub := a.Client().Updates(32)
	defer unsub()
	go printUpdates(updates, asJSON)

	var reason app.StopReason
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if reason == app.StopFatalError {
		if err := a.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
		}
		os.Exit(1)
	}
}

func printUpdates(ch <-chan client.Update, asJSON bool) {
	enc := json.NewEncoder(os.Stdout)
	for u := range ch {
		if asJSON {
			_ = enc.Encode(u)
			continue
		}
		switch {
		case u.Notice != nil:
			fmt.Printf("%s system %s %s\n", u.Notice.At.Format(time.TimeOnly), u.Notice.Kind, u.Notice.Data)
		case u.Snapshot != nil:
			s := u.Snapshot
			fmt.Printf("%s %s unread=%d total=%d attempts=%d desktop=%s\n",
				s.At.Format(time.TimeOnly), s.Connection.Status, s.UnreadCount, len(s.Notifications),
				s.Connection.ReconnectAttempts, s.Permission)
		}
	}
}

func printAudit(cfgPath string, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	entries, err := app.RecentAudit(ctx, cfgPath, n)
	if err != nil {
		return err
	}
	for _, e := range entries {
		status := "ok"
		if !e.OK {
			status = "failed: " + e.Error
		}
		fmt.Printf("%s %-14s %-24s %5dms %s %s\n",
			e.At.Local().Format(time.DateTime), e.Action, e.Target, e.TookMS, e.RequestID, status)
	}
	return nil
}
