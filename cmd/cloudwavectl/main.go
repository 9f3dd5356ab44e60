// Package main provides the cloudwave control CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/cloudwave/internal/api/httpapi"
)

var (
	app    = kingpin.New("cloudwavectl", "cloudwave control client")
	server = app.Flag("server", "Server address").Default("http://127.0.0.1:8080").Envar("CLOUDWAVE_SERVER").String()
	token  = app.Flag("token", "Admin token (or set CLOUDWAVE_ADMIN_TOKEN env)").Envar("CLOUDWAVE_ADMIN_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Get daemon status")

	// current command
	currentCmd = app.Command("current", "Show the current track")

	// refresh command
	refreshCmd  = app.Command("refresh", "Trigger a refresh cycle")
	refreshWait = refreshCmd.Flag("wait", "Wait for the cycle to finish").Bool()

	// cancel command
	cancelCmd = app.Command("cancel", "Cancel the running remote request")

	// watch command
	watchCmd  = app.Command("watch", "Stream daemon events")
	watchJSON = watchCmd.Flag("json", "Print raw JSON events").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := httpapi.NewClient(*server, *token)

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case currentCmd.FullCommand():
		err = current(ctx, client)
	case refreshCmd.FullCommand():
		err = requireToken(func() error { return refresh(ctx, client, *refreshWait) })
	case cancelCmd.FullCommand():
		err = requireToken(func() error { return cancel(ctx, client) })
	case watchCmd.FullCommand():
		err = watch(ctx, client, *watchJSON)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func requireToken(fn func() error) error {
	if *token == "" {
		return fmt.Errorf("admin token is required (use --token or CLOUDWAVE_ADMIN_TOKEN env)")
	}
	return fn()
}

func status(ctx context.Context, client *httpapi.Client) error {
	s, err := client.Status(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== CLOUDWAVE STATUS ===")
	fmt.Printf("Artist: %s\n", s.Artist)
	fmt.Printf("State: %s\n", s.State)
	fmt.Printf("Waiting for network: %v\n", s.GateEnabled)
	fmt.Printf("Tracks: %d\n", s.TrackCount)
	fmt.Printf("Subscribers: %d\n", s.Subscribers)

	fmt.Println("\nLast Request:")
	fmt.Printf("  Type: %s\n", s.Request.Type)
	fmt.Printf("  State: %s\n", s.Request.State)
	if s.Request.Payload != "" {
		fmt.Printf("  Detail: %s\n", s.Request.Payload)
	}

	if r := s.LastResult; r != nil {
		fmt.Println("\nLast Cycle:")
		printResult(r)
	}

	printTrack("\nCurrent Track:", s.CurrentTrack)
	printTrack("\nNext Track:", s.NextTrack)
	fmt.Println()
	return nil
}

func current(ctx context.Context, client *httpapi.Client) error {
	t, err := client.CurrentTrack(ctx)
	if err != nil {
		return err
	}
	printTrack("Current Track:", t)
	return nil
}

func refresh(ctx context.Context, client *httpapi.Client, wait bool) error {
	r, err := client.Refresh(ctx, wait)
	if err != nil {
		return err
	}
	if r == nil {
		fmt.Println("Refresh started")
		return nil
	}
	printResult(r)
	return nil
}

func cancel(ctx context.Context, client *httpapi.Client) error {
	canceled, err := client.Cancel(ctx)
	if err != nil {
		return err
	}
	if canceled {
		fmt.Println("Request canceled")
	} else {
		fmt.Println("No request running")
	}
	return nil
}

func watch(ctx context.Context, client *httpapi.Client, raw bool) error {
	fmt.Fprintln(os.Stderr, "Watching events, press Ctrl+C to stop")
	return client.Watch(ctx, func(ev httpapi.WireEvent) {
		if raw {
			data, _ := json.Marshal(ev)
			fmt.Println(string(data))
			return
		}
		payload, _ := json.Marshal(ev.Payload)
		fmt.Printf("[%s] #%d %s %s\n", ev.Timestamp.Format("15:04:05"), ev.SequenceNo, ev.Type, payload)
	})
}

func printResult(r *httpapi.ResultInfo) {
	fmt.Printf("  State: %s\n", r.State)
	fmt.Printf("  Step: %s\n", r.Step)
	fmt.Printf("  Track Changed: %v\n", r.TrackChanged)
	if r.Error != "" {
		fmt.Printf("  Error: %s\n", r.Error)
	}
	if r.At != nil {
		fmt.Printf("  At: %s\n", r.At.Local().Format("2006-01-02 15:04:05"))
	}
	if r.Track != nil {
		fmt.Printf("  Track: %s\n", r.Track.Title)
	}
}

func printTrack(title string, t *httpapi.TrackInfo) {
	if t == nil {
		return
	}
	fmt.Println(title)
	fmt.Printf("  Track ID: %d\n", t.ID)
	fmt.Printf("  Title: %s\n", t.Title)
	fmt.Printf("  URL: %s\n", t.PermalinkURL)
	fmt.Printf("  Soundwave: %s\n", t.WaveformURL)
	fmt.Printf("  Cached: %v\n", t.Cached)
}
