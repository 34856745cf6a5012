package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"rhema/internal/chat"
	"rhema/internal/client"
	"rhema/internal/stream"
	"rhema/internal/tui"
)

func main() {
	_ = godotenv.Load(".env.local")

	server := flag.String("server", envOr("RHEMA_SERVER_URL", "http://localhost:8090"), "Base URL of the rhema server")
	token := flag.String("token", os.Getenv("RHEMA_TOKEN"), "Bearer token; empty chats anonymously")
	query := flag.String("q", "", "Ask one question, print the streamed answer and exit")
	flag.Parse()

	c := client.New(*server, nil)

	if *query != "" {
		if err := ask(c, *token, *query); err != nil {
			fmt.Fprintln(os.Stderr, "\nError:", err)
			os.Exit(1)
		}
		return
	}

	conv := chat.New(c, *token)
	if _, err := tea.NewProgram(tui.New(conv, c, *token), tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}

func ask(c *client.Client, token, query string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	resp, err := c.Query(ctx, token, query)
	if err != nil {
		return err
	}
	if resp.Matches == 0 {
		fmt.Fprintln(os.Stderr, "(no matching scripture in the library)")
	}
	status, err := stream.Drain(ctx, resp.Stream, func(part string) error {
		_, err := fmt.Print(part)
		return err
	})
	fmt.Println()
	if status != stream.Completed {
		return fmt.Errorf("answer %s: %w", status, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
