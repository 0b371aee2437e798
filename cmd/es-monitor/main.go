// es-monitor shows the state of a running robot-service's services and
// lets the operator pause, resume or stop it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"robot-service/internal/logger"
	"robot-service/internal/messaging"
)

func main() {
	addr := flag.String("redis", "127.0.0.1:6379", "Redis address")
	flag.Parse()

	// the TUI owns stdout
	l := logger.NewLogger(log.New(os.Stderr, "", log.LstdFlags), logger.LogLevelError)
	client := messaging.NewRedisClient(*addr, l, messaging.Callbacks{})
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "es-monitor: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := client.Subscribe(ctx)
	defer sub.Close()

	p := tea.NewProgram(newModel(client, sub.Channel()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "es-monitor: %v\n", err)
		os.Exit(1)
	}
}
