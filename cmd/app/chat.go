package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"foodrelay/internal/client"
	"foodrelay/internal/config"
	"foodrelay/internal/llm"
	"foodrelay/internal/restaurant"
	"foodrelay/internal/transport"

	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	defaults := config.LoadClient()
	var (
		serverURL string
		dataFile  string
		model     string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat against a running relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var records []restaurant.Record
			if dataFile != "" {
				loaded, err := restaurant.LoadFile(dataFile)
				if err != nil {
					return err
				}
				records = loaded
			}

			c := client.New(serverURL, transport.NewAPIClient())
			return runChat(ctx, c, records, model, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", defaults.ServerURL, "relay API base URL")
	cmd.Flags().StringVar(&dataFile, "data", defaults.DataFile, "restaurant records file (YAML or JSON)")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	return cmd
}

// runChat — цикл чтения строк. /clear сбрасывает историю, /quit завершает.
func runChat(ctx context.Context, c *client.Client, records []restaurant.Record, model string, in io.Reader, out io.Writer) error {
	health, err := c.WaitHealthy(ctx)
	if err != nil {
		var cerr *client.Error
		if errors.As(err, &cerr) {
			return errors.New(cerr.Hint())
		}
		return fmt.Errorf("backend not ready: %w", err)
	}
	fmt.Fprintf(out, "%s (%d restaurants loaded)\n", health.Status, len(records))

	var conversationID string
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := c.Clear(ctx, conversationID); err != nil {
				fmt.Fprintln(out, describe(err))
				continue
			}
			conversationID = ""
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		res, err := c.Chat(ctx, client.ChatInput{
			ConversationID: conversationID,
			Messages:       []llm.Message{{Role: "user", Content: line}},
			Restaurants:    records,
			Model:          model,
		}, func(token string) { fmt.Fprint(out, token) })
		fmt.Fprintln(out)
		if err != nil {
			if ctx.Err() != nil {
				return errInterrupted
			}
			fmt.Fprintln(out, describe(err))
			continue
		}
		conversationID = res.ConversationID
	}
	return scanner.Err()
}

func describe(err error) string {
	var cerr *client.Error
	if errors.As(err, &cerr) {
		return cerr.Hint()
	}
	return "Sorry, I encountered an error: " + err.Error()
}
