// Redis-Chat CLI - command line client for the chat server
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Murkirpus/Redis-Chat/clients/go/chat"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CHAT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := chat.NewClient(baseURL)
	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "read":
		msgs, err := client.Sync(ctx)
		exitOnError(err)
		printMessages(msgs)

	case "watch":
		for {
			msgs, err := client.Sync(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, "sync:", err)
			}
			printMessages(msgs)
			_ = client.Heartbeat(ctx)
			time.Sleep(3 * time.Second)
		}

	case "post":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: chat post <message> [author]")
			os.Exit(1)
		}
		author := "anonymous"
		if len(os.Args) > 3 {
			author = os.Args[3]
		}
		resp, err := client.Post(ctx, author, os.Args[2])
		exitOnError(err)
		fmt.Printf("Posted: %s\n", resp.ID)

	case "online":
		count, err := client.Online(ctx)
		exitOnError(err)
		fmt.Printf("Online: %d\n", count)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func printMessages(msgs []chat.Message) {
	for _, msg := range msgs {
		ts := time.Unix(msg.Timestamp, 0).Format("2006-01-02 15:04:05")
		fmt.Printf("[%s] %s: %s\n", ts, msg.Author, msg.Body)
	}
}

func usage() {
	fmt.Println(`Redis-Chat CLI

Usage: chat <command> [options]

Commands:
  read                    Fetch recent messages
  watch                   Poll for new messages
  post <message> [name]   Post a message
  online                  Show online session count

Environment:
  CHAT_URL      Server URL (default: http://localhost:8080)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
