package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"streamchat/internal/client"
)

func main() {
	serverURL := flag.String("server", "http://localhost:5001", "chat server base URL")
	token := flag.String("token", os.Getenv("CHAT_TOKEN"), "bearer token")
	flag.Parse()

	if *token == "" {
		log.Fatal("missing token: pass -token or set CHAT_TOKEN")
	}

	ctx := context.Background()
	c := client.New(*serverURL, *token)

	if err := c.LoadConversations(ctx); err != nil {
		log.Fatalf("load conversations failed: %v", err)
	}
	if _, ok := c.Current(); !ok {
		if _, err := c.NewConversation(ctx); err != nil {
			log.Fatalf("create conversation failed: %v", err)
		}
	}

	fmt.Println("commands: /new, /list, /open <id>, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/new":
			id, err := c.NewConversation(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Printf("switched to %s\n", id)
		case line == "/list":
			for _, conv := range c.Conversations() {
				marker := " "
				if current, ok := c.Current(); ok && current.ID == conv.ID {
					marker = "*"
				}
				last := ""
				if m := conv.LastMessage(); m != nil {
					last = m.Content
				}
				fmt.Printf("%s %s  %s\n", marker, conv.ID, preview(last))
			}
		case strings.HasPrefix(line, "/open "):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			if err := c.OpenConversation(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "open %s failed: %v\n", id, err)
			}
		default:
			err := c.SendMessage(ctx, line, func(delta string) {
				fmt.Print(delta)
			})
			fmt.Println()
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 48 {
		return s[:48] + "..."
	}
	return s
}
