package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tabq/tabq/internal/agent"
)

// runChat handles the "tabq chat" subcommand: an interactive loop that
// streams answers to the terminal. Besides questions it understands a
// few commands: help, suggestions, status, history, clear, load <path>,
// and quit/exit/q.
func runChat(ctx context.Context, stdin io.Reader, stdout io.Writer, configPath, csvPath string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	if rt.archive != nil {
		defer rt.archive.Close()
	}

	if csvPath != "" {
		if err := rt.table.Load(csvPath); err != nil {
			return fmt.Errorf("load %s: %w", csvPath, err)
		}
		summary, _ := rt.table.Summary()
		fmt.Fprintln(stdout, summary)
	} else {
		fmt.Fprintln(stdout, "No CSV loaded. Use: load <path>")
	}
	fmt.Fprintln(stdout, "Ask questions about your data. Type 'help' for commands, 'quit' to exit.")

	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "quit", "exit", "q":
			fmt.Fprintln(stdout, "Goodbye!")
			return nil
		case "help":
			printChatHelp(stdout)
			continue
		case "suggestions":
			for i, s := range rt.agent.SuggestedQuestions() {
				fmt.Fprintf(stdout, "  %d. %s\n", i+1, s)
			}
			continue
		case "status":
			printChatStatus(stdout, rt)
			continue
		case "history":
			recent := rt.store.RecentQuestions("chat", 10)
			if len(recent) == 0 {
				fmt.Fprintln(stdout, "No questions asked yet.")
				continue
			}
			for i, q := range recent {
				fmt.Fprintf(stdout, "  %d. %s\n", i+1, q)
			}
			continue
		case "clear":
			rt.store.Clear("chat")
			fmt.Fprintln(stdout, "Conversation history cleared.")
			continue
		}

		if path, ok := strings.CutPrefix(line, "load "); ok {
			path = strings.TrimSpace(path)
			if err := rt.table.Load(path); err != nil {
				fmt.Fprintf(stdout, "load failed: %s\n", err)
				continue
			}
			summary, _ := rt.table.Summary()
			fmt.Fprintln(stdout, summary)
			continue
		}

		askStreaming(ctx, stdout, rt, line)
	}
}

// askStreaming runs one question and prints tokens as they arrive.
func askStreaming(ctx context.Context, stdout io.Writer, rt *runtime, question string) {
	callback := func(ev agent.StreamEvent) {
		switch ev.Kind {
		case agent.KindToken:
			fmt.Fprint(stdout, ev.Token)
		case agent.KindToolCallStart:
			fmt.Fprintf(stdout, "[%s] ", ev.ToolName)
		}
	}

	resp, err := rt.agent.Run(ctx, &agent.Request{Question: question, ConversationID: "chat"}, callback)
	if err != nil {
		fmt.Fprintf(stdout, "error: %s\n", err)
		return
	}
	fmt.Fprintln(stdout)
	if resp.FollowUp {
		fmt.Fprintln(stdout, "(interpreted as a follow-up question)")
	}
}

func printChatHelp(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  help          Show this help message")
	fmt.Fprintln(w, "  suggestions   Get question suggestions based on your data")
	fmt.Fprintln(w, "  status        Show dataset and conversation status")
	fmt.Fprintln(w, "  history       Show recent questions")
	fmt.Fprintln(w, "  clear         Clear conversation history")
	fmt.Fprintln(w, "  load <path>   Load a CSV file")
	fmt.Fprintln(w, "  quit          Exit")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Example questions:")
	fmt.Fprintln(w, "  What is the summary of this dataset?")
	fmt.Fprintln(w, "  What are the statistics for numeric columns?")
	fmt.Fprintln(w, "  Search for rows containing 'search_term'")
}

func printChatStatus(w io.Writer, rt *runtime) {
	if rt.table.Loaded() {
		summary, _ := rt.table.Summary()
		fmt.Fprintln(w, summary)
	} else {
		fmt.Fprintln(w, "No CSV loaded.")
	}
	if lister, ok := rt.client.(interface{ Models() []string }); ok {
		fmt.Fprintf(w, "Models: %s\n", strings.Join(lister.Models(), ", "))
	}
	stats := rt.store.Stats()
	fmt.Fprintf(w, "Conversations: %v, messages: %v\n", stats["conversations"], stats["messages"])
	fmt.Fprintf(w, "Questions this session: %d\n", rt.store.QuestionCount("chat"))
	fmt.Fprintf(w, "Tools available: %s\n", strings.Join(rt.registry.Names(), ", "))
}
