package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nidhogg/agri-assist/internal/workflow"
)

var chatServer string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session against a running server",
	Long: `Ask questions against a running agri server.

Planning questions are run as workflows and their progress is streamed
as each subtask finishes. Other questions are answered directly.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatServer, "server", "s", "http://localhost:8000", "agri server URL")
}

func runChat(cmd *cobra.Command, args []string) error {
	server := strings.TrimRight(chatServer, "/")
	fmt.Println("Agri Assist CLI Chat")
	fmt.Printf("Server: %s\n", server)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /health, /intents, /sources, /providers, /follow <workflow-id>")
	fmt.Println("---")

	fetchHealth(server)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			fmt.Println("Bye!")
			return nil
		case "/health":
			fetchHealth(server)
		case "/intents":
			fetchIntents(server)
		case "/sources":
			fetchSources(server)
		case "/providers":
			fetchProviders(server)
		default:
			if id, ok := strings.CutPrefix(input, "/follow "); ok {
				followWorkflow(server, strings.TrimSpace(id))
				continue
			}
			ask(server, input)
		}
	}
	return scanner.Err()
}

func fetchHealth(server string) {
	var health struct {
		Status    string `json:"status"`
		Providers int    `json:"providers"`
	}
	if err := getInto(server+"/api/health", &health); err != nil {
		printError("Server unreachable: %v", err)
		return
	}
	fmt.Printf("Status: %s | providers: %d\n", health.Status, health.Providers)
}

func fetchIntents(server string) {
	var intents []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := getInto(server+"/api/intents", &intents); err != nil {
		printError("Failed to fetch intents: %v", err)
		return
	}
	for _, in := range intents {
		fmt.Printf("  %-22s %s\n", in.Name, in.Description)
	}
}

func fetchSources(server string) {
	var body struct {
		Sources []string `json:"sources"`
	}
	if err := getInto(server+"/api/sources", &body); err != nil {
		printError("Failed to fetch sources: %v", err)
		return
	}
	for _, s := range body.Sources {
		fmt.Printf("  %s\n", s)
	}
}

func fetchProviders(server string) {
	var provs []struct {
		ID           string `json:"id"`
		DefaultModel string `json:"default_model"`
		Breaker      string `json:"breaker"`
	}
	if err := getInto(server+"/api/providers", &provs); err != nil {
		printError("Failed to fetch providers: %v", err)
		return
	}
	if len(provs) == 0 {
		fmt.Println("No providers configured; answers come from local fallbacks.")
		return
	}
	for _, p := range provs {
		icon := "\033[32m✓\033[0m"
		if p.Breaker != "closed" {
			icon = "\033[31m✗\033[0m"
		}
		fmt.Printf("  %s %s (%s)\n", icon, p.ID, p.DefaultModel)
	}
}

// ask tries the query as a workflow first and streams it; queries that do
// not decompose are answered through the direct endpoint.
func ask(server, query string) {
	body, _ := json.Marshal(map[string]string{"query": query})
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(server+"/api/workflows", "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			ID string `json:"workflow_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			printError("Failed to parse response: %v", err)
			return
		}
		streamEvents(server + "/api/workflows/" + created.ID + "/stream")
	case http.StatusBadRequest:
		askDirect(server, body)
	default:
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
	}
}

func askDirect(server string, body []byte) {
	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Post(server+"/api/query", "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	var ans workflow.Answer
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}
	fmt.Printf("\033[36m[%s · %s]\033[0m %s\n", ans.Intent, ans.BucketUsed, ans.Response)
}

// followWorkflow resumes the output of a workflow started elsewhere, for
// example by an earlier session that disconnected.
func followWorkflow(server, id string) {
	if id == "" {
		printError("Usage: /follow <workflow-id>")
		return
	}
	streamEvents(server + "/api/workflows/" + id + "/events?follow=true")
}

func streamEvents(url string) {
	resp, err := http.Get(url)
	if err != nil {
		printError("Stream failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev workflow.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		printEvent(ev)
	}
}

func printEvent(ev workflow.Event) {
	switch ev.Type {
	case workflow.EventSubtasks:
		fmt.Printf("\033[33mWorkflow %s: %d steps\033[0m\n", ev.WorkflowID, len(ev.Subtasks))
		for i, s := range ev.Subtasks {
			fmt.Printf("  %d. %s\n", i+1, s.Description)
		}
	case workflow.EventSubtaskComplete:
		if ev.Result != nil {
			fmt.Printf("\n\033[36m[%s]\033[0m %s\n", ev.Result.Description, ev.Result.Response)
		}
	case workflow.EventSummary:
		fmt.Printf("\n\033[32mSummary\033[0m\n%s\n", ev.Text)
	case workflow.EventComplete:
		if ev.Answer != nil {
			fmt.Printf("\n(done in %.1fs)\n", ev.Answer.ProcessingTime)
		}
	case workflow.EventError:
		printError("Workflow failed: %s", ev.Message)
	}
}

func getInto(url string, v interface{}) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
