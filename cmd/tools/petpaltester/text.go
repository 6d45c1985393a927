package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	textDogName  string
	textDogBreed string
	textDogAge   string
	textMemory   string
	textStream   bool
	textTimeout  time.Duration
)

var textCmd = &cobra.Command{
	Use:   "text <message>",
	Short: "Send a text consultation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]any{
			"message":        strings.Join(args, " "),
			"dog_name":       textDogName,
			"dog_breed":      textDogBreed,
			"dog_age":        textDogAge,
			"memory_context": textMemory,
		})
		if err != nil {
			return err
		}

		path := "/health/text"
		if textStream {
			path = "/health/text/stream"
		}

		client := &http.Client{Timeout: textTimeout}
		resp, err := client.Post(baseURL+path, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return fmt.Errorf("status %d: %s", resp.StatusCode, gjson.GetBytes(raw, "error").String())
		}

		out := cmd.OutOrStdout()
		if !textStream {
			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, gjson.GetBytes(raw, "response").String())
			fmt.Fprintf(out, "(session %s)\n", gjson.GetBytes(raw, "session_id").String())
			return nil
		}
		return printStream(resp.Body, out)
	},
}

// printStream prints SSE deltas as they arrive.
func printStream(r io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if verbose {
			log.Printf("[sse] %s", data)
		}

		event := gjson.Get(data, "event").String()
		switch event {
		case "delta":
			fmt.Fprint(out, gjson.Get(data, "content").String())
		case "end":
			fmt.Fprintf(out, "\n(session %s)\n", gjson.Get(data, "session_id").String())
			return nil
		case "error":
			return fmt.Errorf("stream error: %s", gjson.Get(data, "error").String())
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream ended without end event")
}

func init() {
	textCmd.Flags().StringVar(&textDogName, "dog-name", "", "dog name")
	textCmd.Flags().StringVar(&textDogBreed, "breed", "", "dog breed")
	textCmd.Flags().StringVar(&textDogAge, "age", "", "dog age")
	textCmd.Flags().StringVar(&textMemory, "memory", "", "past context passed as memory_context")
	textCmd.Flags().BoolVar(&textStream, "stream", false, "use the SSE endpoint")
	textCmd.Flags().DurationVar(&textTimeout, "timeout", 60*time.Second, "request timeout")
}
