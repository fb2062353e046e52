package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"summa/internal/config"

	"github.com/spf13/cobra"
	sse "github.com/tmaxmax/go-sse"
)

func newClientCmd() *cobra.Command {
	var (
		url       string
		token     string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "client <message...>",
		Short: "Send a request to a running gateway and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				if cfg, err := config.Load(configPath); err == nil {
					token = cfg.Gateway.Token
				}
			}
			out, err := streamRun(cmd.Context(), http.DefaultClient, url, token, sessionID, strings.Join(args, " "), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8484", "gateway base URL")
	cmd.Flags().StringVarP(&token, "token", "t", "", "gateway bearer token (default from config)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to continue")
	return cmd
}

// streamRun posts message to the gateway's /v1/run endpoint and returns the
// final output. Progress events are written to progress.
func streamRun(ctx context.Context, client *http.Client, baseURL, token, sessionID, message string, progress io.Writer) (string, error) {
	body, err := json.Marshal(map[string]string{
		"session_id": sessionID,
		"message":    message,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/v1/run", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return "", fmt.Errorf("gateway returned %s: %s", resp.Status, e.Error)
	}

	var output string
	for ev, err := range sse.Read(resp.Body, &sse.ReadConfig{MaxEventSize: 1 << 20}) {
		if err != nil {
			return "", fmt.Errorf("reading stream: %w", err)
		}

		var data map[string]any
		if err := json.Unmarshal([]byte(ev.Data), &data); err != nil {
			return "", fmt.Errorf("decoding %s event: %w", ev.Type, err)
		}

		switch ev.Type {
		case "session":
			fmt.Fprintf(progress, "session %v\n", data["session_id"])
		case "tool_call":
			fmt.Fprintf(progress, "→ %v %v\n", data["name"], data["arguments"])
		case "tool_result":
			fmt.Fprintf(progress, "← %v: %s\n", data["name"], oneLine(fmt.Sprint(data["content"]), 120))
		case "error":
			return "", errors.New(fmt.Sprint(data["error"]))
		case "done":
			output = fmt.Sprint(data["output"])
		}
	}
	return output, nil
}
