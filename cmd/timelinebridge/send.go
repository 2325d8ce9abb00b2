package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/timelinebridge/internal/appconfig"
)

type commandRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
}

func newSendCmd() *cobra.Command {
	var cfgPath string
	var endpoint string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "send <command> [json-args]",
		Short: "Send a command to a running bridge",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				cfg, err := appconfig.Load(cfgPath)
				if err != nil {
					return err
				}
				endpoint = commandEndpoint(cfg.HTTP)
			}
			req := commandRequest{Command: args[0]}
			if len(args) > 1 {
				decoder := json.NewDecoder(strings.NewReader(args[1]))
				decoder.UseNumber()
				if err := decoder.Decode(&req.Args); err != nil {
					return fmt.Errorf("args must be a JSON object: %w", err)
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			body, err := postCommand(ctx, endpoint, req)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("command sent", "command", req.Command, "endpoint", endpoint)
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "command endpoint url (defaults from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

// commandEndpoint derives the command URL from the HTTP config.
func commandEndpoint(cfg appconfig.HTTPConfig) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		host := cfg.Addr
		if strings.HasPrefix(host, ":") {
			host = "127.0.0.1" + host
		}
		base = "http://" + host
	}
	if path := strings.Trim(strings.TrimSpace(cfg.BasePath), "/"); path != "" {
		base += "/" + path
	}
	return base + "/api/commands"
}

func postCommand(ctx context.Context, endpoint string, req commandRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return nil, fmt.Errorf("%s", resp.Status)
	}
	return body, nil
}
