package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shohag/webhookd/internal/auth"
	"github.com/shohag/webhookd/internal/config"
	"github.com/shohag/webhookd/internal/models"
	"github.com/shohag/webhookd/internal/storage"
)

func webhookCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage webhooks",
	}

	// webhook create
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a webhook for a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceID, _ := cmd.Flags().GetString("workspace")
			rawURL, _ := cmd.Flags().GetString("url")
			name, _ := cmd.Flags().GetString("name")
			events, _ := cmd.Flags().GetStringSlice("events")
			headers, _ := cmd.Flags().GetStringToString("header")
			noSecret, _ := cmd.Flags().GetBool("no-secret")
			if workspaceID == "" || rawURL == "" {
				return fmt.Errorf("--workspace and --url are required")
			}
			if len(events) == 0 {
				return fmt.Errorf("--events is required")
			}

			cfg, store, _, cleanup, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := setupGuard(cfg.Delivery).Check(context.Background(), rawURL); err != nil {
				return fmt.Errorf("url rejected: %w", err)
			}

			now := time.Now().UTC()
			wh := &models.Webhook{
				ID:          models.NewID("wh"),
				WorkspaceID: workspaceID,
				Name:        name,
				URL:         rawURL,
				Events:      events,
				Headers:     headers,
				IsActive:    true,
				RetryCount:  3,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if !noSecret {
				if wh.Secret, err = models.NewSecret(); err != nil {
					return err
				}
			}

			if err := store.CreateWebhook(context.Background(), wh); err != nil {
				return fmt.Errorf("failed to create webhook: %w", err)
			}
			return printJSON(wh)
		},
	}
	createCmd.Flags().String("workspace", "", "workspace id")
	createCmd.Flags().String("url", "", "destination url")
	createCmd.Flags().String("name", "", "label")
	createCmd.Flags().StringSlice("events", nil, "event types, e.g. lead.created,deal.* or *")
	createCmd.Flags().StringToString("header", nil, "extra header, e.g. --header X-Team=sales")
	createCmd.Flags().Bool("no-secret", false, "do not sign deliveries")

	// webhook list
	listCmd := &cobra.Command{
		Use:   "list <workspace_id>",
		Short: "List webhooks of a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, cleanup, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			webhooks, err := store.ListWebhooks(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to list webhooks: %w", err)
			}
			if len(webhooks) == 0 {
				fmt.Println("No webhooks found.")
				return nil
			}

			for _, wh := range webhooks {
				state := "active"
				if !wh.IsActive {
					state = "inactive"
				}
				fmt.Printf("  %s  %-8s  %s  [%s]\n", wh.ID, state, wh.URL, strings.Join(wh.Events, ","))
			}
			return nil
		},
	}

	// webhook toggle
	toggleCmd := &cobra.Command{
		Use:   "toggle <workspace_id> <webhook_id>",
		Short: "Activate or deactivate a webhook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, cleanup, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := context.Background()
			wh, err := store.GetWebhook(ctx, args[1], args[0])
			if err != nil {
				return fmt.Errorf("failed to get webhook: %w", err)
			}
			if wh == nil {
				return fmt.Errorf("webhook %s not found in workspace %s", args[1], args[0])
			}
			if err := store.SetWebhookActive(ctx, wh.ID, wh.WorkspaceID, !wh.IsActive); err != nil {
				return fmt.Errorf("failed to toggle webhook: %w", err)
			}
			fmt.Printf("%s is_active=%t\n", wh.ID, !wh.IsActive)
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd, toggleCmd)
	return cmd
}

func triggerCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger <workspace_id> <event_type>",
		Short: "Deliver an event to matching webhooks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, _ := cmd.Flags().GetString("data")

			cfg, store, log, cleanup, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			dispatcher := setupDispatcher(cfg, store, setupGuard(cfg.Delivery), log)
			res, err := dispatcher.Trigger(cmd.Context(), args[0], args[1], json.RawMessage(data))
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().String("data", "{}", "event data as JSON")
	return cmd
}

func testCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test <workspace_id> <webhook_id>",
		Short: "Send a test event to one webhook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, log, cleanup, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			dispatcher := setupDispatcher(cfg, store, setupGuard(cfg.Delivery), log)
			res, err := dispatcher.Test(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func logsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs <workspace_id>",
		Short: "Show recent deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			webhookID, _ := cmd.Flags().GetString("webhook")
			limit, _ := cmd.Flags().GetInt("limit")

			_, store, _, cleanup, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := store.ListDeliveryLogs(context.Background(), storage.LogFilter{
				WorkspaceID: args[0],
				WebhookID:   webhookID,
				Limit:       limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list deliveries: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No deliveries found.")
				return nil
			}

			for _, e := range entries {
				outcome := "ok"
				if e.ErrorMessage != nil {
					outcome = *e.ErrorMessage
				}
				fmt.Printf("  %s  %s  %-20s  %3d  %5dms  %s\n",
					e.CreatedAt.Format(time.RFC3339), e.WebhookID, e.EventType, e.ResponseStatus, e.DurationMs, outcome)
			}
			return nil
		},
	}
	cmd.Flags().String("webhook", "", "only this webhook")
	cmd.Flags().Int("limit", 20, "max entries")
	return cmd
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <workspace_id>",
		Short: "Show delivery stats for a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, cleanup, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetStats(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			return printJSON(stats)
		},
	}
}

func tokenCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <workspace_id>",
		Short: "Mint an API token for a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Server.JWTSecret == "" {
				return errors.New("server.jwt_secret is not set")
			}

			token, err := auth.NewTokenService(cfg.Server.JWTSecret).Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime, 0 for none")
	return cmd
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
