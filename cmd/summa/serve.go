package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"summa/internal/agent"
	"summa/internal/channels"
	"summa/internal/config"
	"summa/internal/gateway"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, appOptions{withStore: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.cfg.Gateway.Addr = addr
			}

			runner := a.runner(0)
			opts := []gateway.Option{
				gateway.WithToken(a.cfg.Gateway.Token),
				gateway.WithChannels(buildChannels(a.cfg, runner)...),
			}
			if a.store != nil {
				opts = append(opts, gateway.WithHistory(a.store))
			}

			srv := gateway.NewServer(runner, a.chain, opts...)
			slog.Info("starting gateway",
				"addr", a.cfg.Gateway.Addr,
				"auth", a.cfg.Gateway.Token != "",
				"language", a.chain.Language(),
			)
			if err := srv.ListenAndServe(ctx, a.cfg.Gateway.Addr); err != nil {
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "override gateway listen address")
	return cmd
}

func buildChannels(cfg *config.Config, runner agent.Runner) []channels.Channel {
	var chs []channels.Channel
	for name, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		switch ch.Type {
		case "telegram":
			var allowedUsers []int64
			if v, ok := ch.Settings["allowed_users"]; ok {
				for _, s := range strings.Split(v, ",") {
					if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
						allowedUsers = append(allowedUsers, id)
					}
				}
			}
			chs = append(chs, channels.NewTelegram(ch.Settings["bot_token"], allowedUsers, runner,
				channels.WithTelegramSecret(ch.Settings["secret_token"]),
			))
			slog.Info("channel registered", "name", name, "type", ch.Type)
		default:
			slog.Warn("unknown channel type", "name", name, "type", ch.Type)
		}
	}
	return chs
}
