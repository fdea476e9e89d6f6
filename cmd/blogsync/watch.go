package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	blogsync "github.com/Sekunev/BE-WORKSHOP-sub000"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	webhookAddr   string
	webhookSecret string
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&webhookAddr, "webhook-addr", "", "Also accept signed blog change webhooks on this address (e.g. :8088)")
	watchCmd.Flags().StringVar(&webhookSecret, "webhook-secret", "", "HMAC secret for --webhook-addr")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the backend socket and sync whenever it comes back",
	Long: "Keep a WebSocket open to the backend. Pending drafts and actions are\n" +
		"synced every time the connection is restored, and cached blogs are\n" +
		"invalidated as change events arrive. Stop with Ctrl-C.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, func(ctx context.Context, rt *runtime) (blogsync.ConnectivitySource, error) {
			rt.ws = blogsync.NewWebSocketSource(rt.cfg.Default.BaseURL, &blogsync.RealtimeConfig{
				Token:  rt.cfg.Default.APIKey,
				Logger: rt.log,
			})
			if err := rt.ws.Start(ctx); err != nil {
				rt.log.Warn("backend socket unavailable; retrying in background", zap.Error(err))
			}
			return rt.ws, nil
		})
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.cache.Start(); err != nil {
			return err
		}
		defer rt.cache.InvalidateOnEvents(rt.ws)()

		if webhookAddr != "" {
			stopHook, err := serveWebhook(rt, webhookAddr, webhookSecret)
			if err != nil {
				return err
			}
			defer stopHook()
		}

		w := cmd.OutOrStdout()
		rt.offline.On(blogsync.EventNetworkOnline, func(string, any) {
			fmt.Fprintln(w, "online")
		})
		rt.offline.On(blogsync.EventNetworkOffline, func(string, any) {
			fmt.Fprintln(w, "offline")
		})
		rt.offline.On(blogsync.EventSyncComplete, func(_ string, payload any) {
			report, _ := payload.(blogsync.SyncReport)
			fmt.Fprintf(w, "synced: %d drafts, %d actions confirmed, %d retrying, %d dropped\n",
				report.DraftsSynced, report.ActionsConfirmed, report.ActionsRetrying, report.ActionsDropped)
		})

		// The coordinator only reacts to transitions; catch up when the socket
		// was already open at startup.
		if !rt.monitor.IsOffline() {
			if _, err := rt.offline.SyncPendingData(ctx); err != nil {
				return err
			}
		}

		<-ctx.Done()
		return nil
	},
}

// serveWebhook listens for backend change notifications on addr and feeds
// them to the cache.
func serveWebhook(rt *runtime, addr, secret string) (stop func(), err error) {
	hook, err := blogsync.NewBlogWebhook(secret, rt.log)
	if err != nil {
		return nil, err
	}
	unsubscribe := rt.cache.InvalidateOnEvents(hook)

	mux := http.NewServeMux()
	mux.Handle("/hooks/blogs", hook)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.log.Error("webhook server stopped", zap.Error(err))
		}
	}()
	rt.log.Info("webhook receiver listening", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		unsubscribe()
	}, nil
}
