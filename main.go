package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taproot-sync/internal/gateway"
	"taproot-sync/internal/httpapi"
	"taproot-sync/internal/observability/metrics"
	walletsync "taproot-sync/internal/sync"
	"taproot-sync/internal/sync/dispatch"
)

func main() {
	cfg, err := walletsync.LoadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	httpAddr := getenvDefault("HTTP_ADDR", ":8080")
	userID := getenvDefault("WALLET_USER_ID", "")
	if userID == "" {
		log.Fatal("WALLET_USER_ID is required")
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	metrics.Init()

	tokens, err := gateway.NewTokenSource([]byte(cfg.TokenSecret), cfg.TokenTTL)
	if err != nil {
		logger.Fatalf("token source error: %v", err)
	}
	client, err := gateway.NewClient(cfg.GatewayBaseURL, tokens, userID)
	if err != nil {
		logger.Fatalf("gateway client error: %v", err)
	}
	transport, err := gateway.NewWebsocketTransport(cfg.GatewayWSURL, tokens)
	if err != nil {
		logger.Fatalf("websocket transport error: %v", err)
	}

	broker := httpapi.NewSSEBroker()
	notifiers := []dispatch.Notifier{broker}
	if cfg.NotifyWebhookURL != "" {
		webhook, err := dispatch.NewWebhookNotifier(cfg.NotifyWebhookURL)
		if err != nil {
			logger.Fatalf("webhook notifier error: %v", err)
		}
		notifiers = append(notifiers, webhook)
	}

	session, err := walletsync.NewSession(client, transport, dispatch.NewMultiNotifier(notifiers...), cfg, logger)
	if err != nil {
		logger.Fatalf("session error: %v", err)
	}
	if err := session.Start(context.Background(), userID); err != nil {
		logger.Fatalf("session start error: %v", err)
	}
	defer session.Stop()

	mux := http.NewServeMux()
	mux.Handle("/api/v1/transactions", httpapi.NewTransactionsHandler(session))
	mux.Handle("/api/v1/assets", httpapi.NewAssetsHandler(session))
	mux.Handle("/api/v1/sync/status", httpapi.NewSyncStatusHandler(session))
	mux.Handle("/api/v1/invoice", httpapi.NewCreateInvoiceHandler(session))
	mux.Handle("/api/v1/pay", httpapi.NewPayInvoiceHandler(session))
	mux.Handle("/api/v1/exports/transactions.xlsx", httpapi.NewExportTransactionsHandler(session, userID, "xlsx"))
	mux.Handle("/api/v1/exports/transactions.pdf", httpapi.NewExportTransactionsHandler(session, userID, "pdf"))
	mux.Handle("/api/v1/notifications/stream", httpapi.NewStreamHandler(broker))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: httpAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Printf("http listening on %s", httpAddr)
	logger.Fatal(server.ListenAndServe())
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the SSE stream working behind the middleware.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
