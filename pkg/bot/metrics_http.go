package bot

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// newOpsRouter serves /metrics in Prometheus text exposition format and a
// /healthz probe.
func (b *Bot) newOpsRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/metrics", b.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}

// StartMetricsHTTP starts the ops HTTP server in the background. It shuts
// down when the bot context is cancelled. An empty MetricsAddr disables it.
func (b *Bot) StartMetricsHTTP() {
	addr := b.config().MetricsAddr
	if addr == "" {
		return
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           b.newOpsRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-b.ctx.Done()
		_ = srv.Close()
	}()
}

func (b *Bot) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := b.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP ticketbot_uptime_seconds Bot uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE ticketbot_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "ticketbot_uptime_seconds %f\n", uptime)

	write("ticketbot_interactions_total", "Component and modal interactions handled.", "counter",
		m.Interactions.Load())
	write("ticketbot_permission_denials_total", "Interactions rejected for a non-owner.", "counter",
		m.PermissionDenials.Load())
	write("ticketbot_prompt_timeouts_total", "Free-text prompts that expired.", "counter",
		m.PromptTimeouts.Load())

	write("ticketbot_tickets_created_total", "Ticket channels created.", "counter",
		m.TicketsCreated.Load())
	write("ticketbot_tickets_deleted_total", "Ticket channels deleted.", "counter",
		m.TicketsDeleted.Load())

	write("ticketbot_relays_started_total", "Quiz battle relays started.", "counter",
		m.RelaysStarted.Load())
	write("ticketbot_relays_ended_total", "Quiz battle relays that ended normally.", "counter",
		m.RelaysEnded.Load())
	write("ticketbot_relays_errored_total", "Quiz battle relays that failed.", "counter",
		m.RelaysErrored.Load())
	write("ticketbot_relays_active", "Quiz battle relays currently running.", "gauge",
		m.ActiveRelays.Load())

	write("ticketbot_external_failures_total", "Failed learning platform calls.", "counter",
		m.ExternalFailures.Load())

	write("ticketbot_sessions_cached", "Sessions with a live account in memory.", "gauge",
		int64(b.sessions.AccountCount()))
}
