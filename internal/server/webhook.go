package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/headwind-sh/headwind/internal/dispatch"
	"github.com/headwind-sh/headwind/internal/model"
)

// chartConfigMediaType marks a distribution push event as a Helm chart.
const chartConfigMediaType = "application/vnd.cncf.helm.config.v1+json"

// WebhookServer is the registry-notification intake. It accepts the
// generic Headwind payload plus the distribution and Docker Hub webhook
// formats, normalizes them, and hands them to the dispatcher.
type WebhookServer struct {
	addr       string
	dispatcher *dispatch.Dispatcher
}

// NewWebhookServer builds the intake server.
func NewWebhookServer(addr string, dispatcher *dispatch.Dispatcher) *WebhookServer {
	return &WebhookServer{addr: addr, dispatcher: dispatcher}
}

func (s *WebhookServer) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/webhook", s.handleGeneric).Methods(http.MethodPost)
	router.HandleFunc("/webhook/registry", s.handleRegistry).Methods(http.MethodPost)
	router.HandleFunc("/webhook/dockerhub", s.handleDockerHub).Methods(http.MethodPost)
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	return router
}

// Start serves until the context is canceled. It implements
// manager.Runnable.
func (s *WebhookServer) Start(ctx context.Context) error {
	logger := log.FromContext(ctx).WithName("webhook-server")

	router := s.routes()

	server := &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Webhook intake listening", "addr", s.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *WebhookServer) handleGeneric(w http.ResponseWriter, r *http.Request) {
	var payload model.GenericPushEvent
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if payload.Name == "" || payload.Tag == "" {
		writeError(w, http.StatusBadRequest, "name and tag are required")
		return
	}

	registry, repository := splitRepository(payload.Name)
	if payload.Repository != "" {
		repository = payload.Repository
	}

	s.dispatcher.HandleImagePush(r.Context(), model.ImagePushEvent{
		Registry:   registry,
		Repository: repository,
		Tag:        payload.Tag,
		Digest:     payload.Digest,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *WebhookServer) handleRegistry(w http.ResponseWriter, r *http.Request) {
	var payload model.RegistryWebhook
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	accepted := 0
	for _, event := range payload.Events {
		if event.Action != "push" || event.Target.Tag == "" {
			continue
		}
		accepted++
		if event.Target.MediaType == chartConfigMediaType {
			s.dispatcher.HandleChartPush(r.Context(), model.ChartPushEvent{
				Repository: event.Target.Repository,
				Version:    event.Target.Tag,
				Digest:     event.Target.Digest,
			})
			continue
		}
		s.dispatcher.HandleImagePush(r.Context(), model.ImagePushEvent{
			Repository: event.Target.Repository,
			Tag:        event.Target.Tag,
			Digest:     event.Target.Digest,
		})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "events": accepted})
}

func (s *WebhookServer) handleDockerHub(w http.ResponseWriter, r *http.Request) {
	var payload model.DockerHubWebhook
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if payload.Repository.RepoName == "" || payload.PushData.Tag == "" {
		writeError(w, http.StatusBadRequest, "repo_name and tag are required")
		return
	}

	s.dispatcher.HandleImagePush(r.Context(), model.ImagePushEvent{
		Repository: payload.Repository.RepoName,
		Tag:        payload.PushData.Tag,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// splitRepository separates an optional registry host from a repository
// path. The first path segment is a host when it contains a dot, a colon,
// or is "localhost".
func splitRepository(name string) (registry, repository string) {
	parts := strings.SplitN(name, "/", 2)
	if len(parts) == 2 {
		host := parts[0]
		if strings.ContainsAny(host, ".:") || host == "localhost" {
			return host, parts[1]
		}
	}
	return "", name
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
