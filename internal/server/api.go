package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	headwindv1alpha1 "github.com/headwind-sh/headwind/api/v1alpha1"
	"github.com/headwind-sh/headwind/internal/history"
	"github.com/headwind-sh/headwind/internal/model"
	"github.com/headwind-sh/headwind/internal/pipeline"
	"github.com/headwind-sh/headwind/internal/workload"
)

// APIServer exposes the approval and rollback API. It carries no
// authentication; access control belongs to the platform's ingress layer.
type APIServer struct {
	addr     string
	client   client.Client
	pipeline *pipeline.Pipeline
}

// NewAPIServer builds the approval/rollback API server.
func NewAPIServer(addr string, c client.Client, p *pipeline.Pipeline) *APIServer {
	return &APIServer{addr: addr, client: c, pipeline: p}
}

func (s *APIServer) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/updates", s.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/updates/{namespace}/{name}", s.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/updates/{namespace}/{name}/approve", s.handleApprove).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/updates/{namespace}/{name}/reject", s.handleReject).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/rollback/{namespace}/{workload}/history", s.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/rollback/{namespace}/{workload}/{container}", s.handleRollback).Methods(http.MethodPost)
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	return router
}

// Start serves until the context is canceled. It implements
// manager.Runnable.
func (s *APIServer) Start(ctx context.Context) error {
	logger := log.FromContext(ctx).WithName("api-server")

	router := s.routes()

	server := &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Approval API listening", "addr", s.addr)
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

func (s *APIServer) handleList(w http.ResponseWriter, r *http.Request) {
	var list headwindv1alpha1.UpdateRequestList
	opts := []client.ListOption{}
	if ns := r.URL.Query().Get("namespace"); ns != "" {
		opts = append(opts, client.InNamespace(ns))
	}
	if err := s.client.List(r.Context(), &list, opts...); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list.Items)
}

func (s *APIServer) handleGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	urq := &headwindv1alpha1.UpdateRequest{}
	err := s.client.Get(r.Context(), client.ObjectKey{Namespace: vars["namespace"], Name: vars["name"]}, urq)
	if err != nil {
		if apierrors.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "UpdateRequest not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, urq)
}

type approvalRequest struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason,omitempty"`
}

func (s *APIServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Approver == "" {
		writeError(w, http.StatusBadRequest, "approver is required")
		return
	}

	urq, err := s.pipeline.Approve(r.Context(), vars["namespace"], vars["name"], body.Approver)
	if err != nil {
		if apierrors.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "UpdateRequest not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, urq)
}

func (s *APIServer) handleReject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Approver == "" {
		writeError(w, http.StatusBadRequest, "approver is required")
		return
	}

	urq, err := s.pipeline.Reject(r.Context(), vars["namespace"], vars["name"], body.Approver, body.Reason)
	if err != nil {
		if apierrors.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "UpdateRequest not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, urq)
}

func (s *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	adapter, err := s.findWorkload(r.Context(), vars["namespace"], vars["workload"], r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	entries, err := history.Load(adapter.Annotations())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *APIServer) handleRollback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	adapter, err := s.findWorkload(r.Context(), vars["namespace"], vars["workload"], r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	ref := adapter.Ref()
	if err := s.pipeline.Rollback(r.Context(), ref, vars["container"], "manual rollback via API", true); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "rolled back",
		"workload":  ref.String(),
		"container": vars["container"],
	})
}

// findWorkload resolves a workload by name. The route carries no kind; an
// explicit ?kind= wins, otherwise the kinds are probed in order.
func (s *APIServer) findWorkload(ctx context.Context, namespace, name, kind string) (workload.Adapter, error) {
	kinds := []model.WorkloadKind{model.KindDeployment, model.KindStatefulSet, model.KindDaemonSet, model.KindHelmRelease}
	if kind != "" {
		k, err := workload.ParseKind(kind)
		if err != nil {
			return nil, err
		}
		kinds = []model.WorkloadKind{k}
	}

	var lastErr error
	for _, k := range kinds {
		adapter, err := workload.Load(ctx, s.client, model.WorkloadRef{Kind: k, Namespace: namespace, Name: name})
		if err == nil {
			return adapter, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
