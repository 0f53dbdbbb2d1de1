package httpapi

// handlers.go holds the thin per-route adapters: decode request, call the
// corresponding engine.Engine method, encode response. No business logic
// lives here — it all belongs to the engine and its components.

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corvus-paas/controlplane/engine"
	"github.com/corvus-paas/controlplane/pipeline"
)

type handlers struct {
	engine *engine.Engine
	logger *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// deployRequest is the wire shape shared by deploy, deployStreaming, and
// deployLegacy — DataFilePath is the host path of an upload already staged
// by whatever multipart-handling middleware sits in front of this handler.
type deployRequest struct {
	TeamID           string            `json:"team_id"`
	GitHubURL        string            `json:"github_url"`
	DeployedByID     *string           `json:"deployed_by_id"`
	BuildArgs        map[string]string `json:"build_args"`
	EnvVars          map[string]string `json:"env_vars"`
	DataFilePath     *string           `json:"data_file_path"`
	OriginalFileName *string           `json:"original_file_name"`
}

func (req deployRequest) toInput() pipeline.DeployInput {
	return pipeline.DeployInput{
		TeamID:           req.TeamID,
		GitHubURL:        req.GitHubURL,
		DeployedByID:     req.DeployedByID,
		BuildArgs:        req.BuildArgs,
		EnvVars:          req.EnvVars,
		DataFilePath:     req.DataFilePath,
		OriginalFileName: req.OriginalFileName,
	}
}

func (h *handlers) deploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	project, err := h.engine.Deploy(r.Context(), req.toInput())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

type legacyDeployRequest struct {
	deployRequest
	Variant pipeline.DBVariant `json:"variant"`
}

func (h *handlers) deployLegacy(w http.ResponseWriter, r *http.Request) {
	var req legacyDeployRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	project, err := h.engine.DeployLegacyTwoContainer(r.Context(), req.toInput(), req.Variant)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// deployStreaming relays build events as newline-delimited JSON, flushing
// after every event so a client can render build progress live instead of
// waiting for the whole deploy to finish.
func (h *handlers) deployStreaming(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	stream, err := h.engine.DeployStreaming(r.Context(), req.toInput())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	encoder := json.NewEncoder(w)
	for {
		ev, ok := stream.Next(r.Context())
		if !ok {
			break
		}
		if err := encoder.Encode(ev); err != nil {
			h.logger.Warn("deploy stream: client write failed", "error", err)
			break
		}
		if canFlush {
			flusher.Flush()
		}
	}

	project, err := stream.Close(r.Context())
	if err != nil {
		encoder.Encode(map[string]string{"error": err.Error()}) //nolint:errcheck
		if canFlush {
			flusher.Flush()
		}
		return
	}
	encoder.Encode(map[string]any{"done": true, "project": project}) //nolint:errcheck
	if canFlush {
		flusher.Flush()
	}
}

type redeployRequest struct {
	DeployedByID *string `json:"deployed_by_id"`
}

func (h *handlers) redeploy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req redeployRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	project, err := h.engine.Redeploy(r.Context(), id, req.DeployedByID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

type stopRequest struct {
	CallerID string `json:"caller_id"`
}

func (h *handlers) stopProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req stopRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	project, err := h.engine.StopProject(r.Context(), id, req.CallerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// runtimeLogs relays a running project's multiplexed container logs as
// NDJSON, same transport convention as deployStreaming.
func (h *handlers) runtimeLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	opts := daemonLogOptionsFromQuery(r)
	events, err := h.engine.StreamRuntimeLogs(r.Context(), id, opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	encoder := json.NewEncoder(w)
	for ev := range events {
		if err := encoder.Encode(ev); err != nil {
			h.logger.Warn("runtime log stream: client write failed", "error", err)
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

func (h *handlers) buildLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := h.engine.StreamBuildLogs(id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	encoder := json.NewEncoder(w)
	for ev := range events {
		encoder.Encode(ev) //nolint:errcheck
	}
}

func (h *handlers) pruneAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.PruneAllUntagged(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) pruneProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.engine.PruneProject(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type tagRequest struct {
	Label string `json:"label"`
}

func (h *handlers) tagOffering(w http.ResponseWriter, r *http.Request) {
	offeringID := chi.URLParam(r, "offeringID")
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.engine.TagCourseOffering(r.Context(), offeringID, req.Label)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) untagOffering(w http.ResponseWriter, r *http.Request) {
	offeringID := chi.URLParam(r, "offeringID")
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.engine.UntagCourseOffering(r.Context(), offeringID, req.Label)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type migrateRequest struct {
	ContainerName string  `json:"container_name"`
	TeamID        string  `json:"team_id"`
	GitHubURL     *string `json:"github_url"`
	DeployedByID  *string `json:"deployed_by_id"`
}

func (h *handlers) migrateContainer(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	report, err := h.engine.MigrateForeignContainer(r.Context(), req.ContainerName, req.TeamID, req.GitHubURL, req.DeployedByID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
