package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/registrar"
)

type Catalog interface {
	Engines(ctx context.Context) ([]string, error)
	LocalPackages() ([]string, error)
	Activities(ctx context.Context) ([]string, error)
}

type Provisioner interface {
	Setup(ctx context.Context, engine, pkg string) (registrar.Result, error)
	DeleteAccount(ctx context.Context) error
}

type SetupHandler struct {
	catalog     Catalog
	provisioner Provisioner
	logger      zerolog.Logger
}

func NewSetupHandler(catalog Catalog, provisioner Provisioner, logger zerolog.Logger) *SetupHandler {
	return &SetupHandler{
		catalog:     catalog,
		provisioner: provisioner,
		logger:      logger,
	}
}

func (h *SetupHandler) ListEngines(w http.ResponseWriter, r *http.Request) {
	engines, err := h.catalog.Engines(r.Context())
	if err != nil {
		writeError(w, r, "Failed to list engines", err)
		return
	}
	writeJSON(w, engines)
}

func (h *SetupHandler) ListAppBundles(w http.ResponseWriter, r *http.Request) {
	packages, err := h.catalog.LocalPackages()
	if err != nil {
		writeError(w, r, "Failed to list app bundles", err)
		return
	}
	writeJSON(w, packages)
}

func (h *SetupHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.catalog.Activities(r.Context())
	if err != nil {
		writeError(w, r, "Failed to list activities", err)
		return
	}
	writeJSON(w, activities)
}

func (h *SetupHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Engine      string `json:"engine"`
		ZipFileName string `json:"zipFileName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, r, "Invalid request payload", err)
		return
	}
	if payload.Engine == "" || payload.ZipFileName == "" {
		writeError(w, r, "Invalid request payload", errors.New("engine and zipFileName are required"))
		return
	}

	result, err := h.provisioner.Setup(r.Context(), payload.Engine, payload.ZipFileName)
	if err != nil {
		writeError(w, r, "Setup failed", err)
		return
	}
	h.logger.Info().
		Str("app_bundle", result.AppBundle).
		Int("version", result.Version).
		Str("activity", result.Activity).
		Msg("setup complete")
	writeJSON(w, result)
}

func (h *SetupHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.provisioner.DeleteAccount(r.Context()); err != nil {
		writeError(w, r, "Failed to delete account", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
