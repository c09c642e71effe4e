package routes

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stanstork/designauto/internal/handlers"
	"github.com/stanstork/designauto/internal/middleware"
)

// NewRouter sets up the API routes. Files under webRoot are served for any
// other path when the directory exists.
func NewRouter(setup *handlers.SetupHandler, workItems *handlers.WorkItemHandler, webRoot string) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.MetricsMiddleware)

	// Health check and metrics
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	// Provisioning
	api.HandleFunc("/engines", setup.ListEngines).Methods(http.MethodGet)
	api.HandleFunc("/appbundles", setup.ListAppBundles).Methods(http.MethodGet)
	api.HandleFunc("/activities", setup.ListActivities).Methods(http.MethodGet)
	api.HandleFunc("/setup", setup.Setup).Methods(http.MethodPost)
	api.HandleFunc("/account", setup.DeleteAccount).Methods(http.MethodDelete)

	// Work items
	api.HandleFunc("/workitems", workItems.StartWorkItem).Methods(http.MethodPost)
	api.HandleFunc("/workitems/{id}", workItems.GetWorkItem).Methods(http.MethodGet)
	api.HandleFunc("/workitems/{id}/wait", workItems.WaitWorkItem).Methods(http.MethodGet)
	api.HandleFunc("/files/{name}/url", workItems.GetDownloadURL).Methods(http.MethodGet)

	if info, err := os.Stat(webRoot); err == nil && info.IsDir() {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(webRoot)))
	}

	return router
}
