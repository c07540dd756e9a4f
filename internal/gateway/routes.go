package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Register wires the five observability endpoints onto r, matching the
// CLI's observability subcommand names (dag-view, inspect-policy,
// validate-quorum, activity-log, federation-overview).
func Register(r *mux.Router, c *Controller) {
	r.Use(loggingMiddleware)
	r.HandleFunc("/api/dag/view", c.DagView).Methods(http.MethodGet)
	r.HandleFunc("/api/policy/inspect", c.InspectPolicy).Methods(http.MethodGet)
	r.HandleFunc("/api/quorum/validate", c.ValidateQuorum).Methods(http.MethodPost)
	r.HandleFunc("/api/activity-log", c.ActivityLog).Methods(http.MethodGet)
	r.HandleFunc("/api/federation/overview", c.FederationOverview).Methods(http.MethodGet)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Info("observability request")
	})
}
