package handlers

import (
	"net/http"

	"github.com/username/divtracker/src/utils"
)

// HandleRoot answers the welcome route.
func HandleRoot(w http.ResponseWriter, r *http.Request) {
	utils.SendJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Dividend Tracker"})
}

// HandleHealth reports liveness only. It never calls an upstream.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	utils.SendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
