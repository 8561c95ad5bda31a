package api

import (
	"net/http"

	"github.com/carbon-tracker/internal/service"
)

// handleSubmitActivity handles POST /api/activities
func (s *Server) handleSubmitActivity(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitActivityInput
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w)
		return
	}
	req.UserID = userIDFromContext(r.Context())

	result, err := s.services.Activities.Submit(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// handleMyActivities handles GET /api/activities/my?limit=&offset=
func (s *Server) handleMyActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	activities, err := s.services.Activities.ListMine(r.Context(), userIDFromContext(r.Context()), limit, offset)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(activities))
}

// handleLeaderboard handles GET /api/activities/leaderboard?limit=
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	entries, err := s.services.Leaderboard.Leaderboard(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(entries))
}

// handleWeeklySummary handles GET /api/activities/weekly-summary
func (s *Server) handleWeeklySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.services.Summary.WeeklySummary(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
