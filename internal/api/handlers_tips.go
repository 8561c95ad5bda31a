package api

import (
	"net/http"
)

// handleListTips handles GET /api/tips?category=
func (s *Server) handleListTips(w http.ResponseWriter, r *http.Request) {
	tips, err := s.services.Tips.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(tips))
}

// handleRecommendedTips handles GET /api/tips/recommended
func (s *Server) handleRecommendedTips(w http.ResponseWriter, r *http.Request) {
	tips, err := s.services.Tips.Recommend(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(tips))
}
