package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/carbon-tracker/internal/service"
)

// profilePicField is the multipart field carrying the picture
const profilePicField = "profilePic"

// multipartOverhead allows for multipart headers around the file itself
const multipartOverhead = 64 << 10

// handleGetMe handles GET /api/users/me
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.services.Users.Me(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// handleUpdateMe handles PUT /api/users/me
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileInput
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w)
		return
	}

	user, err := s.services.Users.UpdateProfile(r.Context(), userIDFromContext(r.Context()), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// handleUploadProfilePic handles POST /api/users/upload (multipart, field profilePic)
func (s *Server) handleUploadProfilePic(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.services.Users.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	file, _, err := r.FormFile(profilePicField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "File is too large")
			return
		}
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "profilePic file is required")
		return
	}
	defer file.Close()

	// Read one byte past the limit so oversize files are detected
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Failed to read upload")
		return
	}

	result, err := s.services.Users.UploadProfilePic(r.Context(), userIDFromContext(r.Context()), data)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleAchievements handles GET /api/achievements and GET /api/users/achievements
func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := s.services.Achievements.List(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"achievements": emptyIfNil(achievements),
	})
}

// handleGetGoal handles GET /api/goals
func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.services.Goals.Get(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, goal)
}

// handleSetGoal handles POST /api/goals
func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WeeklyGoal *float64 `json:"weeklyGoal"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w)
		return
	}
	if req.WeeklyGoal == nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "weeklyGoal is required")
		return
	}

	result, err := s.services.Goals.Set(r.Context(), userIDFromContext(r.Context()), *req.WeeklyGoal)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
