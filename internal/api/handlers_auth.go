package api

import (
	"net/http"

	"github.com/carbon-tracker/internal/service"
)

type emailRequest struct {
	Email string `json:"email"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// handleSendOTP handles POST /api/auth/send-otp
func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w)
		return
	}

	if err := s.services.Auth.SendRegistrationOTP(r.Context(), req.Email); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "OTP sent to email"})
}

// handleVerifyOTP handles POST /api/auth/verify-otp
func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w)
		return
	}

	if err := s.services.Auth.VerifyRegistrationOTP(r.Context(), req.Email, req.OTP); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "OTP verified"})
}

// handleRegister handles POST /api/auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w)
		return
	}

	user, err := s.services.Auth.Register(r.Context(), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully",
		"user":    user,
	})
}

// handleLogin handles POST /api/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w)
		return
	}

	result, err := s.services.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleForgotPassword handles POST /api/auth/forgot-password
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w)
		return
	}

	if err := s.services.Auth.SendResetOTP(r.Context(), req.Email); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "OTP sent to email"})
}

// handleVerifyForgotOTP handles POST /api/auth/verify-forgot-otp
func (s *Server) handleVerifyForgotOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w)
		return
	}

	if err := s.services.Auth.VerifyResetOTP(r.Context(), req.Email, req.OTP); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "OTP verified"})
}

// handleResetPassword handles POST /api/auth/reset-password
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		NewPassword string `json:"newPassword"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w)
		return
	}

	if err := s.services.Auth.ResetPassword(r.Context(), req.Email, req.NewPassword); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Message: "Password reset successful"})
}
