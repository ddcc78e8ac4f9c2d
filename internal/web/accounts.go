// ABOUTME: Account handlers: login, registration, password, key, name, avatar and account removal
// ABOUTME: Per-user routes act on the caller's own uid unless the token says admin

package web

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/auth"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/profile"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/store"
	"github.com/LyceenAiro/CelesteNet-UserTool/internal/users"
)

type loginRequest struct {
	UID string `json:"uid" validate:"required"`
	Pwd string `json:"pwd" validate:"required"`
}

type registerRequest struct {
	UID      string  `json:"uid" validate:"required,max=64,excludesall=/\\"`
	Password string  `json:"password" validate:"required"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

type resetPasswordRequest struct {
	NewPwd string `json:"new_pwd" validate:"required"`
}

type changeNameRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

// fail maps service errors to status codes and logs unexpected ones.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, users.ErrNoProfile), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, users.ErrAlreadyRegistered), errors.Is(err, store.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "user already exists")
	case errors.Is(err, users.ErrInvalidDuration), errors.Is(err, auth.ErrEmptyPassword),
		errors.Is(err, profile.ErrInvalidUID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op+" failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

// caller returns the session of the request. Routes using it sit behind HTTPAuthMiddleware.
func caller(r *http.Request) *auth.AuthContext {
	return auth.MustFromContext(r.Context())
}

// handleLogin handles POST /api/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Only the uid itself identifies a login; keys are never accepted here.
	ok, err := s.users.Credentials().VerifyPassword(r.Context(), req.UID, req.Pwd)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid uid or password")
		return
	}

	info, err := s.users.GetUserInfo(r.Context(), req.UID)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	if info == nil || info.UID != req.UID {
		writeError(w, http.StatusUnauthorized, "invalid uid or password")
		return
	}

	token, err := s.tokens.Generate(info.UID, info.Admin, s.cfg.TokenTTL)
	if err != nil {
		s.fail(w, r, "login", err)
		return
	}
	s.logger.Info("web login", "uid", info.UID)
	writeJSON(w, map[string]any{
		"access_token": token,
		"user_info": map[string]any{
			"uid":          info.UID,
			"name":         info.Name,
			"admin":        info.Admin,
			"has_password": true,
		},
	})
}

// handleLogout handles POST /api/logout. Tokens are stateless so there is nothing to revoke.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeOK(w)
}

// handleWebSetting handles GET /api/websetting.
func (s *Server) handleWebSetting(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"celestenet_url": "http://" + s.cfg.WebRedirect,
		"webtitle":       s.cfg.WebTitle,
	})
}

// handleRegister handles POST /api/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := s.users.CreateUserData(r.Context(), req.UID, &req.Password, req.Email)
	if err != nil {
		s.fail(w, r, "register", err)
		return
	}
	writeJSON(w, map[string]any{"uid": req.UID, "key": key})
}

// handleGetUser handles GET /api/user/{uid}.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if me := caller(r); me.UID != uid && !me.IsAdmin {
		writeError(w, http.StatusForbidden, "not allowed to view this user")
		return
	}

	info, err := s.users.GetUserInfo(r.Context(), uid)
	if err != nil {
		s.fail(w, r, "user lookup", err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeData(w, info)
}

// handleResetPassword handles PUT /api/user/{uid}/reset_password.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if me := caller(r); me.UID != uid && !me.IsAdmin {
		writeError(w, http.StatusForbidden, "not allowed to change this password")
		return
	}
	var req resetPasswordRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.users.Credentials().UpdatePassword(r.Context(), uid, req.NewPwd); err != nil {
		s.fail(w, r, "password reset", err)
		return
	}
	writeOK(w)
}

// handleResetKey handles PUT /api/user/{uid}/reset_key.
func (s *Server) handleResetKey(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if caller(r).UID != uid {
		writeError(w, http.StatusForbidden, "not allowed to reset this key")
		return
	}

	key, err := s.users.RotateKey(r.Context(), uid)
	if err != nil {
		s.fail(w, r, "key reset", err)
		return
	}
	writeData(w, map[string]string{"uid": uid, "key": key})
}

// handleChangeName handles PUT /api/user/{uid}/change_name.
func (s *Server) handleChangeName(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if caller(r).UID != uid {
		writeError(w, http.StatusForbidden, "not allowed to rename this user")
		return
	}
	var req changeNameRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.users.ChangeName(r.Context(), uid, req.Name); err != nil {
		s.fail(w, r, "rename", err)
		return
	}
	writeOK(w)
}

// handleCancelUser handles POST /api/user/{uid}/cancel_user.
func (s *Server) handleCancelUser(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if caller(r).UID != uid {
		writeError(w, http.StatusForbidden, "not allowed to remove other users")
		return
	}

	if err := s.users.RemoveUser(r.Context(), uid); err != nil {
		s.fail(w, r, "account removal", err)
		return
	}
	writeOK(w)
}

// handleUploadAvatar handles POST /api/user/{uid}/upload_avatar with a multipart "file" field.
func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if caller(r).UID != uid {
		writeError(w, http.StatusForbidden, "not allowed to change this avatar")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no file selected")
		return
	}
	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		writeError(w, http.StatusBadRequest, "only image files are accepted")
		return
	}

	if err := s.users.SaveGlobalAvatar(uid, file); err != nil {
		writeError(w, http.StatusBadRequest, "unreadable image")
		return
	}
	if err := s.users.InsertAvatar(r.Context(), uid); err != nil {
		s.fail(w, r, "avatar update", err)
		return
	}
	writeOK(w)
}

// handleAvatar handles GET /api/avatar?uid= and streams the stored PNG.
func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "uid is required")
		return
	}

	rc, found, err := s.users.Avatar(r.Context(), uid)
	if err != nil {
		s.fail(w, r, "avatar read", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no avatar")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("streaming avatar failed", "uid", uid, "error", err)
	}
}
