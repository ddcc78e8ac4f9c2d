// ABOUTME: Admin handlers: granting and revoking admin, banning and unbanning, ban lookup
// ABOUTME: Ban and op routes take the target uid from the query string

package web

import (
	"net/http"
	"strconv"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/users"
)

type uidQuery struct {
	UID string `query:"uid" validate:"required"`
}

type banQuery struct {
	UID     string `query:"uid" validate:"required"`
	Minutes int    `query:"minutes" validate:"gte=0"`
	Days    int    `query:"days" validate:"gte=0"`
	Reason  string `query:"reason" validate:"max=256"`
}

// banInfoResponse adds the admin flag to a ban summary. A nil summary means not banned.
type banInfoResponse struct {
	*users.BanSummary
	Admin bool `json:"Admin"`
}

func (s *Server) targetUID(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := uidQuery{UID: r.URL.Query().Get("uid")}
	if err := s.check(&q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return q.UID, true
}

func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// handleOp handles GET /api/op?uid=.
func (s *Server) handleOp(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.targetUID(w, r)
	if !ok {
		return
	}
	if err := s.users.GiveOp(r.Context(), uid); err != nil {
		s.fail(w, r, "admin grant", err)
		return
	}
	writeOK(w)
}

// handleDeOp handles GET /api/deop?uid=.
func (s *Server) handleDeOp(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.targetUID(w, r)
	if !ok {
		return
	}
	if err := s.users.DeOp(r.Context(), uid); err != nil {
		s.fail(w, r, "admin revoke", err)
		return
	}
	writeOK(w)
}

// handleBan handles GET /api/ban?uid=&minutes=&days=&reason=.
func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	q := banQuery{UID: r.URL.Query().Get("uid"), Reason: r.URL.Query().Get("reason")}
	var err error
	if q.Minutes, err = queryInt(r, "minutes"); err != nil {
		writeError(w, http.StatusBadRequest, "minutes is invalid")
		return
	}
	if q.Days, err = queryInt(r, "days"); err != nil {
		writeError(w, http.StatusBadRequest, "days is invalid")
		return
	}
	if err := s.check(&q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := s.users.GetUserInfo(r.Context(), q.UID)
	if err != nil {
		s.fail(w, r, "ban", err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if info.Admin {
		writeError(w, http.StatusForbidden, "admins cannot be banned")
		return
	}

	ban, err := s.users.BanUser(r.Context(), info.UID, q.Minutes, q.Days, q.Reason)
	if err != nil {
		s.fail(w, r, "ban", err)
		return
	}
	s.logger.Info("ban issued", "by", caller(r).UID, "uid", info.UID, "reason", ban.Reason)
	writeData(w, ban)
}

// handleDeBan handles GET /api/deban?uid=. data reports whether a ban was removed.
func (s *Server) handleDeBan(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.targetUID(w, r)
	if !ok {
		return
	}
	cleared, err := s.users.ClearBan(r.Context(), uid)
	if err != nil {
		s.fail(w, r, "unban", err)
		return
	}
	writeData(w, cleared)
}

// handleBanInfo handles GET /api/baninfo?uid=.
func (s *Server) handleBanInfo(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.targetUID(w, r)
	if !ok {
		return
	}
	info, err := s.users.GetUserInfo(r.Context(), uid)
	if err != nil {
		s.fail(w, r, "ban lookup", err)
		return
	}
	if info == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	summary, err := s.users.BanSummary(r.Context(), info.UID)
	if err != nil {
		s.fail(w, r, "ban lookup", err)
		return
	}
	writeData(w, banInfoResponse{BanSummary: summary, Admin: info.Admin})
}
