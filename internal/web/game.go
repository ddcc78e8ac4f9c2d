// ABOUTME: Game server proxy handlers for server status and the online player list
// ABOUTME: Upstream failures become a null data field rather than an error status

package web

import (
	"net/http"
)

// GuestAvatar is shown for players without an avatar.
const GuestAvatar = "/api/avatar?uid=Guest"

type playerEntry struct {
	Name   string `json:"Name"`
	Avatar string `json:"Avatar"`
}

// handleServer handles GET /api/server.
func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	status, err := s.game.Status(r.Context())
	if err != nil {
		writeData(w, nil)
		return
	}
	writeData(w, status)
}

// handlePlayers handles GET /api/players using the caller's key.
func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	info, err := s.users.GetUserInfo(r.Context(), caller(r).UID)
	if err != nil {
		s.fail(w, r, "player list", err)
		return
	}
	entries := []playerEntry{}
	if info == nil {
		writeData(w, entries)
		return
	}

	players, err := s.game.Players(r.Context(), info.Key)
	if err != nil {
		writeData(w, entries)
		return
	}
	for _, p := range players {
		e := playerEntry{Name: p.Name, Avatar: GuestAvatar}
		if p.Avatar != "" {
			e.Avatar = p.Avatar
		}
		entries = append(entries, e)
	}
	writeData(w, entries)
}
