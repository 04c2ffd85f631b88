package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/users"
)

type setUserRoleRequest struct {
	TargetUID string      `json:"targetUid"`
	Role      domain.Role `json:"role"`
}

// SetUserRole handles POST /api/v1/users/role.
func SetUserRole(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setUserRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := svc.SetUserRole(r.Context(), req.TargetUID, req.Role); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, map[string]bool{"ok": true})
	}
}
