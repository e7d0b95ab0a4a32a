package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ayusman/memora/internal/store"
)

// maxUpdateSize bounds a posted update body.
const maxUpdateSize = 64 << 10

type postUpdateRequest struct {
	Update string `json:"update"`
	Date   string `json:"date"`
}

type updateResponse struct {
	ID        string `json:"id"`
	MemberID  string `json:"member_id"`
	Update    string `json:"update"`
	Date      string `json:"date,omitempty"`
	CreatedAt string `json:"created_at"`
}

type listUpdatesResponse struct {
	Updates []updateResponse `json:"updates"`
}

func toUpdateResponse(u *store.Update) updateResponse {
	return updateResponse{
		ID:        u.ID,
		MemberID:  u.MemberID,
		Update:    u.Content,
		Date:      u.Date,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// memberExists writes a 404 or 500 response and returns false when the
// member cannot be found.
func (h *MemberHandler) memberExists(w http.ResponseWriter, id string) bool {
	if _, err := h.store.Members().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Member not found")
			return false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get member")
		return false
	}
	return true
}

// PostUpdate handles POST /api/members/{id}/updates with a JSON body
// {"update": "...", "date": "..."}. The newest update is used in the
// member's next conversation starter.
func (h *MemberHandler) PostUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.memberExists(w, id) {
		return
	}

	var req postUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	content := strings.TrimSpace(req.Update)
	if content == "" {
		writeError(w, http.StatusBadRequest, "Update content is required")
		return
	}

	u := &store.Update{
		ID:       uuid.New().String(),
		MemberID: id,
		Content:  content,
		Date:     strings.TrimSpace(req.Date),
	}
	if err := h.store.Updates().Add(u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store update")
		return
	}

	writeJSON(w, http.StatusCreated, toUpdateResponse(u))
}

// ListUpdates handles GET /api/members/{id}/updates, newest first.
func (h *MemberHandler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.memberExists(w, id) {
		return
	}

	updates, err := h.store.Updates().ListForMember(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list updates")
		return
	}

	response := listUpdatesResponse{Updates: make([]updateResponse, 0, len(updates))}
	for _, u := range updates {
		response.Updates = append(response.Updates, toUpdateResponse(u))
	}
	writeJSON(w, http.StatusOK, response)
}
