// Package api provides HTTP API handlers for managing enrolled family members.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ayusman/memora/internal/store"
)

// MaxUploadSize bounds a multipart enrollment upload.
const MaxUploadSize = 10 << 20

// Rebuilder refreshes the gallery after enrollment changes.
type Rebuilder interface {
	RebuildInBackground() <-chan error
}

// MemberHandler handles HTTP requests for member resources.
type MemberHandler struct {
	store     *store.Store
	rebuilder Rebuilder
}

// NewMemberHandler creates a new MemberHandler. rebuilder may be nil.
func NewMemberHandler(s *store.Store, rebuilder Rebuilder) *MemberHandler {
	return &MemberHandler{store: s, rebuilder: rebuilder}
}

// Routes registers the member endpoints on r.
func (h *MemberHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/image", h.Image)
	r.Post("/{id}/images", h.AddImage)
	r.Get("/{id}/updates", h.ListUpdates)
	r.Post("/{id}/updates", h.PostUpdate)
}

type updateMemberRequest struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Age      int    `json:"age"`
	Interest string `json:"interest"`
}

type memberResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Relation  string `json:"relation"`
	Age       int    `json:"age"`
	Interest  string `json:"interest"`
	Images    int    `json:"images"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type listMembersResponse struct {
	Members []memberResponse `json:"members"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(m *store.Member, images int) memberResponse {
	return memberResponse{
		ID:        m.ID,
		Name:      m.Name,
		Relation:  m.Relation,
		Age:       m.Age,
		Interest:  m.Interest,
		Images:    images,
		CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: m.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// List handles GET /api/members and returns all members.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.Members().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members")
		return
	}

	response := listMembersResponse{
		Members: make([]memberResponse, 0, len(members)),
	}
	for _, m := range members {
		images, _ := h.store.Enrollments().ListForMember(m.ID)
		response.Members = append(response.Members, toResponse(m, len(images)))
	}

	writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/members/{id}.
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m, err := h.store.Members().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Member not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get member")
		return
	}

	images, _ := h.store.Enrollments().ListForMember(id)
	writeJSON(w, http.StatusOK, toResponse(m, len(images)))
}

// parseUpload parses a multipart enrollment form, rejecting bodies larger
// than MaxUploadSize. It writes the error response and returns false on failure.
func parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	err := r.ParseMultipartForm(MaxUploadSize)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Upload too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
	return false
}

// Create handles POST /api/members. The request is a multipart form with
// the member fields and one "image" file holding their face. The gallery
// is rebuilt in the background once the member is stored.
func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !parseUpload(w, r) {
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	age := 0
	if s := r.FormValue("age"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid age")
			return
		}
		age = n
	}

	img, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m := &store.Member{
		ID:       uuid.New().String(),
		Name:     name,
		Relation: r.FormValue("relation"),
		Age:      age,
		Interest: r.FormValue("interest"),
	}
	if err := h.store.Members().Create(m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create member")
		return
	}

	img.MemberID = m.ID
	if err := h.store.Enrollments().Add(img); err != nil {
		h.store.Members().Delete(m.ID)
		writeError(w, http.StatusInternalServerError, "Failed to store image")
		return
	}

	h.rebuild()
	writeJSON(w, http.StatusCreated, toResponse(m, 1))
}

// AddImage handles POST /api/members/{id}/images with an "image" file.
func (h *MemberHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.store.Members().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Member not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get member")
		return
	}

	if !parseUpload(w, r) {
		return
	}
	img, err := readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	img.MemberID = id
	if err := h.store.Enrollments().Add(img); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store image")
		return
	}

	h.rebuild()
	writeJSON(w, http.StatusCreated, map[string]string{"id": img.ID, "member_id": id})
}

// Update handles PUT /api/members/{id}. Only non-empty fields are changed.
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	m, err := h.store.Members().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Member not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get member")
		return
	}

	var req updateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name != "" {
		m.Name = req.Name
	}
	if req.Relation != "" {
		m.Relation = req.Relation
	}
	if req.Age > 0 {
		m.Age = req.Age
	}
	if req.Interest != "" {
		m.Interest = req.Interest
	}

	if err := h.store.Members().Update(m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update member")
		return
	}

	images, _ := h.store.Enrollments().ListForMember(id)
	writeJSON(w, http.StatusOK, toResponse(m, len(images)))
}

// Delete handles DELETE /api/members/{id}. The member's images go with it
// and the gallery is rebuilt so they stop matching.
func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.Members().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Member not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete member")
		return
	}

	h.rebuild()
	w.WriteHeader(http.StatusNoContent)
}

// Image handles GET /api/members/{id}/image and returns the member's first
// enrollment image.
func (h *MemberHandler) Image(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	images, err := h.store.Enrollments().ListForMember(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list images")
		return
	}
	if len(images) == 0 {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}

	img, err := h.store.Enrollments().Get(images[0].ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get image")
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

func (h *MemberHandler) rebuild() {
	if h.rebuilder == nil {
		return
	}
	h.rebuilder.RebuildInBackground()
}

// readImage reads the "image" file from a parsed multipart form.
func readImage(r *http.Request) (*store.EnrollmentImage, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, errors.New("Image file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("failed to read upload %s: %v", header.Filename, err)
		return nil, errors.New("Failed to read image")
	}
	if len(data) == 0 {
		return nil, errors.New("Image file is empty")
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, errors.New("File is not an image")
	}

	return &store.EnrollmentImage{
		ID:          uuid.New().String(),
		Filename:    filepath.Base(header.Filename),
		ContentType: contentType,
		Data:        data,
	}, nil
}
