package api

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/starford/trailguard/internal/contacts"
)

const maxImportBytes = 5 << 20 // 5 MB

// ImportContacts handles POST /api/contacts/import (multipart/form-data, field "file").
//
//	@Summary		Upload a device contact export (vCard, YAML or text records)
//	@Tags			contacts
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Contact export"
//	@Success		201		{object}	ImportResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts/import [post]
func (h *Handler) ImportContacts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}

	name := filepath.Base(header.Filename)
	set, err := h.svc.ImportContacts(r.Context(), name, data)
	if err != nil && !contacts.IsDegraded(err) {
		writeError(w, "import contacts", err)
		return
	}
	writeJSON(w, http.StatusCreated, ImportResponse{
		Filename: name,
		Size:     len(data),
		Selected: set.View(),
		Roster:   h.svc.Contacts().Roster,
	})
}
