/*
documents.go - Attachment endpoints

PURPOSE:
  Upload, list, download, and delete files attached to a request. The bytes
  live on disk under the storage service; the database holds metadata only.
  Upload and delete both write an audit entry in the same transaction as
  the metadata change.

RULES:
  - Uploads are validated by extension and size before any record exists.
  - A multipart form carries the file plus optional doc_type and
    description fields.
  - Documents on a complete request cannot be deleted; the attachment set
    of a finished purchase is part of its record.

ENDPOINTS:
  POST   /api/requests/{id}/documents
  GET    /api/requests/{id}/documents
  GET    /api/requests/{id}/documents/{docID}/download
  DELETE /api/requests/{id}/documents/{docID}
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adukes40/ReqPath/procure"
)

func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))

	if _, err := h.Engine.Get(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field", err)
		return
	}
	defer file.Close()

	docType := procure.DocType(r.FormValue("doc_type"))
	if docType == "" {
		docType = procure.DocOther
	}
	if !docType.Valid() {
		writeError(w, http.StatusBadRequest, "unknown document type", nil)
		return
	}

	saved, err := h.Files.Save(id, header.Filename, file)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	user := userFrom(r.Context())
	now := time.Now().UTC()
	doc := &procure.Document{
		ID:               procure.NewDocumentID(),
		RequestID:        id,
		Type:             docType,
		Filename:         saved.Filename,
		OriginalFilename: header.Filename,
		FilePath:         saved.Path,
		FileSize:         saved.Size,
		MimeType:         header.Header.Get("Content-Type"),
		Description:      r.FormValue("description"),
		UploadedBy:       user.ID,
		UploadedAt:       now,
	}

	entry := procure.NewAuditEntry(id, user.ID, procure.AuditDocumentUploaded, procure.Details{
		"filename": header.Filename,
		"doc_type": string(docType),
	}, now)
	if err := h.Store.AddDocument(r.Context(), doc, entry); err != nil {
		// The record failed; don't leave the bytes orphaned.
		h.Files.Delete(saved.Path)
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentDTO(doc))
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))

	if _, err := h.Engine.Get(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}

	docs, err := h.Store.ListDocuments(r.Context(), id, r.URL.Query().Get("doc_type"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]DocumentDTO, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentDTO(&docs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))
	docID := procure.DocumentID(chi.URLParam(r, "docID"))

	doc, err := h.Store.GetDocument(r.Context(), id, docID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	path, err := h.Files.FullPath(doc.FilePath)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	name := doc.OriginalFilename
	if name == "" {
		name = doc.Filename
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if doc.MimeType != "" {
		w.Header().Set("Content-Type", doc.MimeType)
	}
	http.ServeFile(w, r, path)
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := procure.RequestID(chi.URLParam(r, "id"))
	docID := procure.DocumentID(chi.URLParam(r, "docID"))

	agg, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if agg.Request.Status == procure.StatusComplete {
		h.respondError(w, r, &procure.StatusError{Op: "delete documents from", Status: agg.Request.Status})
		return
	}

	doc, err := h.Store.GetDocument(r.Context(), id, docID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	user := userFrom(r.Context())
	entry := procure.NewAuditEntry(id, user.ID, procure.AuditDocumentDeleted, procure.Details{
		"filename": doc.OriginalFilename,
		"doc_id":   string(docID),
	}, time.Now().UTC())
	if err := h.Store.DeleteDocument(r.Context(), id, docID, entry); err != nil {
		h.respondError(w, r, err)
		return
	}

	// Record first, bytes second. A failed disk removal leaves garbage, not
	// a dangling record.
	if err := h.Files.Delete(doc.FilePath); err != nil {
		h.Log.WithError(err).WithField("path", doc.FilePath).Warn("failed to remove document file")
	}
	w.WriteHeader(http.StatusNoContent)
}
