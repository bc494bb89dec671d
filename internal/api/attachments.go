package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"parley/internal/content"
	"parley/internal/models"
	"parley/internal/storage"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

// sniffLen covers the office document matchers, which look past the zip header.
const sniffLen = 8192

var allowedMimeTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

func attachmentURL(id string) string {
	return "/api/attachments/" + id
}

// UploadAttachmentHandler stores a multipart "file" field and returns the
// attachment reference to put into a message.
func (a *API) UploadAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > a.maxUploadBytes {
		http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		http.Error(w, "Failed to read file", http.StatusBadRequest)
		return
	}
	head = head[:n]

	mimeType, err := detectMimeType(head, header.Filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	hash, size, err := a.files.Save(io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		a.writeError(w, err)
		return
	}

	name := content.Sanitize(filepath.Base(header.Filename))
	if name == "" || name == "." {
		name = "attachment"
	}

	meta := storage.FileMetadata{
		ID:        uuid.NewString(),
		Hash:      hash,
		Name:      name,
		MimeType:  mimeType,
		Size:      size,
		CreatedAt: a.now().UnixMilli(),
		UserID:    userIDFrom(r.Context()),
	}
	if err := a.store.UpsertFileMetadata(meta); err != nil {
		a.writeError(w, err)
		return
	}

	a.log.Debug("attachment stored", "file_id", meta.ID, "mime_type", mimeType, "size", size)
	a.writeJSON(w, http.StatusCreated, models.Attachment{
		URL:      attachmentURL(meta.ID),
		Name:     name,
		MimeType: mimeType,
	})
}

func (a *API) GetAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	meta, err := a.store.GetFileMetadata(r.PathValue("id"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	rc, err := a.files.Get(meta.Hash)
	if err != nil {
		a.writeError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	disposition := "attachment"
	if strings.HasPrefix(meta.MimeType, "image/") {
		disposition = "inline"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, meta.Name))
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")

	if _, err := io.Copy(w, rc); err != nil {
		a.log.Warn("failed to stream attachment", "file_id", meta.ID, "error", err)
	}
}

func detectMimeType(head []byte, filename string) (string, error) {
	kind, err := filetype.Match(head)
	if err == nil && kind != filetype.Unknown {
		if !allowedMimeTypes[kind.MIME.Value] {
			return "", fmt.Errorf("file type %s is not allowed", kind.MIME.Value)
		}
		return kind.MIME.Value, nil
	}

	if strings.EqualFold(filepath.Ext(filename), ".txt") && utf8.Valid(head) {
		return "text/plain", nil
	}
	return "", errors.New("unrecognized file type")
}
