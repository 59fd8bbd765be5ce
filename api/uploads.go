package api

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/server"
	"github.com/kbukum/medscribe/storage"
	"github.com/kbukum/medscribe/util"
)

const (
	uploadURLExpiry   = 24 * time.Hour
	downloadURLExpiry = time.Hour
)

var allowedMimeTypes = []string{
	"audio/wav",
	"audio/mp3",
	"audio/mpeg",
	"audio/webm",
	"audio/ogg",
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/webp",
}

type fileKind struct {
	field string
	dir   string
	label string
}

var (
	kindAudio = fileKind{field: "audio", dir: "audio", label: "audio"}
	kindImage = fileKind{field: "image", dir: "images", label: "image"}
)

type uploadResponse struct {
	FileID      string `json:"fileId"`
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadURL"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mimetype"`
}

type fileEntry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	Updated     time.Time `json:"updated"`
}

func (h *Handler) upload(kind fileKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Storage == nil {
			server.RespondWithError(c, apperrors.ServiceUnavailable("file storage"))
			return
		}

		header, err := c.FormFile(kind.field)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				server.RespondWithError(c, apperrors.PayloadTooLarge(h.MaxFileSize))
				return
			}
			server.RespondWithError(c, required(kind.field, "No "+kind.label+" file provided"))
			return
		}

		mimeType := header.Header.Get("Content-Type")
		if !slices.Contains(allowedMimeTypes, mimeType) {
			server.RespondWithError(c, apperrors.UnsupportedMediaType(mimeType))
			return
		}
		if header.Size > h.MaxFileSize {
			server.RespondWithError(c, apperrors.PayloadTooLarge(h.MaxFileSize))
			return
		}

		sessionID := strings.TrimSpace(c.PostForm("sessionId"))
		if sessionID == "" {
			server.RespondWithError(c, required("sessionId", "Session ID is required"))
			return
		}
		if _, err := h.ownedSession(c, sessionID); err != nil {
			server.RespondWithError(c, err)
			return
		}

		f, err := header.Open()
		if err != nil {
			server.RespondWithError(c, apperrors.InvalidInput(kind.field, "Unreadable upload").WithCause(err))
			return
		}
		defer f.Close()

		ctx := c.Request.Context()
		fileID := uuid.NewString()
		key := path.Join("sessions", sessionID, kind.dir, fileID+"_"+util.SanitizeFileName(header.Filename, kind.label))
		if err := h.Storage.Upload(ctx, key, f, mimeType); err != nil {
			server.RespondWithError(c, apperrors.StorageError("upload", err))
			return
		}

		url, err := h.Storage.SignedURL(ctx, key, uploadURLExpiry)
		if err != nil {
			server.RespondWithError(c, apperrors.StorageError("sign", err))
			return
		}

		h.log.WithContext(ctx).Info("File uploaded", logger.Fields(
			logger.FieldSessionID, sessionID,
			"key", key,
			"size", header.Size,
		))
		server.RespondOK(c, uploadResponse{
			FileID:      fileID,
			FileName:    key,
			DownloadURL: url,
			Size:        header.Size,
			MimeType:    mimeType,
		})
	}
}

func (h *Handler) getFile(c *gin.Context) {
	key, err := h.findFile(c)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	url, err := h.Storage.SignedURL(c.Request.Context(), key, downloadURLExpiry)
	if err != nil {
		server.RespondWithError(c, apperrors.StorageError("sign", err))
		return
	}
	server.RespondOK(c, gin.H{"downloadURL": url})
}

func (h *Handler) deleteFile(c *gin.Context) {
	key, err := h.findFile(c)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	if err := h.Storage.Delete(c.Request.Context(), key); err != nil {
		server.RespondWithError(c, apperrors.StorageError("delete", err))
		return
	}
	server.RespondMessage(c, "File deleted successfully")
}

// findFile resolves /file/:sessionId/:fileType/:fileId to the first stored
// key under that prefix.
func (h *Handler) findFile(c *gin.Context) (string, error) {
	if h.Storage == nil {
		return "", apperrors.ServiceUnavailable("file storage")
	}
	sessionID, fileType, fileID := c.Param("sessionId"), c.Param("fileType"), c.Param("fileId")
	if fileType != kindAudio.dir && fileType != kindImage.dir {
		return "", apperrors.InvalidInput("fileType", "Invalid file type")
	}
	if _, err := h.ownedSession(c, sessionID); err != nil {
		return "", err
	}

	files, err := h.Storage.List(c.Request.Context(), path.Join("sessions", sessionID, fileType, fileID))
	if err != nil {
		return "", apperrors.StorageError("list", err)
	}
	if len(files) == 0 {
		return "", apperrors.NotFound("file", fileID)
	}
	return files[0].Key, nil
}

func (h *Handler) listFiles(c *gin.Context) {
	if h.Storage == nil {
		server.RespondWithError(c, apperrors.ServiceUnavailable("file storage"))
		return
	}
	sessionID := c.Param("sessionId")
	if _, err := h.ownedSession(c, sessionID); err != nil {
		server.RespondWithError(c, err)
		return
	}

	files, err := h.Storage.List(c.Request.Context(), "sessions/"+sessionID+"/")
	if err != nil {
		server.RespondWithError(c, apperrors.StorageError("list", err))
		return
	}
	out := make([]fileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, fileEntry{Name: f.Key, Size: f.Size, ContentType: f.ContentType, Updated: f.LastModified})
	}
	server.RespondOK(c, gin.H{"files": out})
}

// serveSignedFile streams objects for providers whose signed URLs point back
// at this process.
func (h *Handler) serveSignedFile(v storage.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if err := v.Verify(key, c.Query("expires"), c.Query("signature")); err != nil {
			msg := "Invalid signature"
			if errors.Is(err, storage.ErrURLExpired) {
				msg = "Signed URL expired"
			}
			server.RespondWithError(c, apperrors.Forbidden(msg).WithCause(err))
			return
		}

		rc, err := h.Storage.Download(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				server.RespondWithError(c, apperrors.NotFound("file", ""))
				return
			}
			server.RespondWithError(c, apperrors.StorageError("download", err))
			return
		}
		defer rc.Close()

		contentType := mime.TypeByExtension(path.Ext(key))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
	}
}
