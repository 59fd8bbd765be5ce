package api

import (
	"encoding/base64"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/inference"
	"github.com/kbukum/medscribe/server"
)

const imageTopResults = 5

type transcribeRequest struct {
	AudioData string `json:"audioData"`
}

type textRequest struct {
	Text string `json:"text"`
}

type summarizeRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"maxLength" validate:"omitempty,min=1,max=1024"`
	MinLength int    `json:"minLength" validate:"omitempty,min=1,max=1024"`
}

type imageRequest struct {
	ImageData string `json:"imageData"`
}

type analyzeSessionRequest struct {
	Transcript string `json:"transcript"`
	ImageData  string `json:"imageData"`
}

func (h *Handler) transcribe(c *gin.Context) {
	var req transcribeRequest
	if err := bindJSON(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if req.AudioData == "" {
		server.RespondWithError(c, required("audioData", "Audio data is required"))
		return
	}
	audio, err := decodeBase64("audioData", req.AudioData)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	if h.Transcriber == nil {
		server.RespondWithError(c, apperrors.ServiceUnavailable("transcription service"))
		return
	}

	text, err := h.Transcriber.Transcribe(c.Request.Context(), audio)
	if err != nil {
		server.RespondWithError(c, apperrors.ExternalServiceError("AI", err))
		return
	}
	server.RespondOK(c, gin.H{"transcript": text})
}

func (h *Handler) extractEntities(c *gin.Context) {
	var req textRequest
	if !h.bindText(c, &req) {
		return
	}
	entities, err := h.Analyzer.ExtractEntities(c.Request.Context(), req.Text)
	if err != nil {
		server.RespondWithError(c, apperrors.ExternalServiceError("AI", err))
		return
	}
	if entities == nil {
		entities = []inference.Entity{}
	}
	server.RespondOK(c, gin.H{"entities": entities})
}

func (h *Handler) summarize(c *gin.Context) {
	var req summarizeRequest
	if err := bindJSON(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		server.RespondWithError(c, required("text", "Text is required"))
		return
	}
	if req.MaxLength == 0 {
		req.MaxLength = inference.DefaultMaxLength
	}
	if req.MinLength == 0 {
		req.MinLength = inference.DefaultMinLength
	}
	if req.MinLength > req.MaxLength {
		server.RespondWithError(c, apperrors.InvalidInput("minLength", "minLength must not exceed maxLength"))
		return
	}

	summary, err := h.Analyzer.Summarize(c.Request.Context(), req.Text, req.MaxLength, req.MinLength)
	if err != nil {
		server.RespondWithError(c, apperrors.ExternalServiceError("AI", err))
		return
	}
	server.RespondOK(c, gin.H{"summary": summary})
}

func (h *Handler) analyzeImage(c *gin.Context) {
	var req imageRequest
	if err := bindJSON(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if req.ImageData == "" {
		server.RespondWithError(c, required("imageData", "Image data is required"))
		return
	}
	image, err := decodeBase64("imageData", req.ImageData)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}

	findings, err := h.Analyzer.ClassifyImage(c.Request.Context(), image, imageTopResults)
	if err != nil {
		server.RespondWithError(c, apperrors.ExternalServiceError("AI", err))
		return
	}
	if findings == nil {
		findings = []inference.ImageFinding{}
	}
	server.RespondOK(c, gin.H{"analysis": findings})
}

// analyzeSession runs every analysis whose input is present. Individual
// model failures leave their part empty instead of failing the request.
func (h *Handler) analyzeSession(c *gin.Context) {
	var req analyzeSessionRequest
	if err := bindJSON(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	var image []byte
	if req.ImageData != "" {
		var err error
		if image, err = decodeBase64("imageData", req.ImageData); err != nil {
			server.RespondWithError(c, err)
			return
		}
	}
	server.RespondOK(c, h.Analyzer.AnalyzeSession(c.Request.Context(), req.Transcript, image))
}

func (h *Handler) bindText(c *gin.Context, req *textRequest) bool {
	if err := bindJSON(c, req); err != nil {
		server.RespondWithError(c, err)
		return false
	}
	if strings.TrimSpace(req.Text) == "" {
		server.RespondWithError(c, required("text", "Text is required"))
		return false
	}
	return true
}

func decodeBase64(field, s string) ([]byte, error) {
	// Browsers send data URLs; keep only the payload.
	if _, payload, ok := strings.Cut(s, ";base64,"); ok {
		s = payload
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apperrors.InvalidInput(field, field+" must be base64 encoded")
	}
	return b, nil
}
