package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/medscribe/account"
	"github.com/kbukum/medscribe/auth"
	"github.com/kbukum/medscribe/component"
	"github.com/kbukum/medscribe/database/testutil"
	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/inference"
	"github.com/kbukum/medscribe/session"
	"github.com/kbukum/medscribe/storage/local"
	"github.com/kbukum/medscribe/transcription"
)

type fakeAnalyzer struct {
	err       error
	entities  []inference.Entity
	findings  []inference.ImageFinding
	summary   string
	maxLength int
	minLength int
	top       int
	image     []byte
}

func (f *fakeAnalyzer) ExtractEntities(_ context.Context, _ string) ([]inference.Entity, error) {
	return f.entities, f.err
}

func (f *fakeAnalyzer) Summarize(_ context.Context, _ string, maxLength, minLength int) (string, error) {
	f.maxLength, f.minLength = maxLength, minLength
	return f.summary, f.err
}

func (f *fakeAnalyzer) ClassifyImage(_ context.Context, image []byte, top int) ([]inference.ImageFinding, error) {
	f.image, f.top = image, top
	return f.findings, f.err
}

func (f *fakeAnalyzer) AnalyzeSession(_ context.Context, transcript string, image []byte) inference.SessionAnalysis {
	var out inference.SessionAnalysis
	if transcript != "" {
		out.Entities = f.entities
		out.Summary = &f.summary
	}
	if len(image) > 0 {
		out.ImageAnalysis = f.findings
	}
	return out
}

type healthFunc func() []component.Health

func (f healthFunc) HealthAll(context.Context) []component.Health { return f() }

type fixture struct {
	engine   *gin.Engine
	sessions *session.Repository
	accounts *account.Repository
	tokens   *auth.Service
	analyzer *fakeAnalyzer
	live     map[string]bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.Open(t, &session.Record{}, &account.User{})
	tokens, err := auth.NewService(auth.Config{Secret: "test-secret"})
	if err != nil {
		t.Fatal(err)
	}
	files, err := local.New(t.TempDir(), "", []byte("signing-key"))
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		engine:   gin.New(),
		sessions: session.NewRepository(db),
		accounts: account.NewRepository(db),
		tokens:   tokens,
		analyzer: &fakeAnalyzer{summary: "short"},
		live:     map[string]bool{},
	}
	NewHandler(Deps{
		Sessions: f.sessions,
		Accounts: f.accounts,
		Analyzer: f.analyzer,
		Transcriber: transcription.Func(func(_ context.Context, audio []byte) (string, error) {
			if string(audio) == "fail" {
				return "", &transcription.Failure{Provider: "func", Message: "HTTP 503", Retryable: true}
			}
			return "heard " + string(audio), nil
		}),
		Storage:              files,
		MaxFileSize:          1 << 20,
		Verifier:             tokens,
		ActiveTranscriptions: func() int { return 2 },
		Transcribing:         func(id string) bool { return f.live[id] },
	}).Register(f.engine)
	return f
}

func (f *fixture) token(t *testing.T, uid, role string) string {
	t.Helper()
	tok, err := f.tokens.Issue(auth.Claims{
		Email:            uid + "@clinic.org",
		Name:             "Dr " + uid,
		Role:             role,
		RegisteredClaims: gojwt.RegisteredClaims{Subject: uid},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (%s)", w.Code, status, w.Body.String())
	}
	resp := decode[apperrors.ErrorResponse](t, w)
	if message != "" && resp.Error.Message != message {
		t.Errorf("message = %q, want %q", resp.Error.Message, message)
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	f := newFixture(t)
	doc := f.token(t, "d1", auth.RoleDoctor)

	expectError(t, f.do(t, http.MethodPost, "/api/sessions", doc, map[string]string{"patientName": "  "}),
		http.StatusBadRequest, "Patient name is required")

	w := f.do(t, http.MethodPost, "/api/sessions", doc, map[string]string{"patientName": "Ada"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	created := decode[struct{ Session session.Record }](t, w).Session
	if created.DoctorID != "d1" || created.DoctorName != "Dr d1" || created.Status != session.StatusActive || created.SessionType != session.DefaultSessionType {
		t.Errorf("created = %+v", created)
	}

	list := decode[struct{ Sessions []session.Record }](t, f.do(t, http.MethodGet, "/api/sessions?limit=5", doc, nil))
	if len(list.Sessions) != 1 || list.Sessions[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	path := "/api/sessions/" + created.ID
	w = f.do(t, http.MethodPut, path, doc, map[string]string{"status": session.StatusCompleted, "summary": "stable"})
	if msg := decode[map[string]string](t, w)["message"]; msg != "Session updated successfully" {
		t.Errorf("update = %d %s", w.Code, w.Body.String())
	}
	expectError(t, f.do(t, http.MethodPut, path, doc, map[string]string{"status": "lost"}), http.StatusBadRequest, "")

	got := decode[struct{ Session session.Record }](t, f.do(t, http.MethodGet, path, doc, nil)).Session
	if got.Status != session.StatusCompleted || got.Summary != "stable" {
		t.Errorf("after update = %+v", got)
	}

	other := f.token(t, "d2", auth.RoleDoctor)
	expectError(t, f.do(t, http.MethodGet, path, other, nil), http.StatusForbidden, "Access denied")
	expectError(t, f.do(t, http.MethodDelete, path, other, nil), http.StatusForbidden, "Access denied")

	w = f.do(t, http.MethodDelete, path, doc, nil)
	if msg := decode[map[string]string](t, w)["message"]; msg != "Session deleted successfully" {
		t.Errorf("delete = %d %s", w.Code, w.Body.String())
	}
	expectError(t, f.do(t, http.MethodGet, path, doc, nil), http.StatusNotFound, "Session not found")
}

func TestSessions_TranscriptLockedWhileLive(t *testing.T) {
	f := newFixture(t)
	doc := f.token(t, "d1", auth.RoleDoctor)

	created := decode[struct{ Session session.Record }](t,
		f.do(t, http.MethodPost, "/api/sessions", doc, map[string]string{"patientName": "Ada"})).Session
	path := "/api/sessions/" + created.ID
	f.live[created.ID] = true

	expectError(t, f.do(t, http.MethodPut, path, doc, map[string]string{"transcript": "typed over"}),
		http.StatusConflict, "Transcript is being recorded by an active transcription")

	if w := f.do(t, http.MethodPut, path, doc, map[string]string{"summary": "draft"}); w.Code != http.StatusOK {
		t.Errorf("summary update while live = %d (%s)", w.Code, w.Body.String())
	}

	f.live[created.ID] = false
	if w := f.do(t, http.MethodPut, path, doc, map[string]string{"transcript": "edited"}); w.Code != http.StatusOK {
		t.Errorf("transcript update after stop = %d (%s)", w.Code, w.Body.String())
	}
	got := decode[struct{ Session session.Record }](t, f.do(t, http.MethodGet, path, doc, nil)).Session
	if got.Transcript != "edited" || got.Summary != "draft" {
		t.Errorf("session = %+v", got)
	}
}

func TestAccessControl(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		path    string
		token   string
		status  int
		message string
	}{
		{"missing token", "/api/sessions", "", http.StatusUnauthorized, "Access token required"},
		{"bad token", "/api/sessions", "not-a-jwt", http.StatusForbidden, "Invalid or expired token"},
		{"patient on doctor route", "/api/sessions", f.token(t, "p1", auth.RolePatient), http.StatusForbidden, ""},
		{"no role on doctor route", "/api/upload/files/s1", f.token(t, "x", ""), http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, f.do(t, http.MethodGet, tt.path, tt.token, nil), tt.status, tt.message)
		})
	}

	t.Run("auth routes need no role", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/auth/verify", f.token(t, "p1", auth.RolePatient), nil)
		if w.Code != http.StatusOK {
			t.Errorf("status = %d (%s)", w.Code, w.Body.String())
		}
	})

	t.Run("auth disabled", func(t *testing.T) {
		engine := gin.New()
		NewHandler(Deps{}).Register(engine)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
		expectError(t, w, http.StatusUnauthorized, "Access token required")
	})
}

func TestAuth_ProfileAndRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.token(t, "d1", auth.RoleDoctor)

	user := decode[struct{ User account.User }](t, f.do(t, http.MethodGet, "/api/auth/verify", doc, nil)).User
	if user.ID != "d1" || user.Role != auth.RoleDoctor || user.Name != "Dr d1" {
		t.Errorf("verified = %+v", user)
	}

	w := f.do(t, http.MethodPut, "/api/auth/profile", doc, map[string]string{"specialization": "cardiology"})
	if msg := decode[map[string]string](t, w)["message"]; msg != "Profile updated successfully" {
		t.Errorf("update profile = %d %s", w.Code, w.Body.String())
	}
	profile := decode[struct{ User account.User }](t, f.do(t, http.MethodGet, "/api/auth/profile", doc, nil)).User
	if profile.Specialization != "cardiology" || profile.Name != "Dr d1" {
		t.Errorf("profile = %+v", profile)
	}

	req := map[string]string{"targetUserId": "d1", "role": auth.RoleAdmin}
	expectError(t, f.do(t, http.MethodPost, "/api/auth/set-role", doc, req), http.StatusForbidden, "Admin access required")

	admin := f.token(t, "a1", auth.RoleDoctor)
	f.do(t, http.MethodGet, "/api/auth/verify", admin, nil)
	if err := f.accounts.SetRole(ctx, "a1", auth.RoleAdmin); err != nil {
		t.Fatal(err)
	}

	expectError(t, f.do(t, http.MethodPost, "/api/auth/set-role", admin, map[string]string{"targetUserId": "d1", "role": "wizard"}),
		http.StatusBadRequest, "Invalid role")
	expectError(t, f.do(t, http.MethodPost, "/api/auth/set-role", admin, map[string]string{"targetUserId": "ghost", "role": auth.RolePatient}),
		http.StatusNotFound, "User not found")

	w = f.do(t, http.MethodPost, "/api/auth/set-role", admin, map[string]string{"targetUserId": "d1", "role": auth.RolePatient})
	if msg := decode[map[string]string](t, w)["message"]; msg != "User role updated successfully" {
		t.Errorf("set role = %d %s", w.Code, w.Body.String())
	}
	updated, err := f.accounts.Get(ctx, "d1")
	if err != nil || updated.Role != auth.RolePatient {
		t.Errorf("stored role = %+v, %v", updated, err)
	}
}

func TestAI_Routes(t *testing.T) {
	f := newFixture(t)
	doc := f.token(t, "d1", auth.RoleDoctor)
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			path    string
			body    any
			message string
		}{
			{"/api/ai/transcribe", map[string]string{}, "Audio data is required"},
			{"/api/ai/transcribe", map[string]string{"audioData": "%%%"}, "audioData must be base64 encoded"},
			{"/api/ai/extract-entities", map[string]string{}, "Text is required"},
			{"/api/ai/summarize", map[string]string{"text": " "}, "Text is required"},
			{"/api/ai/analyze-image", nil, "Image data is required"},
		}
		for _, tt := range tests {
			expectError(t, f.do(t, http.MethodPost, tt.path, doc, tt.body), http.StatusBadRequest, tt.message)
		}
	})

	t.Run("transcribe", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/ai/transcribe", doc, map[string]string{"audioData": b64("words")})
		if got := decode[map[string]string](t, w)["transcript"]; got != "heard words" {
			t.Errorf("transcript = %q", got)
		}
		w = f.do(t, http.MethodPost, "/api/ai/transcribe", doc, map[string]string{"audioData": b64("fail")})
		expectError(t, w, http.StatusBadGateway, "The AI service encountered an error")
	})

	t.Run("summarize defaults", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/ai/summarize", doc, map[string]string{"text": "long note"})
		if got := decode[map[string]string](t, w)["summary"]; got != "short" {
			t.Errorf("summary = %q", got)
		}
		if f.analyzer.maxLength != inference.DefaultMaxLength || f.analyzer.minLength != inference.DefaultMinLength {
			t.Errorf("lengths = %d/%d", f.analyzer.maxLength, f.analyzer.minLength)
		}
	})

	t.Run("analyze image accepts data urls", func(t *testing.T) {
		f.analyzer.findings = []inference.ImageFinding{{Label: "normal", Confidence: 0.9}}
		w := f.do(t, http.MethodPost, "/api/ai/analyze-image", doc, map[string]string{"imageData": "data:image/png;base64," + b64("png")})
		got := decode[struct{ Analysis []inference.ImageFinding }](t, w)
		if len(got.Analysis) != 1 || string(f.analyzer.image) != "png" || f.analyzer.top != 5 {
			t.Errorf("analysis = %+v, image = %q, top = %d", got, f.analyzer.image, f.analyzer.top)
		}
	})

	t.Run("extract entities upstream failure", func(t *testing.T) {
		f.analyzer.err = errors.New("boom")
		defer func() { f.analyzer.err = nil }()
		expectError(t, f.do(t, http.MethodPost, "/api/ai/extract-entities", doc, map[string]string{"text": "aspirin"}),
			http.StatusBadGateway, "")
	})

	t.Run("analyze session", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/ai/analyze-session", doc, map[string]string{"transcript": "note"})
		got := decode[map[string]json.RawMessage](t, w)
		if _, ok := got["summary"]; !ok {
			t.Errorf("response = %s", w.Body.String())
		}
		if _, ok := got["imageAnalysis"]; ok {
			t.Errorf("imageAnalysis without image: %s", w.Body.String())
		}
	})
}

func multipartBody(t *testing.T, field, filename, contentType, sessionID string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if sessionID != "" {
		_ = mw.WriteField("sessionId", sessionID)
	}
	if field != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(content)
	}
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}

func (f *fixture) upload(t *testing.T, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestUploads(t *testing.T) {
	f := newFixture(t)
	doc := f.token(t, "d1", auth.RoleDoctor)
	rec := session.NewRecord("s1", "d1", "Dr d1", "Ada", nil, "")
	if err := f.sessions.Create(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	t.Run("rejections", func(t *testing.T) {
		tests := []struct {
			name        string
			field       string
			contentType string
			sessionID   string
			size        int
			status      int
			message     string
		}{
			{"no file", "", "", "s1", 0, http.StatusBadRequest, "No audio file provided"},
			{"wrong field", "image", "audio/wav", "s1", 4, http.StatusBadRequest, "No audio file provided"},
			{"bad type", "audio", "application/pdf", "s1", 4, http.StatusUnsupportedMediaType, "Invalid file type"},
			{"too large", "audio", "audio/wav", "s1", 2 << 20, http.StatusRequestEntityTooLarge, "File too large"},
			{"no session", "audio", "audio/wav", "", 4, http.StatusBadRequest, "Session ID is required"},
			{"unknown session", "audio", "audio/wav", "nope", 4, http.StatusNotFound, "Session not found"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				body, ct := multipartBody(t, tt.field, "a.wav", tt.contentType, tt.sessionID, make([]byte, tt.size))
				expectError(t, f.upload(t, "/api/upload/audio", doc, body, ct), tt.status, tt.message)
			})
		}
	})

	body, ct := multipartBody(t, "audio", "../visit.wav", "audio/wav", "s1", []byte("RIFF-data"))
	w := f.upload(t, "/api/upload/audio", doc, body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d (%s)", w.Code, w.Body.String())
	}
	up := decode[uploadResponse](t, w)
	if up.FileName != "sessions/s1/audio/"+up.FileID+"_visit.wav" || up.Size != 9 || up.MimeType != "audio/wav" {
		t.Errorf("upload = %+v", up)
	}

	t.Run("signed url serves file", func(t *testing.T) {
		w := httptest.NewRecorder()
		f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, up.DownloadURL, nil))
		if w.Code != http.StatusOK || w.Body.String() != "RIFF-data" {
			t.Errorf("download = %d %q", w.Code, w.Body.String())
		}

		tampered := strings.Replace(up.DownloadURL, "signature=", "signature=00", 1)
		w = httptest.NewRecorder()
		f.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tampered, nil))
		expectError(t, w, http.StatusForbidden, "Invalid signature")
	})

	list := decode[struct{ Files []fileEntry }](t, f.do(t, http.MethodGet, "/api/upload/files/s1", doc, nil))
	if len(list.Files) != 1 || list.Files[0].Name != up.FileName || list.Files[0].Size != 9 {
		t.Errorf("files = %+v", list)
	}

	filePath := "/api/upload/file/s1/audio/" + up.FileID
	got := decode[map[string]string](t, f.do(t, http.MethodGet, filePath, doc, nil))
	if !strings.Contains(got["downloadURL"], "/files/sessions/s1/audio/") {
		t.Errorf("downloadURL = %q", got["downloadURL"])
	}

	expectError(t, f.do(t, http.MethodGet, "/api/upload/file/s1/video/"+up.FileID, doc, nil), http.StatusBadRequest, "Invalid file type")
	expectError(t, f.do(t, http.MethodGet, filePath, f.token(t, "d2", auth.RoleDoctor), nil), http.StatusForbidden, "Access denied")

	w = f.do(t, http.MethodDelete, filePath, doc, nil)
	if msg := decode[map[string]string](t, w)["message"]; msg != "File deleted successfully" {
		t.Errorf("delete = %d %s", w.Code, w.Body.String())
	}
	expectError(t, f.do(t, http.MethodGet, filePath, doc, nil), http.StatusNotFound, "File not found")
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		health []component.Health
		status int
		want   component.HealthStatus
	}{
		{"healthy", []component.Health{{Name: "database", Status: component.StatusHealthy}}, http.StatusOK, component.StatusHealthy},
		{"degraded", []component.Health{{Name: "redis", Status: component.StatusDegraded}}, http.StatusOK, component.StatusDegraded},
		{"unhealthy", []component.Health{
			{Name: "database", Status: component.StatusUnhealthy},
			{Name: "redis", Status: component.StatusHealthy},
		}, http.StatusServiceUnavailable, component.StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			engine := gin.New()
			now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
			NewHandler(Deps{
				Health:               healthFunc(func() []component.Health { return tt.health }),
				ActiveTranscriptions: func() int { return 3 },
				Clock:                func() time.Time { return now },
			}).Register(engine)

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			resp := decode[healthResponse](t, w)
			if resp.Status != tt.want || resp.ActiveTranscriptions != 3 || !resp.Timestamp.Equal(now) || len(resp.Components) != len(tt.health) {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}
