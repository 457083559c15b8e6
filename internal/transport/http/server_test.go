package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"image-annotator/internal/app"
	"image-annotator/internal/blobstore"
	"image-annotator/internal/bootstrap"
	"image-annotator/internal/config"
	"image-annotator/internal/metrics"
	"image-annotator/internal/signing"
	"image-annotator/internal/transport/http/response"
)

type stubCaptioner struct {
	raw string
	err error
}

func (s *stubCaptioner) Caption(context.Context, []byte, string) (string, error) {
	return s.raw, s.err
}

type testServer struct {
	app    *bootstrap.App
	router *gin.Engine
	store  *blobstore.MemoryStore
	signer *signing.Signer
}

func newTestServer(t *testing.T, captioner app.Captioner) *testServer {
	t.Helper()
	signer, err := signing.NewSigner("router-test-secret", "http://annotator.test")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	store := blobstore.NewMemoryStore(signer)
	cfg := &config.Config{
		App:    config.AppConfig{Name: "image-annotator", Env: "test", GinMode: gin.TestMode},
		Upload: config.UploadConfig{StagingDir: t.TempDir(), MaxBytes: 1 << 10},
	}
	log := zap.NewNop()

	a := &bootstrap.App{
		Config:      cfg,
		Logger:      log,
		Signer:      signer,
		Store:       store,
		Pipeline:    metrics.Noop{},
		HTTPMetrics: metrics.Noop{},
		Uploads: app.NewUploadService(store, captioner, nil, nil, metrics.Noop{}, log, app.UploadConfig{
			StagingDir: cfg.Upload.StagingDir,
			MaxBytes:   cfg.Upload.MaxBytes,
		}),
		Catalog:   app.NewCatalogService(store, nil, log, app.CatalogConfig{SignedURLTTL: time.Minute}),
		UploadLog: app.NewUploadLogService(nil),
		Checks:    []bootstrap.Check{{Name: "storage", Probe: app.StoreHealthCheck(store)}},
		StartedAt: time.Now(),
	}
	return &testServer{app: a, router: NewRouter(a), store: store, signer: signer}
}

func (s *testServer) do(req *nethttp.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, target, field, filename string, content []byte) *nethttp.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	} else if err := w.WriteField("note", "no file"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(nethttp.MethodPost, target, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeAPI(t *testing.T, rec *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

const catCaption = `{"title":"Sleepy Cat","description":"A cat asleep on a windowsill"}`

func TestUploadFormRedirectsToView(t *testing.T) {
	srv := newTestServer(t, &stubCaptioner{raw: catCaption})

	rec := srv.do(multipartRequest(t, "/upload", "image", "cat.png", []byte("png-bytes")))
	if rec.Code != nethttp.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/view/cat.png" {
		t.Fatalf("unexpected redirect %q", loc)
	}

	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/view/cat.png", nil))
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("view: expected 200, got %d", rec.Code)
	}
	page := rec.Body.String()
	if !strings.Contains(page, "Sleepy Cat") || !strings.Contains(page, "A cat asleep on a windowsill") {
		t.Fatalf("view page lacks caption: %s", page)
	}
	if !strings.Contains(page, "/files/cat.png?token=") {
		t.Fatalf("view page lacks signed image url: %s", page)
	}

	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/view?filename=cat.png", nil))
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("view by query: expected 200, got %d", rec.Code)
	}

	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/", nil))
	if rec.Code != nethttp.StatusOK || !strings.Contains(rec.Body.String(), `href="/view/cat.png"`) {
		t.Fatalf("index should link the upload, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUploadFormAcceptsFileField(t *testing.T) {
	srv := newTestServer(t, &stubCaptioner{raw: catCaption})
	rec := srv.do(multipartRequest(t, "/upload", "file", "dog.jpg", []byte("jpeg-bytes")))
	if rec.Code != nethttp.StatusSeeOther {
		t.Fatalf("expected 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if ok, _ := srv.store.Exists(context.Background(), "dog.jpg"); !ok {
		t.Fatal("expected dog.jpg to be stored")
	}
}

func TestUploadFormWithoutFile(t *testing.T) {
	srv := newTestServer(t, &stubCaptioner{raw: catCaption})
	rec := srv.do(multipartRequest(t, "/upload", "", "", nil))
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), app.ErrNoFile.Error()) {
		t.Fatalf("error page lacks reason: %s", rec.Body.String())
	}
}

func TestAPIUploadErrors(t *testing.T) {
	cases := []struct {
		name       string
		captioner  *stubCaptioner
		filename   string
		content    []byte
		wantStatus int
		wantCode   int
	}{
		{"captioning failure", &stubCaptioner{err: context.DeadlineExceeded}, "cat.png", []byte("x"), nethttp.StatusBadGateway, response.CodeCaptioningFailed},
		{"unsupported type", &stubCaptioner{raw: catCaption}, "cat.gif", []byte("x"), nethttp.StatusBadRequest, response.CodeUnsupportedType},
		{"too large", &stubCaptioner{raw: catCaption}, "cat.png", make([]byte, 4<<10), nethttp.StatusBadRequest, response.CodeFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, tc.captioner)
			rec := srv.do(multipartRequest(t, "/api/v1/images", "image", tc.filename, tc.content))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if resp := decodeAPI(t, rec); resp.Code != tc.wantCode {
				t.Fatalf("expected code %d, got %+v", tc.wantCode, resp)
			}
			names, _ := srv.store.List(context.Background(), "")
			if len(names) != 0 {
				t.Fatalf("nothing should be stored, got %v", names)
			}
		})
	}
}

func TestAPIUploadAndCatalog(t *testing.T) {
	srv := newTestServer(t, &stubCaptioner{raw: "Sure! ```json\n" + catCaption + "\n```"})

	rec := srv.do(multipartRequest(t, "/api/v1/images", "image", "cat.png", []byte("png-bytes")))
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data, _ := json.Marshal(decodeAPI(t, rec).Data)
	var result app.UploadResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Filename != "cat.png" || result.Metadata.Title != "Sleepy Cat" || result.Degraded {
		t.Fatalf("unexpected result %+v", result)
	}

	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/images", nil))
	if rec.Code != nethttp.StatusOK || !strings.Contains(rec.Body.String(), `"images":["cat.png"]`) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/images/cat.png", nil))
	if rec.Code != nethttp.StatusOK || !strings.Contains(rec.Body.String(), `"title":"Sleepy Cat"`) {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}
}

func TestViewErrors(t *testing.T) {
	srv := newTestServer(t, &stubCaptioner{raw: catCaption})
	ctx := context.Background()
	_ = srv.store.Put(ctx, "broken.png", []byte("x"), "image/png")
	_ = srv.store.Put(ctx, "broken.json", []byte("{oops"), "application/json")

	rec := srv.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/images/missing.png", nil))
	if rec.Code != nethttp.StatusNotFound || decodeAPI(t, rec).Code != response.CodeImageNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/view/broken.png", nil))
	if rec.Code != nethttp.StatusInternalServerError {
		t.Fatalf("expected 500 for corrupt metadata, got %d", rec.Code)
	}
}

func TestSignedFileServing(t *testing.T) {
	srv := newTestServer(t, &stubCaptioner{raw: catCaption})
	if err := srv.store.Put(context.Background(), "cat.png", []byte("png-bytes"), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}

	signed, err := srv.signer.URL("cat.png", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	rec := srv.do(httptest.NewRequest(nethttp.MethodGet, u.RequestURI(), nil))
	if rec.Code != nethttp.StatusOK || rec.Body.String() != "png-bytes" {
		t.Fatalf("expected file bytes, got %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}

	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/files/cat.png", nil))
	if rec.Code != nethttp.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	otherToken, _ := srv.signer.Sign("dog.png", time.Minute)
	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/files/cat.png?token="+otherToken, nil))
	if rec.Code != nethttp.StatusForbidden {
		t.Fatalf("expected 403 for token of another file, got %d", rec.Code)
	}

	missingToken, _ := srv.signer.Sign("gone.png", time.Minute)
	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/files/gone.png?token="+missingToken, nil))
	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("expected 404 for missing object, got %d", rec.Code)
	}
}

func TestHealthAndUploadLog(t *testing.T) {
	srv := newTestServer(t, &stubCaptioner{raw: catCaption})

	rec := srv.do(httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("expected healthy, got %d: %s", rec.Code, rec.Body.String())
	}
	var health struct {
		App          string                     `json:"app"`
		Dependencies map[string]json.RawMessage `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.App != "image-annotator" || string(health.Dependencies["storage"]) != `{"ok":true}` {
		t.Fatalf("unexpected health body %s", rec.Body.String())
	}

	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/uploads", nil))
	if rec.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("expected 503 with event log disabled, got %d", rec.Code)
	}
	rec = srv.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/uploads?limit=abc", nil))
	if rec.Code != nethttp.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestHealthHidesProbeErrorDetail(t *testing.T) {
	srv := newTestServer(t, &stubCaptioner{raw: catCaption})
	core, logs := observer.New(zap.WarnLevel)
	srv.app.Logger = zap.New(core)
	srv.app.Checks = append(srv.app.Checks, bootstrap.Check{Name: "mysql", Probe: func(context.Context) error {
		return errors.New("dial tcp 10.0.0.7:3306: root:hunter2@tcp connection refused")
	}})

	rec := srv.do(httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))
	if rec.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "10.0.0.7") || strings.Contains(body, "hunter2") {
		t.Fatalf("health body leaks probe error: %s", body)
	}
	if !strings.Contains(body, `"mysql":{"ok":false,"message":"unavailable"}`) {
		t.Fatalf("expected generic failure for mysql, got %s", body)
	}

	entries := logs.FilterMessage("health check failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one logged failure, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["dependency"] != "mysql" || !strings.Contains(fields["error"].(string), "10.0.0.7") {
		t.Fatalf("expected probe detail in log, got %v", fields)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, &stubCaptioner{raw: catCaption})

	rec := srv.do(httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}

	req := httptest.NewRequest(nethttp.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	if got := srv.do(req).Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}
