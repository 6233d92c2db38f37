package importapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/ebookimport/auth"
	"github.com/hazyhaar/ebookimport/blobstore"
	"github.com/hazyhaar/ebookimport/chapterpipe"
	"github.com/hazyhaar/ebookimport/dbopen"
	"github.com/hazyhaar/ebookimport/observability"
	"github.com/hazyhaar/ebookimport/store"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	srv     *httptest.Server
	store   *store.Store
	blobs   *blobstore.Store
	audit   *observability.AuditLogger
	metrics *observability.Metrics
}

func newFixture(t *testing.T, pc chapterpipe.Config) *fixture {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema), dbopen.WithSchema(observability.Schema))
	st := store.New(db)
	audit := observability.NewAuditLogger(db, 10)
	t.Cleanup(func() { audit.Close() })
	metrics := observability.NewMetrics()
	blobs, err := blobstore.New(t.TempDir(), "https://cdn.test/blobs")
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(Deps{
		Pipeline:  chapterpipe.New(pc),
		Store:     st,
		Blobs:     blobs,
		Audit:     audit,
		Metrics:   metrics,
		JWTSecret: testSecret,
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: ts, store: st, blobs: blobs, audit: audit, metrics: metrics}
}

func token(t *testing.T, user string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, &auth.Claims{UserID: user}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func upload(t *testing.T, url, tok, filename, contentType string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	} else {
		mw.WriteField("other", "x")
	}
	mw.Close()

	req, _ := http.NewRequest("POST", url+"/v1/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

const twoChapters = "Capítulo 1: Início\nEra uma vez uma casa.\nCapítulo 2: Meio\nA casa caiu."

func TestImport_PatternText(t *testing.T) {
	f := newFixture(t, chapterpipe.Config{})
	resp := upload(t, f.srv.URL, token(t, "usr_1"), "book.pdf", "text/plain", []byte(twoChapters))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got struct {
		Chapters  []chapterpipe.DraftChapter `json:"chapters"`
		Format    string                     `json:"format"`
		SourceURL string                     `json:"source_url"`
	}
	decode(t, resp, &got)
	if got.Format != "pdf" || len(got.Chapters) != 2 {
		t.Fatalf("format %q, %d chapters", got.Format, len(got.Chapters))
	}
	if got.Chapters[0].Title != "Início" || got.Chapters[1].Title != "Meio" {
		t.Errorf("titles = %q, %q", got.Chapters[0].Title, got.Chapters[1].Title)
	}
	if !strings.HasPrefix(got.SourceURL, "https://cdn.test/blobs/uploads/usr_1/upl_") ||
		!strings.HasSuffix(got.SourceURL, ".pdf") {
		t.Errorf("source_url = %q", got.SourceURL)
	}
}

func TestImport_StatusMapping(t *testing.T) {
	f := newFixture(t, chapterpipe.Config{MaxFileSize: 64})
	tok := token(t, "usr_1")

	tests := []struct {
		name     string
		tok      string
		filename string
		data     []byte
		want     int
	}{
		{"unauthorized", "", "a.txt", []byte("x"), http.StatusUnauthorized},
		{"missing_file", tok, "", nil, http.StatusBadRequest},
		{"empty_file", tok, "a.txt", nil, http.StatusBadRequest},
		{"too_large", tok, "a.txt", bytes.Repeat([]byte("a"), 65), http.StatusRequestEntityTooLarge},
		{"ok", tok, "a.txt", []byte("short text"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := upload(t, f.srv.URL, tt.tok, tt.filename, "", tt.data)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want != http.StatusOK {
				var body map[string]string
				decode(t, resp, &body)
				if body["error"] == "" {
					t.Error("missing error message")
				}
			}
		})
	}
}

func TestImport_FallbackTitle(t *testing.T) {
	f := newFixture(t, chapterpipe.Config{})
	resp := upload(t, f.srv.URL, token(t, "usr_1"), "notes.txt", "", []byte("just one paragraph"))

	var got chapterpipe.ChapterBatch
	decode(t, resp, &got)
	if len(got.Chapters) != 1 || got.Chapters[0].Title != "Content" || !got.Degraded {
		t.Fatalf("batch = %+v", got)
	}
}

func commit(t *testing.T, url, tok, ebookID, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest("POST", url+"/v1/ebooks/"+ebookID+"/chapters", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCommitAndList(t *testing.T) {
	f := newFixture(t, chapterpipe.Config{})
	tok := token(t, "usr_1")

	resp := commit(t, f.srv.URL, tok, "ebk_1", `{"title":"Dom Casmurro","chapters":[
		{"title":"Meio","content":"b","order":3},
		{"title":"Início","content":"a","order":1}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("commit status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("GET", f.srv.URL+"/v1/ebooks/ebk_1/chapters", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	listResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer listResp.Body.Close()

	var got struct {
		Chapters []store.Chapter `json:"chapters"`
	}
	decode(t, listResp, &got)
	if len(got.Chapters) != 2 || got.Chapters[0].Title != "Início" || got.Chapters[0].Order != 0 || got.Chapters[1].Order != 1 {
		t.Fatalf("chapters = %+v", got.Chapters)
	}

	// Another user cannot overwrite it.
	resp = commit(t, f.srv.URL, token(t, "usr_2"), "ebk_1", `{"chapters":[{"title":"x","content":"y","order":0}]}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign commit status = %d", resp.StatusCode)
	}
}

func TestCommit_Validation(t *testing.T) {
	f := newFixture(t, chapterpipe.Config{})
	tok := token(t, "usr_1")

	long := strings.Repeat("é", maxTitleRunes+1)
	huge := strings.Repeat("a", maxContentRunes+1)
	for name, body := range map[string]string{
		"not_json":     `{`,
		"no_chapters":  `{"chapters":[]}`,
		"empty_title":  `{"chapters":[{"title":"  ","content":"x"}]}`,
		"long_title":   `{"chapters":[{"title":"` + long + `","content":"x"}]}`,
		"long_content": `{"chapters":[{"title":"t","content":"` + huge + `"}]}`,
	} {
		resp := commit(t, f.srv.URL, tok, "ebk_1", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}

	resp := commit(t, f.srv.URL, tok, "bad%20id", `{"chapters":[{"title":"t","content":"x"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", resp.StatusCode)
	}
}

func TestCreateEbook(t *testing.T) {
	f := newFixture(t, chapterpipe.Config{})
	req, _ := http.NewRequest("POST", f.srv.URL+"/v1/ebooks", strings.NewReader(`{"title":"Quincas Borba"}`))
	req.Header.Set("Authorization", "Bearer "+token(t, "usr_1"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var e store.Ebook
	decode(t, resp, &e)
	if !strings.HasPrefix(e.ID, "ebk_") || e.Title != "Quincas Borba" {
		t.Fatalf("ebook = %+v", e)
	}
	if _, err := f.store.ListChapters(context.Background(), e.ID, "usr_1"); err != nil {
		t.Fatalf("created ebook not listable: %v", err)
	}
}

func TestPublicEndpoints(t *testing.T) {
	f := newFixture(t, chapterpipe.Config{})
	for _, path := range []string{"/healthz", "/v1/formats"} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
		if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: security headers missing", path)
		}
	}
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	env := map[string]string{
		"PORT":       "9090",
		"JWT_SECRET": string(testSecret),
		"BLOB_DIR":   "/tmp/blobs",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.Listen != ":9090" || cfg.BlobDir != "/tmp/blobs" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.PipelineConfig().MaxFileSize != 100<<20 {
		t.Errorf("pipeline max size = %d", cfg.PipelineConfig().MaxFileSize)
	}

	cfg.JWTSecret = "short"
	if err := cfg.Validate(); err == nil {
		t.Error("short secret accepted")
	}
	cfg.JWTSecret = string(testSecret)
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("bad log level accepted")
	}
}

func TestImportHistoryAndMetrics(t *testing.T) {
	f := newFixture(t, chapterpipe.Config{})
	tok := token(t, "usr_1")
	upload(t, f.srv.URL, tok, "a.txt", "", []byte("one"))
	upload(t, f.srv.URL, tok, "b.txt", "", nil)
	upload(t, f.srv.URL, token(t, "usr_2"), "c.txt", "", []byte("other user"))
	f.audit.Close() // flush queued entries

	req, _ := http.NewRequest("GET", f.srv.URL+"/v1/imports", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got struct {
		Imports []observability.AuditEntry `json:"imports"`
	}
	decode(t, resp, &got)
	if len(got.Imports) != 2 {
		t.Fatalf("imports = %d, want 2", len(got.Imports))
	}
	statuses := got.Imports[0].Status + "," + got.Imports[1].Status
	if !strings.Contains(statuses, "success") || !strings.Contains(statuses, "error") {
		t.Errorf("statuses = %s", statuses)
	}

	mresp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer mresp.Body.Close()
	var body bytes.Buffer
	body.ReadFrom(mresp.Body)
	if !strings.Contains(body.String(), `ebookimport_imports_total{format="text",outcome="degraded",strategy="text"} 2`) {
		t.Errorf("metrics exposition missing degraded text imports:\n%s", body.String())
	}
}
