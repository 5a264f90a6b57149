package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clipforge-backend/internal/events"
	"clipforge-backend/internal/models"
	"clipforge-backend/internal/store"
	"clipforge-backend/internal/websocket"
)

type fakeInfoProvider struct {
	info *models.VideoInfo
	err  error
}

func (f *fakeInfoProvider) GetVideoInfo(ctx context.Context, url string) (*models.VideoInfo, error) {
	return f.info, f.err
}

type fakeRunner struct {
	started chan uuid.UUID
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan uuid.UUID, 4)}
}

func (f *fakeRunner) Run(ctx context.Context, projectID uuid.UUID, sourceURL string) {
	f.started <- projectID
}

type fakeExportRunner struct {
	started chan uuid.UUID
}

func newFakeExportRunner() *fakeExportRunner {
	return &fakeExportRunner{started: make(chan uuid.UUID, 4)}
}

func (f *fakeExportRunner) Run(ctx context.Context, projectID, clipID uuid.UUID) {
	f.started <- clipID
}

type fixture struct {
	router http.Handler
	store  *store.Store
	info   *fakeInfoProvider
	ingest *fakeRunner
	export *fakeExportRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New()
	bus := events.NewBus(st)
	hub := websocket.NewHub(st, bus)

	f := &fixture{
		store:  st,
		info:   &fakeInfoProvider{info: &models.VideoInfo{Title: "Test Video", Duration: 300}},
		ingest: newFakeRunner(),
		export: newFakeExportRunner(),
	}
	h := NewVideoHandler(st, f.info, f.ingest, f.export, hub, 120, 180)

	r := chi.NewRouter()
	r.Route("/api/v1/videos", func(r chi.Router) {
		r.Post("/info", h.Info)
		r.Post("/process", h.Process)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/cut", h.Cut)
		r.Patch("/{pid}/clips/{cid}", h.UpdateClip)
		r.Delete("/{pid}/clips/{cid}", h.DeleteClip)
		r.Post("/{pid}/clips/{cid}/export", h.Export)
		r.Get("/{pid}/clips/{cid}/download", h.Download)
		r.Get("/{pid}/clips/{cid}/thumbnail", h.Thumbnail)
	})
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedProject(t *testing.T, withSource bool) *models.Project {
	t.Helper()
	project := f.store.Create(store.ProjectSeed{UserID: "u1", Title: "Seeded", SourceURL: "https://youtu.be/dQw4w9WgXcQ"})
	if withSource {
		dir := t.TempDir()
		src := filepath.Join(dir, "source.mp4")
		if err := os.WriteFile(src, []byte("video"), 0o644); err != nil {
			t.Fatal(err)
		}
		f.store.Update(project.ID, store.ProjectUpdate{VideoPath: &src})
	}
	p, _ := f.store.Get(project.ID)
	return p
}

const validURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func TestInfo(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		info       *models.VideoInfo
		infoErr    error
		wantStatus int
	}{
		{"valid", models.VideoInfoRequest{URL: validURL}, &models.VideoInfo{Title: "ok", Duration: 60}, nil, http.StatusOK},
		{"missing url", models.VideoInfoRequest{}, nil, nil, http.StatusBadRequest},
		{"unsupported url", models.VideoInfoRequest{URL: "https://vimeo.com/1"}, nil, nil, http.StatusBadRequest},
		{"lookup failure", models.VideoInfoRequest{URL: validURL}, nil, errors.New("boom"), http.StatusInternalServerError},
		{"too long", models.VideoInfoRequest{URL: validURL}, &models.VideoInfo{Title: "long", Duration: 121 * 60}, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.info.info = tt.info
			f.info.err = tt.infoErr
			rec := f.do(t, http.MethodPost, "/api/v1/videos/info", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body)
			}
		})
	}
}

func TestProcess_CreatesProjectAndStartsIngest(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/videos/process", models.ProcessRequest{URL: validURL, UserID: "u1"})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Success   bool           `json:"success"`
		ProjectID uuid.UUID      `json:"project_id"`
		Project   models.Project `json:"project"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.ProjectID == uuid.Nil {
		t.Fatalf("Expected project id in response, got %s", rec.Body)
	}
	if resp.Project.Title != "Test Video" {
		t.Errorf("Expected title from metadata lookup, got %q", resp.Project.Title)
	}
	if resp.Project.Status != models.ProjectStatusQueued {
		t.Errorf("Expected queued status, got %q", resp.Project.Status)
	}

	select {
	case id := <-f.ingest.started:
		if id != resp.ProjectID {
			t.Errorf("Expected ingest for %s, got %s", resp.ProjectID, id)
		}
	case <-time.After(time.Second):
		t.Fatal("Ingest pipeline was never started")
	}
}

func TestProcess_InvalidURL(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/videos/process", models.ProcessRequest{URL: "ftp://nope"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, false)

	rec := f.do(t, http.MethodGet, "/api/v1/videos/"+project.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/videos/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown project, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/videos/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestList_FiltersByUser(t *testing.T) {
	f := newFixture(t)
	f.store.Create(store.ProjectSeed{UserID: "alice", Title: "a", SourceURL: "u"})
	f.store.Create(store.ProjectSeed{UserID: "bob", Title: "b", SourceURL: "u"})

	rec := f.do(t, http.MethodGet, "/api/v1/videos/?user_id=alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		Projects []models.Project `json:"projects"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Projects) != 1 || resp.Projects[0].UserID != "alice" {
		t.Errorf("Expected only alice's project, got %+v", resp.Projects)
	}
}

func TestCut(t *testing.T) {
	start := func(v float64) *float64 { return &v }

	tests := []struct {
		name       string
		withSource bool
		body       models.CutRequest
		wantStatus int
	}{
		{"valid", true, models.CutRequest{Start: start(10), End: start(40), Title: "My Cut"}, http.StatusCreated},
		{"no source yet", false, models.CutRequest{Start: start(10), End: start(40)}, http.StatusBadRequest},
		{"missing times", true, models.CutRequest{Title: "x"}, http.StatusBadRequest},
		{"end before start", true, models.CutRequest{Start: start(40), End: start(10)}, http.StatusBadRequest},
		{"too long", true, models.CutRequest{Start: start(0), End: start(200)}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			project := f.seedProject(t, tt.withSource)
			rec := f.do(t, http.MethodPost, "/api/v1/videos/"+project.ID.String()+"/cut", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body)
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}
			var resp struct {
				Clip models.Clip `json:"clip"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Clip.Status != models.ClipStatusReady || !resp.Clip.Reframe {
				t.Errorf("Expected ready clip with reframe enabled, got %+v", resp.Clip)
			}
			if resp.Clip.CaptionStyle != models.DefaultCaptionStyle {
				t.Errorf("Expected default caption style, got %q", resp.Clip.CaptionStyle)
			}
			if resp.Clip.Category != "manual" {
				t.Errorf("Expected manual category, got %q", resp.Clip.Category)
			}
		})
	}
}

func TestUpdateClip(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	clip, _ := f.store.AddClip(project.ID, models.Clip{Title: "old", Start: 0, End: 30, Status: models.ClipStatusReady})

	newTitle := "renamed"
	rec := f.do(t, http.MethodPatch,
		fmt.Sprintf("/api/v1/videos/%s/clips/%s", project.ID, clip.ID),
		models.UpdateClipRequest{Title: &newTitle})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}

	got, _ := f.store.GetClip(project.ID, clip.ID)
	if got.Title != "renamed" {
		t.Errorf("Expected title updated, got %q", got.Title)
	}
	if got.End != 30 {
		t.Errorf("Expected untouched fields preserved, got end=%v", got.End)
	}
}

func TestDeleteClip_RemovesArtifacts(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)

	dir := t.TempDir()
	clipPath := filepath.Join(dir, "final.mp4")
	thumbPath := filepath.Join(dir, "thumb.jpg")
	os.WriteFile(clipPath, []byte("v"), 0o644)
	os.WriteFile(thumbPath, []byte("t"), 0o644)

	clip, _ := f.store.AddClip(project.ID, models.Clip{Title: "c", Start: 0, End: 10, Status: models.ClipStatusExported})
	exported := true
	f.store.UpdateClip(project.ID, clip.ID, store.ClipUpdate{ClipPath: &clipPath, ThumbPath: &thumbPath, Exported: &exported})

	rec := f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/videos/%s/clips/%s", project.ID, clip.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	if _, found := f.store.GetClip(project.ID, clip.ID); found {
		t.Error("Expected clip removed from store")
	}
	for _, p := range []string{clipPath, thumbPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("Expected artifact %s removed", p)
		}
	}
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	clip, _ := f.store.AddClip(project.ID, models.Clip{Title: "c", Start: 0, End: 30, Status: models.ClipStatusReady})

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/videos/%s/clips/%s/export", project.ID, clip.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}

	got, _ := f.store.GetClip(project.ID, clip.ID)
	if got.Status != models.ClipStatusExporting {
		t.Errorf("Expected exporting status, got %q", got.Status)
	}

	select {
	case id := <-f.export.started:
		if id != clip.ID {
			t.Errorf("Expected export for %s, got %s", clip.ID, id)
		}
	case <-time.After(time.Second):
		t.Fatal("Export pipeline was never started")
	}

	// Re-issuing while exporting is rejected.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/videos/%s/clips/%s/export", project.ID, clip.ID), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for concurrent export, got %d", rec.Code)
	}
}

func TestExport_ConcurrentRequestsSingleWinner(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	clip, _ := f.store.AddClip(project.ID, models.Clip{Title: "c", Start: 0, End: 30, Status: models.ClipStatusReady})
	path := fmt.Sprintf("/api/v1/videos/%s/clips/%s/export", project.ID, clip.ID)

	const requests = 8
	start := make(chan struct{})
	codes := make(chan int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			codes <- f.do(t, http.MethodPost, path, nil).Code
		}()
	}
	close(start)
	wg.Wait()
	close(codes)

	accepted, rejected := 0, 0
	for code := range codes {
		switch code {
		case http.StatusOK:
			accepted++
		case http.StatusConflict:
			rejected++
		default:
			t.Errorf("Unexpected status %d", code)
		}
	}
	if accepted != 1 {
		t.Errorf("Expected exactly one accepted export, got %d", accepted)
	}
	if rejected != requests-1 {
		t.Errorf("Expected %d rejections, got %d", requests-1, rejected)
	}

	// Only the winner reaches the pipeline.
	pipelines := 0
	timeout := time.After(time.Second)
	for pipelines < 1 {
		select {
		case <-f.export.started:
			pipelines++
		case <-timeout:
			t.Fatal("Export pipeline was never started")
		}
	}
	select {
	case <-f.export.started:
		t.Error("More than one export pipeline started for the same clip")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestExport_Preconditions(t *testing.T) {
	f := newFixture(t)

	// Project without a downloaded source.
	project := f.seedProject(t, false)
	clip, _ := f.store.AddClip(project.ID, models.Clip{Title: "c", Start: 0, End: 10, Status: models.ClipStatusReady})
	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/videos/%s/clips/%s/export", project.ID, clip.ID), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without source video, got %d", rec.Code)
	}

	// Unknown clip.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/videos/%s/clips/%s/export", project.ID, uuid.New()), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown clip, got %d", rec.Code)
	}
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	clip, _ := f.store.AddClip(project.ID, models.Clip{Title: "My Great Clip!", Start: 0, End: 10, Status: models.ClipStatusReady})

	// Not exported yet.
	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/videos/%s/clips/%s/download", project.ID, clip.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before export, got %d", rec.Code)
	}

	clipPath := filepath.Join(t.TempDir(), "final.mp4")
	os.WriteFile(clipPath, []byte("video-bytes"), 0o644)
	status := models.ClipStatusExported
	f.store.UpdateClip(project.ID, clip.ID, store.ClipUpdate{Status: &status, ClipPath: &clipPath})

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/videos/%s/clips/%s/download", project.ID, clip.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "clipforge_My_Great_Clip_.mp4") {
		t.Errorf("Expected sanitized filename, got %q", disposition)
	}
	if rec.Body.String() != "video-bytes" {
		t.Errorf("Expected file contents served")
	}
}

func TestThumbnail_NotAvailable(t *testing.T) {
	f := newFixture(t)
	project := f.seedProject(t, true)
	clip, _ := f.store.AddClip(project.ID, models.Clip{Title: "c", Start: 0, End: 10, Status: models.ClipStatusReady})

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/videos/%s/clips/%s/thumbnail", project.ID, clip.ID), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}
