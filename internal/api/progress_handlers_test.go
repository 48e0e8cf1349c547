package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/headless-page-crawler/internal/storage/memory"
	"github.com/JakeFAU/headless-page-crawler/internal/store"
)

func seededRuns(t *testing.T) (*memory.RunStore, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewRunStore()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	done := uuid.New()
	require.NoError(t, repo.StartRun(ctx, done, base))
	require.NoError(t, repo.AddSiteStats(ctx, done, "a.test", store.SiteDelta{Pages: 3, Links: 12}, base.Add(time.Second)))
	require.NoError(t, repo.AddSiteStats(ctx, done, "b.test", store.SiteDelta{Pages: 1, Failures: 2}, base.Add(2*time.Second)))
	require.NoError(t, repo.CompleteRun(ctx, done, base.Add(time.Minute), store.RunSuccess, 4, nil))

	running := uuid.New()
	require.NoError(t, repo.StartRun(ctx, running, base.Add(time.Hour)))
	return repo, done, running
}

func serve(t *testing.T, repo store.RunRepository, target string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer(repo, zap.NewNop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestProgressHandler_ListRuns(t *testing.T) {
	t.Parallel()

	repo, done, running := seededRuns(t)

	rec := serve(t, repo, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []runDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 2)
	require.Equal(t, running.String(), body.Runs[0].ID)
	require.Nil(t, body.Runs[0].FinishedAt)

	rec = serve(t, repo, "/api/runs?status=success&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, done.String(), body.Runs[0].ID)
	require.Equal(t, int64(4), body.Runs[0].Pages)
	require.NotNil(t, body.Runs[0].FinishedAt)
}

func TestProgressHandler_ListRunsBadQuery(t *testing.T) {
	t.Parallel()

	repo, _, _ := seededRuns(t)
	for _, target := range []string{
		"/api/runs?status=paused",
		"/api/runs?limit=0",
		"/api/runs?limit=abc",
		"/api/runs?offset=-1",
	} {
		rec := serve(t, repo, target)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestProgressHandler_GetRun(t *testing.T) {
	t.Parallel()

	repo, done, _ := seededRuns(t)

	rec := serve(t, repo, "/api/runs/"+done.String())
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Run runDTO `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "success", body.Run.Status)

	require.Equal(t, http.StatusNotFound, serve(t, repo, "/api/runs/"+uuid.NewString()).Code)
	require.Equal(t, http.StatusBadRequest, serve(t, repo, "/api/runs/not-a-uuid").Code)
}

func TestProgressHandler_ListRunSites(t *testing.T) {
	t.Parallel()

	repo, done, _ := seededRuns(t)

	rec := serve(t, repo, "/api/runs/"+done.String()+"/sites")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sites []siteDTO `json:"sites"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sites, 2)
	require.Equal(t, "a.test", body.Sites[0].Site)
	require.Equal(t, int64(12), body.Sites[0].Links)
	require.Equal(t, int64(2), body.Sites[1].Failures)

	rec = serve(t, repo, "/api/runs/"+done.String()+"/sites?limit=1&offset=1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sites, 1)
	require.Equal(t, "b.test", body.Sites[0].Site)

	require.Equal(t, http.StatusBadRequest, serve(t, repo, "/api/runs/"+done.String()+"/sites?limit=-1").Code)
}

func TestProgressHandler_RepositoryErrors(t *testing.T) {
	t.Parallel()

	repo := failingRepo{err: errors.New("connection reset")}
	id := uuid.NewString()
	require.Equal(t, http.StatusInternalServerError, serve(t, repo, "/api/runs").Code)
	require.Equal(t, http.StatusInternalServerError, serve(t, repo, "/api/runs/"+id).Code)
	require.Equal(t, http.StatusInternalServerError, serve(t, repo, "/api/runs/"+id+"/sites").Code)
}

func TestParseLimitOffsetClamps(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?limit=5000&offset=7", nil)
	limit, offset, err := parseLimitOffset(req, defaultRunLimit, maxRunLimit)
	require.NoError(t, err)
	require.Equal(t, maxRunLimit, limit)
	require.Equal(t, 7, offset)
}

type failingRepo struct {
	store.RunRepository
	err error
}

func (f failingRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return store.Run{}, f.err
}

func (f failingRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return nil, f.err
}

func (f failingRepo) ListRunSites(context.Context, uuid.UUID, int, int) ([]store.SiteStats, error) {
	return nil, f.err
}
