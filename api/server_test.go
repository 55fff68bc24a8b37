package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"version-registry/api"
	"version-registry/bundles"
	"version-registry/bundles/memory"
	"version-registry/store"
)

const testAPIKey = "test-api-key"

type testEnv struct {
	router  *gin.Engine
	store   *store.Store
	bundles *memory.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "registry.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	versionStore := store.New(db)
	require.NoError(t, versionStore.AutoMigrate())

	bundleStore := memory.New()
	server := api.NewServer(versionStore, bundleStore, testAPIKey)

	return &testEnv{
		router:  server.Router(),
		store:   versionStore,
		bundles: bundleStore,
	}
}

func (e *testEnv) do(
	t *testing.T,
	method, path string,
	body io.Reader,
	authorized bool,
) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	return out
}

func TestPublishFlow(t *testing.T) {
	env := newTestEnv(t)

	// Start a multipart upload.
	rec := env.do(t,
		http.MethodPost,
		"/api/apps/editor/upload?action=mpu-create&version=1.0.0&platform=win64",
		nil, true,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	created := decode[struct {
		Key      string `json:"key"`
		UploadID string `json:"uploadId"`
	}](t, rec)
	assert.Equal(t, "editor/1.0.0/editor-win64.zip", created.Key)
	require.NotEmpty(t, created.UploadID)

	// Upload two parts.
	rec = env.do(t,
		http.MethodPut,
		"/api/apps/editor/upload?action=mpu-uploadpart&version=1.0.0&platform=win64&uploadId="+created.UploadID+"&partNumber=1",
		bytes.NewReader([]byte("zip-part-one-")), true,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	partOne := decode[bundles.Part](t, rec)

	rec = env.do(t,
		http.MethodPut,
		"/api/apps/editor/upload?action=mpu-uploadpart&version=1.0.0&platform=win64&uploadId="+created.UploadID+"&partNumber=2",
		bytes.NewReader([]byte("zip-part-two")), true,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	partTwo := decode[bundles.Part](t, rec)

	// Complete the multipart upload.
	completeBody, err := json.Marshal(map[string]any{
		"parts": []bundles.Part{partOne, partTwo},
	})
	require.NoError(t, err)
	rec = env.do(t,
		http.MethodPost,
		"/api/apps/editor/upload?action=mpu-complete&version=1.0.0&platform=win64&uploadId="+created.UploadID,
		bytes.NewReader(completeBody), true,
	)
	require.Equal(t, http.StatusOK, rec.Code)

	// Record the version.
	finishBody, err := json.Marshal(map[string]string{
		"version":   "1.0.0",
		"platform":  "win64",
		"timestamp": "2024-01-01T00:00:00Z",
	})
	require.NoError(t, err)
	rec = env.do(t,
		http.MethodPost, "/api/apps/editor/upload/finish",
		bytes.NewReader(finishBody), true,
	)
	require.Equal(t, http.StatusOK, rec.Code)

	// Download the assembled bundle.
	rec = env.do(t,
		http.MethodGet, "/api/apps/editor/download/win64/1.0.0", nil, false,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t,
		rec.Header().Get("Content-Disposition"), "editor-win64-1.0.0.zip")
	assert.Equal(t, "zip-part-one-zip-part-two", rec.Body.String())
}

func TestFinishUploadConflict(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(map[string]string{
		"version":  "1.0.0",
		"platform": "win64",
	})
	require.NoError(t, err)

	rec := env.do(t,
		http.MethodPost, "/api/apps/editor/upload/finish",
		bytes.NewReader(body), true,
	)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t,
		http.MethodPost, "/api/apps/editor/upload/finish",
		bytes.NewReader(body), true,
	)
	require.Equal(t, http.StatusConflict, rec.Code)

	// Same version on another platform is fine.
	macBody, err := json.Marshal(map[string]string{
		"version":  "1.0.0",
		"platform": "mac",
	})
	require.NoError(t, err)
	rec = env.do(t,
		http.MethodPost, "/api/apps/editor/upload/finish",
		bytes.NewReader(macBody), true,
	)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t,
		http.MethodPost,
		"/api/apps/editor/upload?action=mpu-create&version=1.0.0&platform=win64",
		nil, false,
	)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(
		http.MethodPost,
		"/api/apps/editor/upload?action=mpu-create&version=1.0.0&platform=win64",
		nil,
	)
	req.Header.Set("Authorization", "Basic abc")
	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	req = httptest.NewRequest(
		http.MethodPost,
		"/api/apps/editor/upload?action=mpu-create&version=1.0.0&platform=win64",
		nil,
	)
	req.Header.Set("Authorization", "Bearer wrong-key")
	recorder = httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	// Reads stay public.
	rec = env.do(t, http.MethodGet, "/api/apps/editor/versions", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPublishingDisabledWithoutKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "registry.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	versionStore := store.New(db)
	require.NoError(t, versionStore.AutoMigrate())

	router := api.NewServer(versionStore, memory.New(), "").Router()

	req := httptest.NewRequest(
		http.MethodPost, "/api/apps/editor/upload/finish", nil,
	)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListVersionsGrouping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seed := []struct {
		version, platform, timestamp string
	}{
		{"1.0.0", "win64", "2024-01-01T00:00:00Z"},
		{"1.0.0", "mac", "2024-01-02T00:00:00Z"},
		{"1.1.0", "win64", "2024-02-01T00:00:00Z"},
	}
	for _, rec := range seed {
		_, err := env.store.CreateVersion(
			ctx, "editor", rec.version, rec.platform, rec.timestamp,
		)
		require.NoError(t, err)
	}

	rec := env.do(t, http.MethodGet, "/api/apps/editor/versions", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[struct {
		AppName  string `json:"app_name"`
		Versions []struct {
			Version   string   `json:"version"`
			Timestamp string   `json:"timestamp"`
			Platforms []string `json:"platforms"`
		} `json:"versions"`
	}](t, rec)

	require.Equal(t, "editor", list.AppName)
	require.Len(t, list.Versions, 2)
	// Newest version first.
	assert.Equal(t, "1.1.0", list.Versions[0].Version)
	assert.Equal(t, "1.0.0", list.Versions[1].Version)
	assert.ElementsMatch(t, []string{"win64", "mac"}, list.Versions[1].Platforms)
	// The grouped timestamp is the newest across platforms.
	assert.Equal(t, "2024-01-02T00:00:00Z", list.Versions[1].Timestamp)
}

func TestLatestVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.store.CreateVersion(
		ctx, "editor", "1.0.0", "win64", "2024-01-01T00:00:00Z",
	)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = env.store.CreateVersion(
		ctx, "editor", "1.1.0", "win64", "2024-02-01T00:00:00Z",
	)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/apps/editor/latest/win64", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode[struct {
		AppName  string `json:"app_name"`
		Platform string `json:"platform"`
		Version  string `json:"version"`
	}](t, rec)
	assert.Equal(t, "editor", latest.AppName)
	assert.Equal(t, "win64", latest.Platform)
	assert.Equal(t, "1.1.0", latest.Version)

	rec = env.do(t, http.MethodGet, "/api/apps/editor/latest/amiga", nil, false)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetVersionRecords(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.store.CreateVersion(
		context.Background(), "editor", "1.0.0", "win64", "2024-01-01T00:00:00Z",
	)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/apps/editor/versions/1.0.0", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]store.AppVersion](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "win64", records[0].Platform)

	rec = env.do(t, http.MethodGet, "/api/apps/editor/versions/9.9.9", nil, false)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateVersionRecord(t *testing.T) {
	env := newTestEnv(t)

	record, err := env.store.CreateVersion(
		context.Background(), "editor", "1.0.0", "win64", "2024-01-01T00:00:00Z",
	)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{
		"timestamp": "2024-02-01T00:00:00Z",
	})
	require.NoError(t, err)

	rec := env.do(t,
		http.MethodPatch,
		"/api/versions/"+itoa(record.ID),
		bytes.NewReader(body), true,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[store.AppVersion](t, rec)
	assert.Equal(t, "2024-02-01T00:00:00Z", updated.Timestamp)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	rec = env.do(t,
		http.MethodPatch, "/api/versions/999",
		bytes.NewReader(body), true,
	)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t,
		http.MethodPatch, "/api/versions/not-a-number",
		bytes.NewReader(body), true,
	)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, platform := range []string{"win64", "mac"} {
		_, err := env.store.CreateVersion(
			ctx, "editor", "1.0.0", platform, "2024-01-01T00:00:00Z",
		)
		require.NoError(t, err)
		require.NoError(t, env.bundles.StoreBundle(
			ctx,
			bundles.Key("editor", "1.0.0", platform),
			bytes.NewReader([]byte("zip")),
		))
	}

	rec := env.do(t,
		http.MethodDelete, "/api/apps/editor/versions/1.0.0", nil, true,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, env.bundles.Count())

	records, err := env.store.GetVersionsByAppAndVersion(ctx, "editor", "1.0.0")
	require.NoError(t, err)
	assert.Empty(t, records)

	rec = env.do(t,
		http.MethodDelete, "/api/apps/editor/versions/1.0.0", nil, true,
	)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecentFeed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.store.CreateVersion(
		ctx, "editor", "1.0.0", "win64", "2024-01-01T00:00:00Z",
	)
	require.NoError(t, err)
	_, err = env.store.CreateVersion(
		ctx, "player", "2.0.0", "mac", "2024-01-01T00:00:00Z",
	)
	require.NoError(t, err)

	since := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	rec := env.do(t, http.MethodGet, "/api/versions?since="+since, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	records := decode[[]store.AppVersion](t, rec)
	assert.Len(t, records, 2)

	rec = env.do(t,
		http.MethodGet, "/api/versions?since="+since+"&platform=mac", nil, false,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	records = decode[[]store.AppVersion](t, rec)
	require.Len(t, records, 1)
	assert.Equal(t, "player", records[0].AppName)

	rec = env.do(t, http.MethodGet, "/api/versions?platform=mac", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	records = decode[[]store.AppVersion](t, rec)
	require.Len(t, records, 1)

	rec = env.do(t, http.MethodGet, "/api/versions", nil, false)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/versions?since=yesterday", nil, false)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t,
		http.MethodPost, "/api/apps/editor/upload?action=mpu-create", nil, true,
	)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t,
		http.MethodPost,
		"/api/apps/editor/upload?action=unknown&version=1.0.0&platform=win64",
		nil, true,
	)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t,
		http.MethodPut,
		"/api/apps/editor/upload?action=mpu-uploadpart&version=1.0.0&platform=win64",
		bytes.NewReader([]byte("x")), true,
	)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t,
		http.MethodDelete,
		"/api/apps/editor/upload?action=mpu-abort&version=1.0.0&platform=win64&uploadId=bogus",
		nil, true,
	)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadMissingRecordOrBundle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t,
		http.MethodGet, "/api/apps/editor/download/win64/1.0.0", nil, false,
	)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// A record without a stored bundle is also a 404.
	_, err := env.store.CreateVersion(
		context.Background(), "editor", "1.0.0", "win64", "2024-01-01T00:00:00Z",
	)
	require.NoError(t, err)
	rec = env.do(t,
		http.MethodGet, "/api/apps/editor/download/win64/1.0.0", nil, false,
	)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
