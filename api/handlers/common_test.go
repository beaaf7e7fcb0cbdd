// Common test helpers
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/homeindex/config"
	"github.com/meghashyamc/homeindex/db/kvdb"
	"github.com/meghashyamc/homeindex/db/snapshot"
	"github.com/meghashyamc/homeindex/logger"
	"github.com/meghashyamc/homeindex/services/index"
	"github.com/meghashyamc/homeindex/services/settings"
	"github.com/meghashyamc/homeindex/validation"
	"github.com/stretchr/testify/require"
)

var defaultTestRequestHeaders = map[string]string{"Content-Type": "application/json"}

var testFiles = map[string]string{
	"file1.txt":              "This is test content for file1",
	"file2.go":               "package main\n\nfunc main() {\n\tprint(\"Hello\")\n}",
	"subdir/file3.md":        "# Test Markdown\n\nThis is a test markdown file",
	"subdir/file4.json":      `{"key": "value", "number": 42}`,
	"subdir/nested/file5.py": "def hello():\n    print('Hello World')",
}

type testCase struct {
	name             string
	requestHeaders   map[string]string
	requestBody      map[string]any
	queryParams      map[string]string
	expectedStatus   int
	expectedResponse map[string]any
}

type testServer struct {
	router  *gin.Engine
	engine  *index.Service
	rootDir string
}

func newTestLogger() logger.Logger {

	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

func setupTestServer(t *testing.T, assert *require.Assertions) *testServer {

	t.Setenv("ENV", "test")

	cfg, err := config.Load("")
	assert.NoError(err, "could not load config")

	rootDir := t.TempDir()
	for relPath, content := range testFiles {
		fullPath := filepath.Join(rootDir, relPath)
		err := os.MkdirAll(filepath.Dir(fullPath), 0755)
		assert.NoError(err, "could not create test sub-directory")
		err = os.WriteFile(fullPath, []byte(content), 0644)
		assert.NoError(err, "could not write test file")
	}

	testLogger := newTestLogger()
	dataDir := t.TempDir()

	kvDB, err := kvdb.New(testLogger, filepath.Join(dataDir, "settings.db"))
	assert.NoError(err, "could not create kv database")
	t.Cleanup(func() { kvDB.Close() })

	policy := cfg.GetDefaultPolicy()
	policy.HomeRoots = []string{rootDir}
	policy.IndexDocumentation = false
	policy.IndexRepositories = false
	policies, err := settings.New(testLogger, kvDB, policy)
	assert.NoError(err, "could not create settings store")

	validator, err := validation.New(testLogger)
	assert.NoError(err, "could not create validator")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	engine := index.New(ctx, testLogger, policies, snapshot.New(testLogger, filepath.Join(dataDir, "index_snapshot.json")), kvDB)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	SetupIndex(router, testLogger, engine, validator)
	SetupSearch(router, testLogger, engine, validator)
	SetupFiles(router, testLogger, engine, validator)
	SetupSettings(router, testLogger, policies, validator)

	return &testServer{router: router, engine: engine, rootDir: rootDir}
}

// indexTestFiles runs one indexing pass over the test files through the API.
func indexTestFiles(assert *require.Assertions, server *testServer) {
	w := makeTestHTTPRequest(server.router, assert, http.MethodPost, "/index", defaultTestRequestHeaders, nil, nil)
	assert.Equal(http.StatusAccepted, w.Code, "indexing should start")

	status := server.engine.Wait(context.Background())
	assert.Equal(index.StateComplete, status.State, "indexing should complete")
}

func makeTestHTTPRequest(router *gin.Engine, assert *require.Assertions, method string, endpoint string, headers map[string]string, requestBodyMap map[string]interface{}, queryParams map[string]string) *httptest.ResponseRecorder {

	var err error
	w := httptest.NewRecorder()

	if len(queryParams) > 0 {
		values := url.Values{}
		for key, value := range queryParams {
			values.Set(key, value)
		}
		endpoint = endpoint + "?" + values.Encode()
	}
	var jsonBody []byte
	var req *http.Request
	if requestBodyMap != nil {
		jsonBody, err = json.Marshal(requestBodyMap)
		assert.NoError(err)
	}

	slog.Info("Making test request", "method", method, "endpoint", endpoint, "headers", headers, "body", string(jsonBody))

	if len(jsonBody) > 0 {
		req, err = http.NewRequest(method, endpoint, bytes.NewBuffer(jsonBody))
	} else {
		req, err = http.NewRequest(method, endpoint, nil)
	}
	assert.NoError(err)

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	router.ServeHTTP(w, req)

	return w
}

func decodeResponse(assert *require.Assertions, w *httptest.ResponseRecorder) map[string]any {
	var responseMap map[string]any
	assert.NoError(json.Unmarshal(w.Body.Bytes(), &responseMap), "response should be JSON")
	return responseMap
}

// resultPaths returns the "path" of every object in a JSON array.
func resultPaths(results any) []string {
	var paths []string
	for _, result := range results.([]any) {
		paths = append(paths, result.(map[string]any)["path"].(string))
	}
	return paths
}
