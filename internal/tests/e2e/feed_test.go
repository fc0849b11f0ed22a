//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/feedgraph/apiserver/config"
	"github.com/feedgraph/apiserver/internal/db"
	"github.com/feedgraph/apiserver/internal/logging"
	"github.com/feedgraph/apiserver/internal/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mongodb"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serverPort = 18080
	mongoURI   = "mongodb://localhost:27017"
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d", "--wait"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	cfg := testConfig(root)
	if err := runMigrations(root, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := server.New(ctx, cfg, logging.New("feedgraph-e2e", "warn"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}
	go func() {
		_ = srv.Start()
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = dockerCompose(context.Background(), root, "down")
	}

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		shutdown()
		os.Exit(1)
	}

	code := m.Run()
	shutdown()
	os.Exit(code)
}

func testConfig(root string) config.Config {
	return config.Config{
		ServerPort: serverPort,
		JWTSecret:  "e2e-secret",
		LogLevel:   "warn",
		Mongo:      config.MongoConfig{URI: mongoURI, Database: fmt.Sprintf("feeds_e2e_%d", time.Now().UnixNano())},
		Images:     config.ImagesConfig{Backend: config.ImagesBackendLocal, Dir: filepath.Join(os.TempDir(), "feedgraph-e2e-images")},
		Queue:      config.QueueConfig{Backend: config.QueueBackendNone, CleanupChannel: "image-cleanup"},
	}
}

func TestFeedLifecycle(t *testing.T) {
	email := fmt.Sprintf("writer_%d@example.com", time.Now().UnixNano())

	created := graphql(t, "", `mutation ($in: UserInputData!) { createUser(userInput: $in) { _id email status } }`,
		map[string]any{"in": map[string]any{"email": email, "name": "Writer", "password": "secret1"}})
	require.Empty(t, created.Errors)
	user := created.field(t, "createUser")
	assert.Equal(t, "I am new!", user["status"])

	dup := graphql(t, "", `mutation ($in: UserInputData!) { createUser(userInput: $in) { _id } }`,
		map[string]any{"in": map[string]any{"email": email, "name": "Writer", "password": "secret1"}})
	require.Len(t, dup.Errors, 1)
	assert.Equal(t, "User Already Exists", dup.Errors[0]["message"])

	login := graphql(t, "", `query ($e: String!, $p: String!) { login(email: $e, password: $p) { token userId } }`,
		map[string]any{"e": email, "p": "secret1"})
	require.Empty(t, login.Errors)
	auth := login.field(t, "login")
	token := auth["token"].(string)
	assert.Equal(t, user["_id"], auth["userId"])

	anon := graphql(t, "", `{ posts { totalPosts } }`, nil)
	require.Len(t, anon.Errors, 1)
	assert.EqualValues(t, 401, anon.Errors[0]["status"])

	imagePath := uploadImage(t, token, "cover.png", "")

	post := graphql(t, token, `mutation ($in: PostInputData!) { createPost(postInput: $in) { _id title imageUrl creator { _id } } }`,
		map[string]any{"in": map[string]any{"title": "First post", "content": "Hello world", "imageUrl": imagePath}})
	require.Empty(t, post.Errors)
	postData := post.field(t, "createPost")
	postID := postData["_id"].(string)
	assert.Equal(t, user["_id"], postData["creator"].(map[string]any)["_id"])

	fetched := graphql(t, token, `query ($id: ID!) { post(id: $id) { title content imageUrl creator { email } } }`,
		map[string]any{"id": postID})
	require.Empty(t, fetched.Errors)
	assert.Equal(t, map[string]any{
		"title": "First post", "content": "Hello world", "imageUrl": imagePath,
		"creator": map[string]any{"email": email},
	}, fetched.field(t, "post"))

	listed := graphql(t, token, `{ posts(pageNo: 1) { totalPosts posts { _id } } }`, nil)
	require.Empty(t, listed.Errors)
	assert.EqualValues(t, 1, listed.field(t, "posts")["totalPosts"])

	replacement := uploadImage(t, token, "cover2.png", imagePath)
	updated := graphql(t, token, `mutation ($id: ID!, $in: PostInputData!) { updatePost(id: $id, postInput: $in) { title imageUrl } }`,
		map[string]any{"id": postID, "in": map[string]any{"title": "Edited post", "content": "Hello again", "imageUrl": replacement}})
	require.Empty(t, updated.Errors)
	assert.Equal(t, map[string]any{"title": "Edited post", "imageUrl": replacement}, updated.field(t, "updatePost"))
	assert.Eventually(t, func() bool { return imageStatus(t, imagePath) == http.StatusNotFound }, 5*time.Second, 100*time.Millisecond)

	status := graphql(t, token, `mutation { updateStatus(status: "Writing") { status posts { _id } } }`, nil)
	require.Empty(t, status.Errors)
	assert.Equal(t, "Writing", status.field(t, "updateStatus")["status"])
	assert.Len(t, status.field(t, "updateStatus")["posts"], 1)

	deleted := graphql(t, token, `mutation ($id: ID!) { deletePost(id: $id) }`, map[string]any{"id": postID})
	require.Empty(t, deleted.Errors)
	assert.Equal(t, true, deleted.Data["deletePost"])
	assert.Eventually(t, func() bool { return imageStatus(t, replacement) == http.StatusNotFound }, 5*time.Second, 100*time.Millisecond)

	me := graphql(t, token, `{ user { posts { _id } } }`, nil)
	require.Empty(t, me.Errors)
	assert.Empty(t, me.field(t, "user")["posts"])

	missing := graphql(t, token, `query ($id: ID!) { post(id: $id) { _id } }`, map[string]any{"id": postID})
	require.Len(t, missing.Errors, 1)
	assert.Equal(t, "Post not found", missing.Errors[0]["message"])
}

type gqlResponse struct {
	Data   map[string]any   `json:"data"`
	Errors []map[string]any `json:"errors"`
}

func (r gqlResponse) field(t *testing.T, name string) map[string]any {
	t.Helper()
	value, ok := r.Data[name].(map[string]any)
	require.True(t, ok, "missing field %s in %v", name, r.Data)
	return value
}

func graphql(t *testing.T, token, query string, vars map[string]any) gqlResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, baseURL+"/graphql", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out gqlResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func uploadImage(t *testing.T, token, name, oldPath string) string {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake image"))
	require.NoError(t, err)
	if oldPath != "" {
		require.NoError(t, w.WriteField("oldPath", oldPath))
	}
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPut, baseURL+"/post-image", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Message  string `json:"message"`
		FilePath string `json:"filePath"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "File Stored", out.Message)
	assert.Equal(t, http.StatusOK, imageStatus(t, out.FilePath))
	return out.FilePath
}

func imageStatus(t *testing.T, path string) int {
	t.Helper()
	resp, err := http.Get(baseURL + path)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string, cfg config.Config) error {
	dsn, err := db.MigrationURL(cfg)
	if err != nil {
		return err
	}
	migrator, err := migrate.New("file://"+filepath.Join(root, "internal", "db", "migrations"), dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
