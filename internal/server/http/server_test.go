package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/logging"
	"github.com/dmitrijs2005/exius/internal/server/auth"
	"github.com/dmitrijs2005/exius/internal/server/models"
	"github.com/dmitrijs2005/exius/internal/server/services"
	"github.com/dmitrijs2005/exius/internal/server/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeRelays struct {
	relays     map[string]*models.Relay
	createErr  error
	lastCreate services.CreateRelayParams
	lastUpdate services.UpdateRelayParams
	dropped    map[string]bool
}

func (f *fakeRelays) Create(_ context.Context, p services.CreateRelayParams) (*models.Relay, error) {
	f.lastCreate = p
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.relays[p.RelayName]; ok {
		return nil, common.ErrDuplicateRelay
	}
	r := &models.Relay{RelayName: p.RelayName, Repository: p.Repository, Password: "hashed", MaxRelayPulls: 1}
	f.relays[p.RelayName] = r
	return r, nil
}

func (f *fakeRelays) Get(_ context.Context, name string) (*models.Relay, error) {
	r, ok := f.relays[name]
	if !ok {
		return nil, common.ErrUnknownRelay
	}
	return r, nil
}

func (f *fakeRelays) Update(_ context.Context, p services.UpdateRelayParams) (*models.Relay, error) {
	f.lastUpdate = p
	r, ok := f.relays[p.RelayName]
	if !ok {
		return nil, common.ErrUnknownRelay
	}
	if p.MetaData != nil {
		r.MetaData = *p.MetaData
	}
	return r, nil
}

func (f *fakeRelays) Delete(_ context.Context, name string, dropTable bool) error {
	if _, ok := f.relays[name]; !ok {
		return common.ErrUnknownRelay
	}
	delete(f.relays, name)
	f.dropped[name] = dropTable
	return nil
}

type fakeKeys struct {
	mu       sync.Mutex
	keys     map[string]*models.SubjectKey // relay + "/" + key
	issueErr error
	next     string
}

func (f *fakeKeys) Issue(_ context.Context, relayName, metaData string) (*models.SubjectKey, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	k := &models.SubjectKey{SubjectKey: f.next, MetaData: metaData, UploadState: models.UploadState{}}
	f.put(relayName, k)
	return k, nil
}

func (f *fakeKeys) put(relay string, k *models.SubjectKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[relay+"/"+k.SubjectKey] = k
}

func (f *fakeKeys) Get(_ context.Context, relayName, key string) (*models.SubjectKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[relayName+"/"+key]
	if !ok {
		return nil, common.ErrUnknownSubjectKey
	}
	cp := *k
	cp.UploadState = k.UploadState.Clone()
	return &cp, nil
}

func (f *fakeKeys) List(_ context.Context, relayName string) ([]*models.SubjectKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SubjectKey
	for id, k := range f.keys {
		if strings.HasPrefix(id, relayName+"/") {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeKeys) Update(ctx context.Context, p services.UpdateSubjectKeyParams) (*models.SubjectKey, error) {
	k, err := f.Get(ctx, p.RelayName, p.SubjectKey)
	if err != nil {
		return nil, err
	}
	if p.MetaData != nil {
		k.MetaData = *p.MetaData
	}
	f.put(p.RelayName, k)
	return k, nil
}

func (f *fakeKeys) Delete(_ context.Context, relayName, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[relayName+"/"+key]; !ok {
		return common.ErrUnknownSubjectKey
	}
	delete(f.keys, relayName+"/"+key)
	return nil
}

func (f *fakeKeys) Authenticate(ctx context.Context, relayName, key string) (*models.SubjectKey, error) {
	return f.Get(ctx, relayName, key)
}

func (f *fakeKeys) SaveUploadState(_ context.Context, relayName, key string, state models.UploadState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[relayName+"/"+key]
	if !ok {
		return common.ErrUnknownSubjectKey
	}
	k.UploadState = state.Clone()
	return nil
}

// fakePermissions grants by token: "admin" may do anything, "reader" may
// access relays, everything else is refused.
type fakePermissions struct {
	password string
}

func (f *fakePermissions) CanCreateRelay(_ context.Context, token string) (string, error) {
	if token != "admin" {
		return "", common.ErrorUnauthorized
	}
	return "alice", nil
}

func (f *fakePermissions) CanAccessRelay(_ context.Context, token, _ string) (string, error) {
	if token != "admin" && token != "reader" {
		return "", common.ErrorUnauthorized
	}
	return token, nil
}

func (f *fakePermissions) CanIssueKey(_ context.Context, _, password string) error {
	if password != f.password {
		return common.ErrorUnauthorized
	}
	return nil
}

type fakeRepos struct {
	existing map[string]bool
}

func (f *fakeRepos) EnsureRepository(_ context.Context, repo string) (bool, error) {
	if f.existing[repo] {
		return false, nil
	}
	f.existing[repo] = true
	return true, nil
}

// --- helpers ---

var testSecret = []byte("test-secret")

type testEnv struct {
	relays *fakeRelays
	keys   *fakeKeys
	remote *storage.MemoryStorage
	repos  *fakeRepos
	logs   *bytes.Buffer
	h      http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		relays: &fakeRelays{relays: map[string]*models.Relay{}, dropped: map[string]bool{}},
		keys:   &fakeKeys{keys: map[string]*models.SubjectKey{}, next: "0000042"},
		remote: storage.NewMemoryStorage(),
		repos:  &fakeRepos{existing: map[string]bool{}},
		logs:   &bytes.Buffer{},
	}
	logger := logging.NewJSONLogger(env.logs, false)
	srv := NewHTTPServer(Options{
		SecretKey:           testSecret,
		UploadTokenValidity: time.Hour,
		RequestTimeout:      time.Minute,
		Debug:               true,
	}, Services{
		Relays:       env.relays,
		SubjectKeys:  env.keys,
		Uploads:      services.NewUploadService(env.keys, env.remote, logger),
		Permissions:  &fakePermissions{password: "pw"},
		Repositories: env.repos,
	}, logger)
	env.h = srv.Handler()
	return env
}

func (e *testEnv) do(method, path, authz string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if authz != "" {
		req.Header.Set(common.AuthorizationHeaderName, authz)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) postJSON(path, authz string, v any) *httptest.ResponseRecorder {
	var body io.Reader = http.NoBody
	if v != nil {
		b, _ := json.Marshal(v)
		body = bytes.NewReader(b)
	}
	return e.do(http.MethodPost, path, authz, body, "application/json")
}

type part struct {
	field, name, content string
}

func multipartBody(t *testing.T, parts ...part) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.name == "" {
			require.NoError(t, w.WriteField(p.field, p.content))
			continue
		}
		fw, err := w.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, p.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seedKey stores a subject key with one endpoint bound to a fresh folder.
func (e *testEnv) seedKey(t *testing.T, relay, key string, scope models.EndpointScope) {
	t.Helper()
	folder, err := e.remote.CreateFolder(context.Background(), common.RootFolderID, relay+"-"+key)
	require.NoError(t, err)
	scope.RemoteFolderID = folder.ID
	e.keys.put(relay, &models.SubjectKey{
		SubjectKey: key,
		UploadState: models.UploadState{
			"data": {Scope: scope, Files: map[string]*models.FileRecord{}},
		},
	})
}

// --- tests ---

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	rec = httptest.NewRecorder()
	env.h.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get(RequestIDHeader))
}

func TestCreateRelay(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON("/relay/createRelay", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.postJSON("/relay/createRelay", "githubKey:nobody", services.CreateRelayParams{RelayName: "r"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.postJSON("/relay/createRelay", "githubKey:admin", services.CreateRelayParams{
		RelayName: "r", Repository: "lab/r", Password: "pw",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hashed")
	got := decode[models.Relay](t, rec)
	assert.Equal(t, "r", got.RelayName)
	assert.Equal(t, "pw", env.relays.lastCreate.Password)

	rec = env.postJSON("/relay/createRelay", "githubKey:admin", services.CreateRelayParams{RelayName: "r", Repository: "lab/r"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/relay/createRelay", "githubKey:admin", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRelay_PartialProvisioningReported(t *testing.T) {
	env := newTestEnv(t)
	env.relays.createErr = fmt.Errorf("%w: %w: db down", common.ErrPartialProvisioning, common.ErrPersistence)

	rec := env.postJSON("/relay/createRelay", "githubKey:admin", services.CreateRelayParams{RelayName: "x", Repository: "lab/x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "partial provisioning")

	var failed map[string]any
	for _, line := range strings.Split(strings.TrimSpace(env.logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "request failed" {
			failed = entry
		}
	}
	require.NotNil(t, failed, env.logs.String())
	assert.Equal(t, "ERROR", failed["level"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), failed["request_id"])
}

func TestRelayAccessRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.relays.relays["r"] = &models.Relay{RelayName: "r", Repository: "lab/r"}

	rec := env.postJSON("/relay/getRelay", "relayName:r", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.postJSON("/relay/getRelay", "relayName:r;githubKey:stranger", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.postJSON("/relay/getRelay", "relayName:r;githubKey:reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lab/r", decode[models.Relay](t, rec).Repository)

	rec = env.postJSON("/relay/getRelay", "relayName:ghost;githubKey:reader", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	meta := "new"
	rec = env.postJSON("/relay/modifyRelay", "relayName:r;githubKey:admin",
		services.UpdateRelayParams{RelayName: "other", MetaData: &meta})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "r", env.relays.lastUpdate.RelayName)
	assert.Equal(t, "new", decode[models.Relay](t, rec).MetaData)

	rec = env.postJSON("/relay/deleteRelay", "relayName:r;githubKey:admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.relays.dropped["r"])
}

func TestCreateSubjectKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON("/subjectKey/createSubjectKey", "relayName:r;password:wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.postJSON("/subjectKey/createSubjectKey", "relayName:r;password:pw", map[string]string{"metaData": "site A"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	issued := decode[IssuedKey](t, rec)
	assert.Equal(t, "0000042", issued.SubjectKey)

	relay, key, err := auth.ParseUploadToken(issued.UploadToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "r", relay)
	assert.Equal(t, "0000042", key)

	stored, err := env.keys.Get(context.Background(), "r", "0000042")
	require.NoError(t, err)
	assert.Equal(t, "site A", stored.MetaData)

	env.keys.issueErr = common.ErrQuotaExhausted
	rec = env.postJSON("/subjectKey/createSubjectKey", "relayName:r;password:pw", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.keys.issueErr = common.ErrCollisionRetryExceeded
	rec = env.postJSON("/subjectKey/createSubjectKey", "relayName:r;password:pw", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubjectKeyManagement(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON("/subjectKey/listSubjectKeys", "relayName:r;githubKey:reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	env.seedKey(t, "r", "1234567", models.EndpointScope{FileTypes: []string{".csv"}, MaxFileSize: "1mb", MaxFiles: 1, MaxFileUpdates: 1})

	rec = env.postJSON("/subjectKey/getSubjectKey", "relayName:r;subjectKey:1234567;githubKey:reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1234567", decode[models.SubjectKey](t, rec).SubjectKey)

	rec = env.postJSON("/subjectKey/getSubjectKey", "relayName:r;subjectKey:7654321;githubKey:reader", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.postJSON("/subjectKey/modifySubjectKey", "relayName:r;subjectKey:1234567;githubKey:admin",
		map[string]string{"metaData": "visit 2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "visit 2", decode[models.SubjectKey](t, rec).MetaData)

	rec = env.postJSON("/subjectKey/listSubjectKeys", "relayName:r;githubKey:reader", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.SubjectKey](t, rec), 1)

	rec = env.postJSON("/subjectKey/deleteSubjectKey", "relayName:r;subjectKey:1234567;githubKey:admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.postJSON("/subjectKey/deleteSubjectKey", "relayName:r;subjectKey:1234567;githubKey:admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpload(t *testing.T) {
	env := newTestEnv(t)
	env.seedKey(t, "r", "1234567", models.EndpointScope{
		FileTypes: []string{".csv"}, MaxFileSize: "1KB", MaxFiles: 2, MaxFileUpdates: 1,
	})

	body, ct := multipartBody(t,
		part{field: "note", content: "ignored"},
		part{field: "data", name: "a.csv", content: "1,2,3"},
		part{field: "data", name: "b.txt", content: "x"},
		part{field: "data", name: "big.csv", content: strings.Repeat("x", 2048)},
	)
	rec := env.do(http.MethodPost, "/upload", "relayName:r;subjectKey:1234567", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[services.UploadResult](t, rec)
	assert.Equal(t, []string{"a.csv"}, res.Accepted)
	assert.Contains(t, res.FailedFiles["b.txt"], common.ErrDisallowedExtension.Error())
	assert.Contains(t, res.FailedFiles["big.csv"], common.ErrSizeExceeded.Error())

	stored, err := env.keys.Get(context.Background(), "r", "1234567")
	require.NoError(t, err)
	rec1 := stored.UploadState["data"].Files["a.csv"]
	require.NotNil(t, rec1)
	content, _, err := env.remote.ReadFile(rec1.FileID)
	require.NoError(t, err)
	assert.Equal(t, "1,2,3", string(content))
}

func TestUpload_BearerToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedKey(t, "r", "1234567", models.EndpointScope{FileTypes: []string{".csv"}, MaxFileSize: "1mb", MaxFiles: 1, MaxFileUpdates: 1})

	token, err := auth.GenerateUploadToken("r", "1234567", testSecret, time.Hour)
	require.NoError(t, err)

	body, ct := multipartBody(t, part{field: "data", name: "a.csv", content: "v1"})
	rec := env.do(http.MethodPost, "/upload", "Bearer "+token, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"a.csv"}, decode[services.UploadResult](t, rec).Accepted)

	body, ct = multipartBody(t, part{field: "data", name: "a.csv", content: "v1"})
	rec = env.do(http.MethodPost, "/upload", "Bearer not-a-token", body, ct)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpload_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	body, ct := multipartBody(t, part{field: "data", name: "a.csv", content: "x"})

	for _, authz := range []string{"", "relayName:r", "relayName:r;subjectKey:0000000", "garbage"} {
		rec := env.do(http.MethodPost, "/upload", authz, body, ct)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, authz)
		assert.Empty(t, rec.Body.String(), authz)
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	env := newTestEnv(t)
	env.seedKey(t, "r", "1234567", models.EndpointScope{FileTypes: []string{".csv"}, MaxFileSize: "1mb", MaxFiles: 1, MaxFileUpdates: 1})

	rec := env.do(http.MethodPost, "/upload", "relayName:r;subjectKey:1234567", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddRepository(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postJSON("/github/addRepository", "repository:study;githubKey:stranger", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.postJSON("/github/addRepository", "repository:study;githubKey:admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"repository":"study","created":true}`, rec.Body.String())

	rec = env.postJSON("/github/addRepository", "repository:study;githubKey:admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"repository":"study","created":false}`, rec.Body.String())
}
