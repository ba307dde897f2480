package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codecell/internal/guard"
	"codecell/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	dir := t.TempDir()
	roster := filepath.Join(dir, "students.txt")
	require.NoError(t, os.WriteFile(roster, []byte("alice:wonder\nbob:builder\n"), 0o644))
	adminFile := filepath.Join(dir, "admin.txt")
	require.NoError(t, os.WriteFile(adminFile, []byte("root:topsecret\n"), 0o644))

	h := New(store.New(roster), guard.New(3, time.Minute, 0), adminFile, zap.NewNop())
	r := gin.New()
	h.Register(r)
	return r, roster
}

func postJSON(r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestLoginSuccess(t *testing.T) {
	r, _ := newTestRouter(t)
	w := postJSON(r, "/login", gin.H{"identity": "alice", "secret": "wonder"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])
}

func TestLoginFailure(t *testing.T) {
	r, _ := newTestRouter(t)
	w := postJSON(r, "/login", gin.H{"identity": "alice", "secret": "nope"})
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestLoginCooldown(t *testing.T) {
	r, _ := newTestRouter(t)
	for i := 0; i < 3; i++ {
		postJSON(r, "/login", gin.H{"identity": "alice", "secret": "nope"})
	}
	w := postJSON(r, "/login", gin.H{"identity": "alice", "secret": "wonder"})
	out := decode(t, w)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["msg"], "Wait")
}

func TestAdminLogin(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(r, "/admin/login", gin.H{"identity": "root", "secret": "topsecret"})
	assert.Equal(t, true, decode(t, w)["success"])

	w = postJSON(r, "/admin/login", gin.H{"identity": "root", "secret": "wrong"})
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestListUsersRequiresAdmin(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(r, "/admin/get_users", gin.H{"admin_identity": "root", "admin_secret": "bad"})
	assert.Equal(t, false, decode(t, w)["success"])

	w = postJSON(r, "/admin/get_users", gin.H{"admin_identity": "root", "admin_secret": "topsecret"})
	out := decode(t, w)
	assert.Equal(t, true, out["success"])
	assert.ElementsMatch(t, []any{"alice", "bob"}, out["users"])
}

func TestSaveUserCreate(t *testing.T) {
	r, roster := newTestRouter(t)

	w := postJSON(r, "/admin/save_user", gin.H{
		"admin_identity": "root", "admin_secret": "topsecret",
		"identity": "carol", "secret": "chaos",
	})
	assert.Equal(t, true, decode(t, w)["success"])

	data, err := os.ReadFile(roster)
	require.NoError(t, err)
	assert.Contains(t, string(data), "carol:chaos")
}

func TestSaveUserCreateRequiresSecret(t *testing.T) {
	r, _ := newTestRouter(t)
	w := postJSON(r, "/admin/save_user", gin.H{
		"admin_identity": "root", "admin_secret": "topsecret",
		"identity": "carol", "secret": "",
	})
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestSaveUserBlankSecretKeepsOld(t *testing.T) {
	r, roster := newTestRouter(t)
	w := postJSON(r, "/admin/save_user", gin.H{
		"admin_identity": "root", "admin_secret": "topsecret",
		"identity": "alice", "secret": "", "old_identity": "alice",
	})
	assert.Equal(t, true, decode(t, w)["success"])

	data, err := os.ReadFile(roster)
	require.NoError(t, err)
	assert.Contains(t, string(data), "alice:wonder")
}

func TestSaveUserRename(t *testing.T) {
	r, roster := newTestRouter(t)
	w := postJSON(r, "/admin/save_user", gin.H{
		"admin_identity": "root", "admin_secret": "topsecret",
		"identity": "alicia", "secret": "", "old_identity": "alice",
	})
	assert.Equal(t, true, decode(t, w)["success"])

	data, err := os.ReadFile(roster)
	require.NoError(t, err)
	assert.Contains(t, string(data), "alicia:wonder")
	assert.NotContains(t, string(data), "alice:wonder")
}

func TestSaveUserRejectsColonInIdentity(t *testing.T) {
	r, _ := newTestRouter(t)
	w := postJSON(r, "/admin/save_user", gin.H{
		"admin_identity": "root", "admin_secret": "topsecret",
		"identity": "evil:user", "secret": "x",
	})
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestDeleteUser(t *testing.T) {
	r, roster := newTestRouter(t)
	w := postJSON(r, "/admin/delete_user", gin.H{
		"admin_identity": "root", "admin_secret": "topsecret",
		"identity": "bob",
	})
	assert.Equal(t, true, decode(t, w)["success"])

	data, err := os.ReadFile(roster)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "bob")

	// Absent identity deletes are a no-op, not an error.
	w = postJSON(r, "/admin/delete_user", gin.H{
		"admin_identity": "root", "admin_secret": "topsecret",
		"identity": "ghost",
	})
	assert.Equal(t, true, decode(t, w)["success"])
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
