// Package handlers implements the plain HTTP surface: the pre-connect login
// check, the administrative roster endpoints, and health. The websocket
// session re-verifies credentials itself; nothing here grants execution.
package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codecell/internal/guard"
	"codecell/internal/metrics"
	"codecell/internal/store"
)

type Handler struct {
	creds     *store.Store
	guard     *guard.Guard
	adminFile string
	log       *zap.Logger
}

func New(creds *store.Store, g *guard.Guard, adminFile string, log *zap.Logger) *Handler {
	return &Handler{creds: creds, guard: g, adminFile: adminFile, log: log.Named("http")}
}

// Register mounts all routes on the given router.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/login", h.Login)
	r.GET("/health", h.Health)

	admin := r.Group("/admin")
	admin.POST("/login", h.AdminLogin)
	admin.POST("/get_users", h.ListUsers)
	admin.POST("/save_user", h.SaveUser)
	admin.POST("/delete_user", h.DeleteUser)
}

type loginRequest struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

// Login is a pre-connect convenience check. It shares the abuse guard with
// the session path so it cannot be used as a free credential oracle.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}
	identity := strings.TrimSpace(req.Identity)
	secret := strings.TrimSpace(req.Secret)
	origin := c.ClientIP()

	if allowed, wait := h.guard.Check(origin); !allowed {
		h.log.Warn("login blocked by cooldown",
			zap.String("origin", origin), zap.Duration("wait", wait))
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"msg":     fmt.Sprintf("Wait %ds before trying again.", int(wait.Seconds())),
		})
		return
	}

	if h.creds.Verify(identity, secret) {
		h.log.Info("login ok", zap.String("identity", identity))
		h.guard.RecordSuccess(origin)
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	h.guard.RecordFailure(origin)
	metrics.AuthFailures.Inc()
	time.Sleep(h.guard.FailureDelay())
	h.log.Warn("login failed", zap.String("identity", identity))
	c.JSON(http.StatusOK, gin.H{"success": false})
}

// AdminLogin authenticates against the admin credentials file.
func (h *Handler) AdminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}
	origin := c.ClientIP()

	if allowed, wait := h.guard.Check(origin); !allowed {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"msg":     fmt.Sprintf("Wait %ds before trying again.", int(wait.Seconds())),
		})
		return
	}

	if h.adminOK(req.Identity, req.Secret) {
		h.log.Info("admin login ok", zap.String("identity", req.Identity))
		h.guard.RecordSuccess(origin)
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	h.guard.RecordFailure(origin)
	metrics.AuthFailures.Inc()
	time.Sleep(h.guard.FailureDelay())
	h.log.Warn("admin login failed", zap.String("identity", req.Identity))
	c.JSON(http.StatusOK, gin.H{"success": false})
}

type adminRequest struct {
	AdminIdentity string `json:"admin_identity"`
	AdminSecret   string `json:"admin_secret"`
	Identity      string `json:"identity"`
	Secret        string `json:"secret"`
	OldIdentity   string `json:"old_identity"`
}

func (h *Handler) adminOK(identity, secret string) bool {
	u, p := store.AdminCreds(h.adminFile)
	iOK := subtle.ConstantTimeCompare([]byte(identity), []byte(u)) == 1
	sOK := subtle.ConstantTimeCompare([]byte(secret), []byte(p)) == 1
	return iOK && sOK
}

// ListUsers returns the roster identities. Secrets are never returned.
func (h *Handler) ListUsers(c *gin.Context) {
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil || !h.adminOK(req.AdminIdentity, req.AdminSecret) {
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	ids, err := h.creds.Identities()
	if err != nil {
		h.log.Error("roster read failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": ids})
}

// SaveUser creates or updates a roster entry. A blank secret on edit keeps
// the existing one; renames move the entry.
func (h *Handler) SaveUser(c *gin.Context) {
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil || !h.adminOK(req.AdminIdentity, req.AdminSecret) {
		c.JSON(http.StatusOK, gin.H{"success": false, "msg": "Access denied"})
		return
	}

	newID := strings.TrimSpace(req.Identity)
	newSecret := strings.TrimSpace(req.Secret)
	oldID := strings.TrimSpace(req.OldIdentity)

	if newID == "" || strings.Contains(newID, ":") {
		c.JSON(http.StatusOK, gin.H{"success": false, "msg": "Invalid identity"})
		return
	}

	users, err := h.creds.Load()
	if err != nil {
		h.log.Error("roster read failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	if old, exists := users[oldID]; oldID != "" && exists {
		final := newSecret
		if final == "" {
			final = old
		}
		if oldID != newID {
			delete(users, oldID)
			h.log.Info("roster entry renamed",
				zap.String("from", oldID), zap.String("to", newID))
		} else {
			h.log.Info("roster secret updated", zap.String("identity", newID))
		}
		users[newID] = final
	} else {
		if newSecret == "" {
			c.JSON(http.StatusOK, gin.H{"success": false, "msg": "Secret required"})
			return
		}
		users[newID] = newSecret
		h.log.Info("roster entry created", zap.String("identity", newID))
	}

	if err := h.creds.Save(users); err != nil {
		h.log.Error("roster write failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteUser removes a roster entry. Deleting an absent identity succeeds.
func (h *Handler) DeleteUser(c *gin.Context) {
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil || !h.adminOK(req.AdminIdentity, req.AdminSecret) {
		c.JSON(http.StatusOK, gin.H{"success": false, "msg": "Access denied"})
		return
	}

	target := strings.TrimSpace(req.Identity)
	users, err := h.creds.Load()
	if err != nil {
		h.log.Error("roster read failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	if _, ok := users[target]; ok {
		delete(users, target)
		if err := h.creds.Save(users); err != nil {
			h.log.Error("roster write failed", zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"success": false})
			return
		}
		h.log.Info("roster entry deleted", zap.String("identity", target))
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Health reports process liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
