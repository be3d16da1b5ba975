package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/rbac"
)

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusOK))
	assert.Equal(t, "3xx", statusClass(http.StatusFound))
	assert.Equal(t, "4xx", statusClass(http.StatusNotFound))
	assert.Equal(t, "5xx", statusClass(http.StatusInternalServerError))
}

func TestRequirePermissionRejectsMissingContext(t *testing.T) {
	handler := requirePermission("jobs", "read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequirePermissionRejectsMissingGrant(t *testing.T) {
	handler := requirePermission("jobs", "write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	c := &claims{Grants: []rbac.Grant{{Resource: "jobs", Action: "read"}}}
	req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxKeyClaims, c))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequirePermissionAllowsGrantedCaller(t *testing.T) {
	reached := false
	handler := requirePermission("jobs", "read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	c := &claims{Grants: []rbac.Grant{{Resource: "jobs", Action: "read"}}}
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxKeyClaims, c))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.True(t, reached)
	assert.Equal(t, http.StatusOK, rr.Code)
}
