package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/offboard"
)

// handleNautobotGet implements GET /api/nautobot/* as a thin proxy over
// pkg/nautobot.Client.Get, passing the matched wildcard straight through
// to Nautobot's REST API so the frontend never needs direct network
// access to the inventory system.
func (s *Server) handleNautobotGet(w http.ResponseWriter, r *http.Request) {
	path := "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if q := r.URL.RawQuery; q != "" {
		path += "?" + q
	}

	body, err := s.nb.Get(r.Context(), path)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// offboardRequest is the POST /api/nautobot/devices/{id}/offboard body.
type offboardRequest struct {
	IntegrationMode    string `json:"integration_mode"`
	RemoveInterfaceIPs bool   `json:"remove_interface_ips"`
	RemovePrimaryIP    bool   `json:"remove_primary_ip"`
	RemoveFromCheckMK  bool   `json:"remove_from_checkmk"`
}

func (s *Server) handleOffboard(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if deviceID == "" {
		writeError(w, apperrors.New(apperrors.Validation, "missing device id"))
		return
	}

	var req offboardRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	c, _ := claimsFromContext(r.Context())

	result, err := s.offboardSvc.Offboard(r.Context(), deviceID, offboard.Request{
		IntegrationMode:    req.IntegrationMode,
		RemoveInterfaceIPs: req.RemoveInterfaceIPs,
		RemovePrimaryIP:    req.RemovePrimaryIP,
		RemoveFromCheckMK:  req.RemoveFromCheckMK,
	}, c.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusMultiStatus, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
