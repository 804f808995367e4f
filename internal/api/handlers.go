package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cthiel42/ipamd/internal/ipam"
)

// Handlers binds ipam.Service operations to HTTP (spec.md §6.1). Every
// failure, regardless of kind, is reported as HTTP 400 with
// {"msg": <kind-carrying message>} — the core never retries and the
// transport never reinterprets the error (spec.md §7).
type Handlers struct {
	svc *ipam.Service
	log *zap.SugaredLogger
}

// NewHandlers builds a Handlers bound to svc. log may be nil.
func NewHandlers(svc *ipam.Service, log *zap.SugaredLogger) *Handlers {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handlers{svc: svc, log: log}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Errorw("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := ipam.KindInternal
	if ipamErr, ok := err.(*ipam.Error); ok {
		kind = ipamErr.Kind
	}
	h.log.Infow("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
	h.writeJSON(w, http.StatusBadRequest, msgResponse{Msg: string(kind) + ": " + err.Error()})
}

func (h *Handlers) writeOK(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusOK, msgResponse{Msg: "ok"})
}

// ListRoots handles GET /roots/ and GET /roots/{pool}.
func (h *Handlers) ListRoots(w http.ResponseWriter, r *http.Request) {
	pool := mux.Vars(r)["pool"]
	roots, err := h.svc.ListRoots(r.Context(), pool)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]rootDTO, len(roots))
	for i, root := range roots {
		dtos[i] = newRootDTO(root)
	}
	h.writeJSON(w, http.StatusOK, dtos)
}

// CreateRoot handles POST /roots/{pool}.
func (h *Handlers) CreateRoot(w http.ResponseWriter, r *http.Request) {
	pool := mux.Vars(r)["pool"]
	var req createRootRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, msgResponse{Msg: "invalid request body"})
		return
	}
	if err := h.svc.CreateRoot(r.Context(), req.CIDR, pool); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w)
}

// DeleteRoot handles DELETE /roots/{pool}/{cidr}. The pool segment is
// accepted but ignored, matching spec.md §9's documented open question.
func (h *Handlers) DeleteRoot(w http.ResponseWriter, r *http.Request) {
	cidrText := mux.Vars(r)["cidr"]
	if err := h.svc.DeleteRoot(r.Context(), cidrText); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w)
}

// ListReservations handles GET /reservations/ and GET /reservations/{pool}.
func (h *Handlers) ListReservations(w http.ResponseWriter, r *http.Request) {
	pool := mux.Vars(r)["pool"]
	reservations, err := h.svc.ListReservationsByPool(r.Context(), pool)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]reservationDTO, len(reservations))
	for i, res := range reservations {
		dtos[i] = newReservationDTO(res)
	}
	h.writeJSON(w, http.StatusOK, dtos)
}

// CreateReservation handles POST /reservations/{pool}. If cidr is
// present it takes precedence and invokes allocate_by_cidr; otherwise
// prefix_length drives allocate. If neither is present, 400.
func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	pool := mux.Vars(r)["pool"]
	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, msgResponse{Msg: "invalid request body"})
		return
	}

	if req.CIDR != "" {
		n, err := h.svc.AllocateByCIDR(r.Context(), pool, req.CIDR, req.Comment)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, newReservationDTO(*n))
		return
	}

	if req.PrefixLength == nil {
		h.writeJSON(w, http.StatusBadRequest, msgResponse{Msg: "cidr or prefix_length is required"})
		return
	}

	n, err := h.svc.Allocate(r.Context(), *req.PrefixLength, pool, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newReservationDTO(*n))
}

// DeleteReservation handles DELETE /reservations/{pool}/{cidr}.
func (h *Handlers) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	cidrText := mux.Vars(r)["cidr"]
	if err := h.svc.Deallocate(r.Context(), cidrText); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w)
}
