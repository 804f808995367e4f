package api

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cthiel42/ipamd/internal/ipam"
)

//go:embed static
var staticFiles embed.FS

// NewRouter builds the HTTP surface of spec.md §6.1 on top of svc.
// {cidr:.*} matches mux path variables through CIDR segments that
// themselves contain a "/".
func NewRouter(svc *ipam.Service, log *zap.SugaredLogger) *mux.Router {
	h := NewHandlers(svc, log)
	r := mux.NewRouter()

	r.HandleFunc("/roots/", h.ListRoots).Methods(http.MethodGet)
	r.HandleFunc("/roots/{pool}", h.ListRoots).Methods(http.MethodGet)
	r.HandleFunc("/roots/{pool}", h.CreateRoot).Methods(http.MethodPost)
	r.HandleFunc("/roots/{pool}/{cidr:.*}", h.DeleteRoot).Methods(http.MethodDelete)

	r.HandleFunc("/reservations/", h.ListReservations).Methods(http.MethodGet)
	r.HandleFunc("/reservations/{pool}", h.ListReservations).Methods(http.MethodGet)
	r.HandleFunc("/reservations/{pool}", h.CreateReservation).Methods(http.MethodPost)
	r.HandleFunc("/reservations/{pool}/{cidr:.*}", h.DeleteReservation).Methods(http.MethodDelete)

	r.HandleFunc("/ui/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/ui/index.html", http.StatusMovedPermanently)
	}).Methods(http.MethodGet)

	staticRoot, err := fs.Sub(staticFiles, "static")
	if err == nil {
		r.PathPrefix("/ui/").Handler(http.StripPrefix("/ui/", http.FileServer(http.FS(staticRoot))))
	}

	return r
}
