package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/roach88/gridstate/internal/gateway"
	"github.com/roach88/gridstate/internal/model"
)

func (s *Server) routes(mux *http.ServeMux) {
	g := s.gw
	mux.Handle("GET /agent", listHandler(g.ListAgents))
	mux.Handle("GET /agent/{public_key}", fetchHandler("public_key", g.FetchAgent))
	mux.Handle("GET /organization", listHandler(g.ListOrganizations))
	mux.Handle("GET /organization/{id}", fetchHandler("id", g.FetchOrganization))
	mux.Handle("GET /location", listHandler(g.ListLocations))
	mux.Handle("GET /location/{id}", fetchHandler("id", g.FetchLocation))
	mux.Handle("GET /product", listHandler(g.ListProducts))
	mux.Handle("GET /product/{id}", fetchHandler("id", g.FetchProduct))
	mux.Handle("GET /schema", listHandler(g.ListSchemas))
	mux.Handle("GET /schema/{name}", fetchHandler("name", g.FetchSchema))
}

func fetchHandler[S any](param string, fetch func(context.Context, string, *string) (S, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fetch(r.Context(), r.PathValue(param), serviceID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func listHandler[S any](list func(context.Context, *string, model.Page) (gateway.List[S], error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := parsePage(r)
		if err != nil {
			writeError(w, err)
			return
		}
		v, err := list(r.Context(), serviceID(r), page)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// serviceID reads the service_id query parameter. An empty value counts as
// absent.
func serviceID(r *http.Request) *string {
	return model.ServiceID(r.URL.Query().Get("service_id"))
}

func parsePage(r *http.Request) (model.Page, error) {
	q := r.URL.Query()
	page := model.Page{Limit: model.DefaultLimit}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, gateway.BadRequest("offset must be a non-negative integer")
		}
		page.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > model.MaxLimit {
			return page, gateway.BadRequest("limit must be an integer between 1 and %d", model.MaxLimit)
		}
		page.Limit = n
	}
	return page, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	ge := gateway.AsError(err)
	writeJSON(w, ge.Status, ge)
}
