package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ShopFront/internal/cart"
	"ShopFront/internal/catalog"
	"ShopFront/internal/query"
	"ShopFront/internal/storage"
	"ShopFront/pkg/kit"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Server is the local HTTP surface the presentation layer talks to.
// Catalog reads go through the query cache; cart operations hit the
// store directly.
type Server struct {
	Cache *query.Cache
	Cart  *cart.Store
	KV    storage.Store
	Log   *zap.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if err := s.KV.Ping(ctx); err != nil {
			s.Log.Warn("readyz failed", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/items", s.listItems)
	r.Post("/items/refresh", s.refreshItems)
	r.Get("/items/{id}", s.getItem)
	r.Post("/items/{id}/refresh", s.refreshItem)

	r.Get("/cart", s.getCart)
	r.Post("/cart/items", s.addToCart)
	r.Post("/cart/items/{id}/increase", s.increase)
	r.Post("/cart/items/{id}/decrease", s.decrease)
	r.Delete("/cart/items/{id}", s.removeFromCart)
	r.Delete("/cart", s.clearCart)

	return r
}

type cartView struct {
	Lines         []cart.Line `json:"lines"`
	TotalPrice    float64     `json:"total_price"`
	TotalQuantity int         `json:"total_quantity"`
}

func (s *Server) cartView() cartView {
	lines := s.Cart.Lines()
	v := cartView{Lines: lines}
	for _, l := range lines {
		v.TotalPrice += l.Item.Price * float64(l.Quantity)
		v.TotalQuantity += l.Quantity
	}
	return v
}

func listQueryFromRequest(r *http.Request) (query.Query, catalog.SortOrder) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	sortOrder := catalog.SortOrder(r.URL.Query().Get("sort"))
	switch sortOrder {
	case catalog.SortPriceAsc, catalog.SortPriceDesc:
	default:
		sortOrder = catalog.SortDefault
	}

	return query.ListQuery(offset, limit, r.URL.Query().Get("title")), sortOrder
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	q, sortOrder := listQueryFromRequest(r)
	s.respondList(w, r, q, sortOrder, false)
}

func (s *Server) refreshItems(w http.ResponseWriter, r *http.Request) {
	q, sortOrder := listQueryFromRequest(r)
	s.respondList(w, r, q, sortOrder, true)
}

func (s *Server) respondList(w http.ResponseWriter, r *http.Request, q query.Query, sortOrder catalog.SortOrder, refresh bool) {
	if refresh {
		s.Cache.Refetch(q)
	}

	res, err := s.Cache.Wait(r.Context(), q)
	if err != nil {
		kit.WriteError(w, r, http.StatusGatewayTimeout, "catalog timeout", nil)
		return
	}
	if res.State == query.StateError {
		s.writeCatalogError(w, r, res.Err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, catalog.SortItems(res.Items, sortOrder))
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	s.respondItem(w, r, false)
}

// refreshItem is the recovery path for a detail slot that settled with
// a transient error: it forces the cache back to the network.
func (s *Server) refreshItem(w http.ResponseWriter, r *http.Request) {
	s.respondItem(w, r, true)
}

func (s *Server) respondItem(w http.ResponseWriter, r *http.Request, refresh bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "bad item id", nil)
		return
	}

	q := query.ItemQuery(id)
	if refresh {
		s.Cache.Refetch(q)
	}

	res, err := s.Cache.Wait(r.Context(), q)
	if err != nil {
		kit.WriteError(w, r, http.StatusGatewayTimeout, "catalog timeout", nil)
		return
	}
	if res.State == query.StateError {
		s.writeCatalogError(w, r, res.Err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, res.Item)
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	kit.WriteJSON(w, http.StatusOK, s.cartView())
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int `json:"id"`
	}
	if err := kit.DecodeJSON(w, r, &req); err != nil || req.ID <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	res, err := s.Cache.Wait(r.Context(), query.ItemQuery(req.ID))
	if err != nil {
		kit.WriteError(w, r, http.StatusGatewayTimeout, "catalog timeout", nil)
		return
	}
	if res.State == query.StateError {
		s.writeCatalogError(w, r, res.Err)
		return
	}

	s.Cart.Add(res.Item)
	kit.WriteJSON(w, http.StatusCreated, s.cartView())
}

func (s *Server) increase(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.Cart.Increase)
}

func (s *Server) decrease(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.Cart.Decrease)
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.Cart.Remove)
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op func(int)) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		kit.WriteError(w, r, http.StatusBadRequest, "bad item id", nil)
		return
	}
	op(id)
	kit.WriteJSON(w, http.StatusOK, s.cartView())
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	s.Cart.Clear()
	kit.WriteJSON(w, http.StatusOK, s.cartView())
}

func (s *Server) writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "not found", nil)
	case errors.Is(err, catalog.ErrDecode):
		s.Log.Error("catalog payload rejected", zap.Error(err))
		kit.WriteError(w, r, http.StatusBadGateway, "bad catalog payload", nil)
	default:
		s.Log.Warn("catalog unavailable", zap.Error(err))
		kit.WriteError(w, r, http.StatusServiceUnavailable, "catalog unavailable", nil)
	}
}
