package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	inventory "pharmacyinventory"
	"pharmacyinventory/internal/config"
	"pharmacyinventory/internal/obs"
)

type App struct {
	Cfg   config.Config
	Store inventory.Store
}

func NewApp(cfg config.Config, st inventory.Store) *App {
	return &App{Cfg: cfg, Store: st}
}

// newLedger returns a request-scoped ledger that logs every movement.
func (a *App) newLedger(warehouseID string) *inventory.Ledger {
	if warehouseID == "" {
		warehouseID = a.Cfg.WarehouseID
	}
	l := inventory.NewLedger(warehouseID)
	l.AddHook(func(mv inventory.Movement, _ *inventory.Ledger) error {
		obs.Logger.Info("stock_movement",
			"movement_id", mv.ID,
			"warehouse_id", mv.WarehouseID,
			"type", mv.Type,
			"reference", mv.Reference,
			"products", mv.ProductIDs(),
		)
		return nil
	})
	return l
}

func NewRouter(a *App) http.Handler {
	r := chi.NewRouter()
	r.Use(RecoverPanic())
	r.Use(RequestLogger())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.Cfg.CORSOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Route("/products", func(r chi.Router) {
		r.Get("/", a.listProducts)
		r.Post("/derive-prices", a.derivePrices)
		r.Get("/{id}", a.getProduct)
		r.Put("/{id}", a.upsertProduct)
		r.Delete("/{id}", a.deleteProduct)
		r.Get("/{id}/breakdown", a.breakdown)
		r.Get("/{id}/movements", a.movements)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", a.listOrders)
		r.Post("/", a.createOrder)
		r.Get("/{id}", a.getOrder)
		r.Post("/{id}/refunds", a.createRefund)
	})
	r.Post("/imports", a.importStock)
	r.Post("/transfers", a.transferStock)
	r.Post("/audits", a.submitAudit)
	r.Post("/sync", a.sync)
	return r
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func RecoverPanic() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					obs.Logger.Error("panic_recovered", "path", r.URL.Path, "panic", rec)
					writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			obs.Logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if a.Cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.Cfg.MaxBodyBytes)
	}
	if err := render.DecodeJSON(r.Body, v); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}
