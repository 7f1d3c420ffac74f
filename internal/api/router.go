package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Fantasim/nftstake/internal/api/handlers"
	"github.com/Fantasim/nftstake/internal/api/middleware"
	"github.com/Fantasim/nftstake/internal/config"
	"github.com/Fantasim/nftstake/internal/db"
	"github.com/Fantasim/nftstake/internal/gateway"
	"github.com/Fantasim/nftstake/internal/migration"
	"github.com/Fantasim/nftstake/internal/position"
	"github.com/Fantasim/nftstake/internal/reconcile"
	"github.com/Fantasim/nftstake/internal/registry"
	"github.com/Fantasim/nftstake/internal/rewards"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Services bundles everything the router exposes.
type Services struct {
	DB         *db.DB
	Gateways   *gateway.Router
	Registry   *registry.Service
	Positions  *position.Manager
	Rewards    *rewards.Engine
	Reconciler *reconcile.Reconciler
	Migrator   *migration.Orchestrator
}

// NewRouter creates and configures the chi router with all middleware and routes.
func NewRouter(svc Services) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogging)
	r.Use(chimw.Timeout(config.APITimeout))

	slog.Info("router initialized", "middleware", []string{"requestLogging", "timeout"})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.HealthHandler(svc.Gateways, Version))
		r.Get("/chains", handlers.ChainsHandler(svc.Gateways))

		r.Route("/contracts", func(r chi.Router) {
			r.Post("/", handlers.CreateContract(svc.Registry))
			r.Get("/", handlers.ListContracts(svc.Registry))
			r.Get("/{id}", handlers.GetContract(svc.Registry))
			r.Put("/{id}", handlers.UpdateContract(svc.Registry))
			r.Delete("/{id}", handlers.DeactivateContract(svc.Registry))
			r.Post("/{id}/validate", handlers.ValidateContract(svc.Registry))
			r.Get("/{id}/projection", handlers.ProjectRewards(svc.Registry))
		})

		r.Route("/positions", func(r chi.Router) {
			r.Post("/", handlers.Stake(svc.Positions))
			r.Get("/{id}", handlers.GetPosition(svc.Positions))
			r.Post("/{id}/unstake", handlers.Unstake(svc.Positions))
			r.Get("/{id}/rewards", handlers.PendingRewards(svc.Rewards))
		})

		r.Route("/users/{userId}", func(r chi.Router) {
			r.Get("/positions", handlers.ListUserPositions(svc.Positions))
			r.Post("/wallets", handlers.RegisterWallet(svc.DB))
			r.Get("/wallets", handlers.ListWallets(svc.DB))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/positions/{id}/unlock", handlers.AdminUnlock(svc.Positions))
			r.Post("/positions/{id}/emergency-withdraw", handlers.EmergencyWithdraw(svc.Positions))
			r.Post("/chains/{chain}/pause", handlers.PauseChain(svc.Positions))
			r.Post("/chains/{chain}/unpause", handlers.UnpauseChain(svc.Positions))
			r.Post("/rewards/distribute", handlers.DistributeRewards(svc.Rewards))
			r.Post("/reconcile", handlers.RunReconciliation(svc.Reconciler))
			r.Post("/migrate", handlers.RunMigration(svc.Migrator))
		})
	})

	return r
}
