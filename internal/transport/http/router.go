package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/application/dispatch"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/application/notification"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/application/settings"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/application/verification"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/config"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/pkg/retry"
	"github.com/jiahaoliu666/aws-blog-sub002/internal/transport/http/handler"
	appmiddleware "github.com/jiahaoliu666/aws-blog-sub002/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. The dispatch service
// is returned alongside so main can hand it to the sweep scheduler.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, dispatch.Service) {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10, applied to the verification endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	retryCfg := retry.Config{
		Attempts: cfg.DispatchRetries,
		Delay:    cfg.DispatchRetryWait,
		Name:     "send notification",
	}

	verifySvc := verification.NewService(verification.ServiceDeps{
		Verifications: deps.VerificationRepo,
		Cache:         deps.Cache,
		Users:         deps.UserRepo,
		Push:          deps.PushSender,
		Retry:         retryCfg,
		Policy: verification.Policy{
			CodeTTL:     cfg.VerificationTTL,
			MaxAttempts: cfg.VerificationMaxAttempts,
			CodeLength:  cfg.VerificationCodeLength,
		},
	})
	dispatchSvc := dispatch.NewService(dispatch.ServiceDeps{
		Users:   deps.UserRepo,
		Queue:   deps.FailedRepo,
		Feed:    deps.NotificationRepo,
		Mailer:  deps.Mailer,
		Batch:   deps.BatchMailer,
		Discord: deps.DiscordSender,
		Push:    deps.PushSender,
		Archive: deps.Archive,
		Limiter: deps.SendLimiter,
		Config: dispatch.Config{
			Workers:            cfg.DispatchWorkers,
			Retry:              retryCfg,
			FailedRetryCeiling: cfg.FailedRetryCeiling,
			SendTimeout:        cfg.SendTimeout,
		},
	})
	settingsSvc := settings.NewService(deps.UserRepo, deps.Cache)
	notifSvc := notification.NewService(deps.NotificationRepo)

	healthH := handler.NewHealthHandler()
	verifyH := handler.NewVerificationHandler(verifySvc)
	broadcastH := handler.NewBroadcastHandler(dispatchSvc)
	settingsH := handler.NewSettingsHandler(settingsSvc)
	notifH := handler.NewNotificationHandler(notifSvc)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.With(sensitiveRL.Limit).Post("/verification/request", verifyH.Request)
			r.With(sensitiveRL.Limit).Post("/verification/confirm", verifyH.Confirm)

			r.Get("/users/settings", settingsH.Get)
			r.Put("/users/settings", settingsH.Update)

			r.Get("/notifications", notifH.ListUnread)
			r.Put("/notifications/{id}", notifH.MarkAsRead)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Post("/articles/broadcast", broadcastH.Broadcast)
				r.Post("/notifications/failed/process", broadcastH.ProcessFailed)
			})
		})
	})

	return r, dispatchSvc
}
