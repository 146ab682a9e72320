package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/atelier-backend/api/controllers"
	"github.com/angelmondragon/atelier-backend/api/middleware"
	"github.com/angelmondragon/atelier-backend/internal/graph"
	"github.com/angelmondragon/atelier-backend/internal/media"
	"github.com/angelmondragon/atelier-backend/internal/messages"
	"github.com/angelmondragon/atelier-backend/internal/moderation"
	"github.com/angelmondragon/atelier-backend/internal/posts"
	"github.com/angelmondragon/atelier-backend/internal/users"
	"github.com/angelmondragon/atelier-backend/pkg/config"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	"github.com/angelmondragon/atelier-backend/pkg/redis"
)

// Deps carries everything the HTTP surface is wired to. Redis and Metrics are
// optional; without Redis the idempotency and rate limit layers are skipped.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	Redis      *redis.Client
	Ready      map[string]controllers.Pinger
	Metrics    http.Handler
	Users      users.Service
	Graph      graph.Service
	Posts      posts.Service
	Messages   messages.Service
	Media      media.Service
	Moderation moderation.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	writePolicy := middleware.NewRateLimitPolicy("social", cfg.Social.RateLimitWindow, cfg.Social.RateLimitPerUser)
	guardWrites := func(r chi.Router) {
		if deps.Redis == nil {
			return
		}
		r.Use(middleware.Idempotency(deps.Redis, cfg.Social.IdempotencyTTL, logg))
		r.Use(middleware.RateLimit(writePolicy, deps.Redis, logg))
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Get("/api/public/ping", controllers.Ping("public"))

	r.Route("/api/v1", func(r chi.Router) {
		// reads that anonymous viewers may also perform
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.EnsureIdentity(deps.Users, logg))

			r.Get("/profiles/{uid}", controllers.GetProfile(deps.Users, logg))
			r.Get("/posts/{postId}", controllers.GetPost(deps.Posts, logg))
			r.Get("/posts/{postId}/comments", controllers.ListComments(deps.Posts, logg))
			r.Get("/media/{mediaId}", controllers.MediaFetch(deps.Media, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.EnsureIdentity(deps.Users, logg))
			guardWrites(r)

			r.Get("/ping", controllers.Ping("member"))

			r.Route("/me", func(r chi.Router) {
				r.Get("/", controllers.Me(deps.Users, logg))
				r.Post("/role", controllers.SetInitialRole(deps.Users, logg))
				r.Patch("/profile", controllers.UpdateProfile(deps.Users, logg))
				r.Post("/verification", controllers.RequestCreatorVerification(deps.Users, logg))
				r.Get("/blocked", controllers.ListBlocked(deps.Graph, logg))
				r.Get("/follow-requests", controllers.ListPendingRequests(deps.Graph, logg))
				r.Get("/followers", controllers.ListFollowers(deps.Graph, logg))
				r.Get("/media", controllers.MediaList(deps.Media, logg))
			})

			r.Route("/users/{uid}", func(r chi.Router) {
				r.Post("/block", controllers.BlockUser(deps.Graph, logg))
				r.Delete("/block", controllers.UnblockUser(deps.Graph, logg))
				r.Post("/follow", controllers.RequestFollow(deps.Graph, logg))
				r.Delete("/follow", controllers.Unfollow(deps.Graph, logg))
				r.Get("/messages", controllers.ListThread(deps.Messages, logg))
			})
			r.Post("/follow-requests/{fromUid}/decision", controllers.DecideFollowRequest(deps.Graph, logg))

			r.Post("/posts", controllers.CreatePost(deps.Posts, logg))
			r.Delete("/posts/{postId}", controllers.DeletePost(deps.Posts, logg))
			r.Post("/posts/{postId}/comments", controllers.CreateComment(deps.Posts, logg))
			r.Put("/posts/{postId}/like", controllers.SetLike(deps.Posts, true, logg))
			r.Delete("/posts/{postId}/like", controllers.SetLike(deps.Posts, false, logg))
			r.Delete("/comments/{commentId}", controllers.DeleteComment(deps.Posts, logg))

			r.Post("/messages", controllers.SendMessage(deps.Messages, logg))
			r.Post("/media/presign", controllers.MediaPresign(deps.Media, logg))

			r.Post("/reports", controllers.CreateReport(deps.Moderation, logg))
			r.Post("/disputes", controllers.OpenDispute(deps.Moderation, logg))
			r.Get("/disputes/{disputeId}", controllers.GetDispute(deps.Moderation, logg))

			r.Post("/rpc/{operation}", controllers.RPC(controllers.RPCServices{
				Graph: deps.Graph,
				Posts: deps.Posts,
				Users: deps.Users,
			}, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.EnsureIdentity(deps.Users, logg))
		r.Use(middleware.RequireRole("admin", logg))
		guardWrites(r)

		r.Get("/ping", controllers.Ping("admin"))
		r.Post("/users/{uid}/role", controllers.AdminAssignRole(deps.Users, logg))
		r.Get("/verifications", controllers.AdminListVerifications(deps.Users, logg))
		r.Post("/verifications/{verificationId}/decision", controllers.AdminDecideVerification(deps.Users, logg))
		r.Get("/reports", controllers.AdminListReports(deps.Moderation, logg))
		r.Post("/reports/{reportId}/resolve", controllers.AdminResolveReport(deps.Moderation, logg))
		r.Post("/reports/{reportId}/dismiss", controllers.AdminDismissReport(deps.Moderation, logg))
		r.Post("/disputes/{disputeId}/review", controllers.AdminStartDisputeReview(deps.Moderation, logg))
		r.Post("/disputes/{disputeId}/resolve", controllers.AdminResolveDispute(deps.Moderation, logg))
	})

	return r
}
