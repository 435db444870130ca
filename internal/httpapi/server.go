package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	"github.com/kudos-hq/kudos-server/internal/domain/gamification"
	"github.com/kudos-hq/kudos-server/internal/domain/group"
	"github.com/kudos-hq/kudos-server/internal/domain/identity"
	"github.com/kudos-hq/kudos-server/internal/domain/ledger"
	"github.com/kudos-hq/kudos-server/internal/domain/notification"
	"github.com/kudos-hq/kudos-server/internal/domain/report"
	"github.com/kudos-hq/kudos-server/internal/domain/task"
	"github.com/kudos-hq/kudos-server/internal/domain/team"
	"github.com/kudos-hq/kudos-server/internal/domain/token"
	"github.com/kudos-hq/kudos-server/internal/logging"
	"github.com/kudos-hq/kudos-server/internal/metrics"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
)

// Server wires every domain service into gorilla/mux routes, mirroring
// the way the teacher's internal/marble.Service holds a *mux.Router
// behind a Router() accessor rather than exposing http.Handler pieces
// separately.
type Server struct {
	router *mux.Router
	log    *logging.Logger
	db     *database.DB

	signer       *token.Signer
	refreshTok   *token.RefreshService
	oneTimeTok   *token.OneTimeService
	identitySvc  *identity.Service
	groupSvc     *group.Service
	teamSvc      *team.Service
	taskSvc      *task.Service
	ledgerSvc    *ledger.Service
	gamifySvc    *gamification.Service
	notifySvc    *notification.Service
	reportSvc    *report.Service
	authzResolver *authz.Resolver
}

// Deps bundles every collaborator Server needs — constructed once at
// process bootstrap in cmd/kudos-server.
type Deps struct {
	Log          *logging.Logger
	DB           *database.DB
	Signer       *token.Signer
	RefreshTok   *token.RefreshService
	OneTimeTok   *token.OneTimeService
	Identity     *identity.Service
	Group        *group.Service
	Team         *team.Service
	Task         *task.Service
	Ledger       *ledger.Service
	Gamification *gamification.Service
	Notification *notification.Service
	Report       *report.Service
	Authz        *authz.Resolver
}

func NewServer(d Deps) *Server {
	s := &Server{
		log:           d.Log,
		db:            d.DB,
		signer:        d.Signer,
		refreshTok:    d.RefreshTok,
		oneTimeTok:    d.OneTimeTok,
		identitySvc:   d.Identity,
		groupSvc:      d.Group,
		teamSvc:       d.Team,
		taskSvc:       d.Task,
		ledgerSvc:     d.Ledger,
		gamifySvc:     d.Gamification,
		notifySvc:     d.Notification,
		reportSvc:     d.Report,
		authzResolver: d.Authz,
	}
	s.router = s.buildRouter()
	return s
}

// Router exposes the underlying handler for http.ListenAndServe.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.loggingMiddleware, s.authMiddleware)

	r.HandleFunc("/metrics", metrics.Handler().ServeHTTP).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.Handle("/register", s.route("auth.register", s.handleRegister)).Methods(http.MethodPost)
	auth.Handle("/verify-email", s.route("auth.verify_email", s.handleVerifyEmail)).Methods(http.MethodPost)
	auth.Handle("/login", s.route("auth.login", s.handleLogin)).Methods(http.MethodPost)
	auth.Handle("/refresh", s.route("auth.refresh", s.handleRefresh)).Methods(http.MethodPost)
	auth.Handle("/logout", s.route("auth.logout", s.handleLogout)).Methods(http.MethodPost)
	auth.Handle("/password/reset-request", s.route("auth.reset_request", s.handlePasswordResetRequest)).Methods(http.MethodPost)
	auth.Handle("/password/reset-confirm", s.route("auth.reset_confirm", s.handlePasswordResetConfirm)).Methods(http.MethodPost)
	auth.Handle("/password/change", s.route("auth.change_password", s.handleChangePassword)).Methods(http.MethodPost)

	api.Handle("/me", s.route("users.me", s.handleMe)).Methods(http.MethodGet)

	groups := api.PathPrefix("/groups").Subrouter()
	groups.Handle("", s.route("groups.create", s.handleCreateGroup)).Methods(http.MethodPost)
	groups.Handle("/{groupID}", s.route("groups.get", s.handleGetGroup)).Methods(http.MethodGet)
	groups.Handle("/{groupID}/members", s.route("groups.add_member", s.handleAddGroupMember)).Methods(http.MethodPost)
	groups.Handle("/{groupID}/members/{userID}", s.route("groups.remove_member", s.handleRemoveGroupMember)).Methods(http.MethodDelete)
	groups.Handle("/{groupID}/invitations", s.route("groups.invite", s.handleInviteToGroup)).Methods(http.MethodPost)
	groups.Handle("/invitations/accept", s.route("groups.accept_invitation", s.handleAcceptInvitation)).Methods(http.MethodPost)

	teams := api.PathPrefix("/teams").Subrouter()
	teams.Handle("", s.route("teams.create", s.handleCreateTeam)).Methods(http.MethodPost)
	teams.Handle("/{teamID}", s.route("teams.get", s.handleGetTeam)).Methods(http.MethodGet)
	teams.Handle("/{teamID}/members", s.route("teams.add_member", s.handleAddTeamMember)).Methods(http.MethodPost)
	teams.Handle("/{teamID}/members/{userID}", s.route("teams.remove_member", s.handleRemoveTeamMember)).Methods(http.MethodDelete)
	teams.Handle("/{teamID}/leader", s.route("teams.reassign_leader", s.handleReassignTeamLeader)).Methods(http.MethodPut)

	tasks := api.PathPrefix("/tasks").Subrouter()
	tasks.Handle("", s.route("tasks.create", s.handleCreateTask)).Methods(http.MethodPost)
	tasks.Handle("/{taskID}", s.route("tasks.get", s.handleGetTask)).Methods(http.MethodGet)
	tasks.Handle("/{taskID}/dependencies", s.route("tasks.add_dependency", s.handleAddDependency)).Methods(http.MethodPost)
	tasks.Handle("/{taskID}/assignments", s.route("tasks.assign", s.handleAssignTask)).Methods(http.MethodPost)
	tasks.Handle("/{taskID}/start", s.route("tasks.start", s.handleStartTask)).Methods(http.MethodPost)
	tasks.Handle("/{taskID}/review", s.route("tasks.review", s.handleReviewTask)).Methods(http.MethodPost)
	api.Handle("/completions/{completionID}/submit", s.route("completions.submit", s.handleSubmitForReview)).Methods(http.MethodPost)
	api.Handle("/completions/{completionID}/approve", s.route("completions.approve", s.handleApproveCompletion)).Methods(http.MethodPost)
	api.Handle("/completions/{completionID}/reject", s.route("completions.reject", s.handleRejectCompletion)).Methods(http.MethodPost)
	api.Handle("/completions/{completionID}/cancel", s.route("completions.cancel", s.handleCancelCompletion)).Methods(http.MethodPost)

	ledgerRoutes := api.PathPrefix("/ledger").Subrouter()
	ledgerRoutes.Handle("/award", s.route("ledger.award", s.handleLedgerAward)).Methods(http.MethodPost)
	ledgerRoutes.Handle("/penalty", s.route("ledger.penalty", s.handleLedgerPenalty)).Methods(http.MethodPost)
	ledgerRoutes.Handle("/adjustment", s.route("ledger.adjustment", s.handleLedgerAdjustment)).Methods(http.MethodPost)
	ledgerRoutes.Handle("/purchase", s.route("ledger.purchase", s.handleLedgerPurchase)).Methods(http.MethodPost)
	ledgerRoutes.Handle("/transfer", s.route("ledger.transfer", s.handleLedgerTransfer)).Methods(http.MethodPost)

	gamify := api.PathPrefix("/gamification").Subrouter()
	gamify.Handle("/levels/evaluate", s.route("gamification.evaluate_level", s.handleEvaluateLevel)).Methods(http.MethodPost)
	gamify.Handle("/badges/evaluate", s.route("gamification.evaluate_badges", s.handleEvaluateBadges)).Methods(http.MethodPost)

	notify := api.PathPrefix("/notifications").Subrouter()
	notify.Handle("", s.route("notifications.enqueue", s.handleEnqueueNotification)).Methods(http.MethodPost)
	notify.Handle("/{notificationID}/read", s.route("notifications.mark_read", s.handleMarkNotificationRead)).Methods(http.MethodPost)

	reports := api.PathPrefix("/reports").Subrouter()
	reports.Handle("", s.route("reports.submit", s.handleSubmitReport)).Methods(http.MethodPost)
	reports.Handle("/{reportID}", s.route("reports.get", s.handleGetReport)).Methods(http.MethodGet)

	return r
}

// route wraps a handler with per-route metrics instrumentation, the
// label distinguishing each endpoint in the Prometheus series.
func (s *Server) route(label string, h http.HandlerFunc) http.Handler {
	return s.metricsMiddleware(label)(h)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
