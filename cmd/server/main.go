// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/matchroom-gg/matchroom/internal/auth"
	"github.com/matchroom-gg/matchroom/internal/cache"
	"github.com/matchroom-gg/matchroom/internal/database"
	"github.com/matchroom-gg/matchroom/internal/engine/chessrules"
	"github.com/matchroom-gg/matchroom/internal/handlers"
	"github.com/matchroom-gg/matchroom/internal/middleware"
	"github.com/matchroom-gg/matchroom/internal/session"
)

func main() {
	auth.Init()
	database.ConnectDB()
	if err := cache.ConnectRedis(); err != nil {
		log.Printf("redis unavailable, event stream disabled: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	registry := session.NewRegistry(chessrules.New())
	srv := handlers.NewServer(registry, logger)

	// Reap settled sessions nobody is watching anymore.
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(func() {
			if n := registry.ReapIdle(); n > 0 {
				logger.Infof("reaped %d idle sessions", n)
			}
		}),
	)
	if err != nil {
		log.Fatalf("failed to schedule session reaper: %v", err)
	}
	scheduler.Start()
	defer scheduler.Shutdown()

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler)
	mux.HandleFunc("/user/claim", handlers.ClaimEphemeralHandler)

	logged := func(h http.HandlerFunc) http.Handler {
		return middleware.LogMiddleware(logger)(h)
	}

	// session endpoints
	mux.Handle("/session/create", logged(srv.CreateSessionHandler))
	mux.Handle("/session/list", logged(srv.ListSessionsHandler))
	mux.Handle("/session/ws/", logged(srv.SessionWSHandler(logger)))
	mux.Handle("/session/", logged(srv.GetSessionHandler))

	// matchmaking endpoints
	mux.Handle("/queue/join", logged(srv.QueueJoinHandler))
	mux.Handle("/queue/status", logged(srv.QueueStatusHandler))
	mux.Handle("/queue/leave", logged(srv.QueueLeaveHandler))

	// tournament endpoints
	mux.Handle("/tournament/create", logged(srv.CreateTournamentHandler))
	mux.Handle("/tournament/", logged(tournamentRouter(srv)))

	// league endpoints
	mux.Handle("/league/create", logged(srv.CreateLeagueHandler))
	mux.Handle("/league/", logged(leagueRouter(srv)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// tournamentRouter dispatches /tournament/{id}[/start|/advance|/launch].
func tournamentRouter(srv *handlers.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case hasSuffix(r, "/start"):
			srv.StartTournamentHandler(w, r)
		case hasSuffix(r, "/advance"):
			srv.AdvanceTournamentHandler(w, r)
		case hasSuffix(r, "/launch"):
			srv.LaunchTournamentRoundHandler(w, r)
		default:
			srv.GetTournamentHandler(w, r)
		}
	}
}

// leagueRouter dispatches /league/{id}[/start|/launch|/promote].
func leagueRouter(srv *handlers.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case hasSuffix(r, "/start"):
			srv.StartLeagueHandler(w, r)
		case hasSuffix(r, "/launch"):
			srv.LaunchLeagueRoundHandler(w, r)
		case hasSuffix(r, "/promote"):
			srv.PromoteLeagueHandler(w, r)
		default:
			srv.GetLeagueHandler(w, r)
		}
	}
}

func hasSuffix(r *http.Request, suffix string) bool {
	return strings.HasSuffix(r.URL.Path, suffix)
}
