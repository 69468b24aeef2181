// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/rokuhara/jinrou/internal/auth"
	"github.com/rokuhara/jinrou/internal/database"
	"github.com/rokuhara/jinrou/internal/engine"
	"github.com/rokuhara/jinrou/internal/handlers"
	"github.com/rokuhara/jinrou/internal/middleware"
	"github.com/rokuhara/jinrou/internal/notify"
)

func main() {
	auth.Init()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	var rooms engine.RoomStore
	var players engine.PlayerStore
	if os.Getenv("PG_HOST") != "" {
		database.ConnectDB()
		if err := database.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("schema init failed: %v", err)
		}
		rooms = database.NewRoomStore()
		players = database.NewPlayerStore()
	} else {
		logger.Warn("PG_HOST not set, using in-memory stores")
		rooms = engine.NewMemoryRoomStore()
		players = engine.NewMemoryPlayerStore()
	}

	broadcaster := notify.NewBroadcaster()
	notifier := notify.Multi{broadcaster}
	if os.Getenv("REDIS_ADDR") != "" {
		queue, err := notify.ConnectQueue()
		if err != nil {
			log.Fatalf("redis init failed: %v", err)
		}
		defer queue.Close()
		notifier = append(notifier, queue)
	} else {
		logger.Warn("REDIS_ADDR not set, events stay in-process")
	}

	eng := engine.New(rooms, players, notifier, engine.DefaultTimings())
	srv := handlers.NewAPIServer(eng, logger)

	logged := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()

	mux.Handle("/session", logged(http.HandlerFunc(srv.SessionHandler)))
	mux.Handle("/register", logged(http.HandlerFunc(srv.RegisterHandler)))

	// room endpoints
	mux.Handle("/room/create", logged(http.HandlerFunc(srv.CreateRoomHandler)))
	mux.Handle("/room/join", logged(http.HandlerFunc(srv.JoinRoomHandler)))
	mux.Handle("/room/leave", logged(http.HandlerFunc(srv.LeaveRoomHandler)))
	mux.Handle("/room/delete", logged(http.HandlerFunc(srv.DeleteRoomHandler)))
	mux.Handle("/room/config", logged(http.HandlerFunc(srv.ConfigHandler)))
	mux.Handle("/room/start", logged(http.HandlerFunc(srv.StartHandler)))

	// in-game endpoints
	mux.Handle("/vote", logged(http.HandlerFunc(srv.VoteHandler)))
	mux.Handle("/night", logged(http.HandlerFunc(srv.NightHandler)))
	mux.Handle("/skill", logged(http.HandlerFunc(srv.SkillHandler)))
	mux.Handle("/role", logged(http.HandlerFunc(srv.RoleHandler)))
	mux.Handle("/chat/policy", logged(http.HandlerFunc(srv.ChatPolicyHandler)))

	// event feed ws
	mux.Handle("/feed/ws/", logged(http.HandlerFunc(
		handlers.FeedWSHandler(logger, broadcaster),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
