package main

import (
	"context"
	"github.com/jinzhu/configor"
	"log"
	"matchbroker/server"
	"os"
	"os/signal"
	"syscall"
)

func main() {

	config := &server.Config{}
	if err := configor.Load(config, "config.yml"); err != nil {
		log.Fatal("Error while reading configurations from config.yml ", err)
	}

	logger := server.NewLogger(config)
	defer logger.Sync()

	db := server.ConnectDB(config, logger)
	redis := server.ConnectRedis(config, logger)

	stats := server.NewStatsHolder()
	userStore := server.NewMongoUserStore(db, config)
	clientHolder := server.NewClientHolder(config, logger)
	notification := server.NewNotificationService(db, config, logger)
	lobbyHolder := server.NewLobbyHolder(clientHolder, notification, stats, logger)
	matchmaker := server.NewMatchmaker(config, logger, stats, clientHolder, userStore, lobbyHolder)
	presence := server.NewPresence(redis, logger)

	ratingEngine, err := server.NewRatingEngine(userStore, clientHolder, logger)
	if err != nil {
		logger.Fatalw("Invalid rating configuration", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server.NewResultConsumer(ctx, config, ratingEngine, redis, logger)

	pipeline := server.NewPipeline(config, logger, clientHolder, matchmaker, lobbyHolder, userStore, presence)

	s := server.StartServer(ctx, config, logger, clientHolder, lobbyHolder, matchmaker, pipeline, presence, stats)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Startup was completed")

	<-c

	s.Stop()

}
