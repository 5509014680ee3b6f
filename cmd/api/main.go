package main

import (
	"context"
	"fmt"
	"log"

	"portfolio-hub-api/core"
)

func main() {
	cfg := core.Load()
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	objectStore, err := core.NewMinioStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect object storage: %v", err)
	}

	userRepo := core.NewPgUserRepository(db)

	if err := core.BootstrapRoot(ctx, userRepo, cfg); err != nil {
		log.Fatalf("bootstrap root failed: %v", err)
	}

	router := core.NewRouter(core.RouterDeps{
		Cfg:      cfg,
		Issuer:   core.NewTokenIssuer(cfg),
		Cache:    core.NewRedisCache(redisClient),
		TTLs:     core.TTLsFromConfig(cfg),
		Users:    userRepo,
		Blogs:    core.NewPgBlogRepository(db),
		Projects: core.NewPgProjectRepository(db),
		Skills:   core.NewPgSkillRepository(db),
		Techs:    core.NewPgTechRepository(db),
		OTP:      core.NewOTPStore(redisClient),
		Mailer:   core.NewSMTPMailer(cfg),
		Store:    objectStore,
		Status:   core.NewStatusService(redisClient, db.Ping),
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
