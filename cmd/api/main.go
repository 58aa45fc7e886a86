package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/NewsDigest/internal/api"
	"github.com/LJTian/NewsDigest/internal/app"
	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/logger"
	"github.com/LJTian/NewsDigest/internal/scheduler"
)

func main() {
	// 先初始化日志，配置加载过程中的日志同样写入日志文件
	closer, err := logger.Setup("api", config.LogFile())
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer closer.Close()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	a, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("init pipeline failed: %v", err)
	}
	defer a.Close()

	s, err := scheduler.New(cfg.CronSpec, a.Pipeline)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()
	defer s.Stop()

	// API
	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	var lister api.ArticleLister
	if a.Store != nil {
		lister = a.Store
	} else {
		log.Println("warn: POSTGRES_DSN not set, article routes disabled")
	}
	api.NewServer(lister, s).RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}
