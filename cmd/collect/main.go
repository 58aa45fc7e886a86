package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/NewsDigest/internal/app"
	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/logger"
)

// 一个仅执行一轮的命令行入口：采集、补全正文、输出摘要后退出
func main() {
	// 先初始化日志，配置加载过程中的日志同样写入日志文件
	closer, err := logger.Setup("collect", config.LogFile())
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

	// 中断时已写入的缓存记录保持完整，未处理的条目直接放弃
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := a.Pipeline.Run(ctx)
	if err != nil {
		log.Printf("run finished with errors: %v", err)
	}

	for _, d := range rep.Digest {
		fmt.Printf("== %s (%d) ==\n%s\n\n%s\n\n", d.Topic, d.Articles, d.Summary, d.Insights)
	}
	if rep.Digest == nil {
		for _, art := range rep.Articles {
			fmt.Printf("[%s] %s\n  %s\n", art.Topic, art.Title, art.Link)
		}
	}
}
