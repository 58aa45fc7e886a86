package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 20
	maxBackups = 5
	maxAgeDays = 14
)

// Setup 配置标准库 log 的输出：始终写 stdout；指定 logPath 时同时写入按大小轮转的日志文件。
// 返回的 io.Closer 用于退出前关闭日志文件
func Setup(prefix, logPath string) (io.Closer, error) {
	log.SetFlags(log.LstdFlags)
	if prefix != "" {
		log.SetPrefix("[" + prefix + "] ")
	}

	if logPath == "" {
		log.SetOutput(os.Stdout)
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator, nil
}
