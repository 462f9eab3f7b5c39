package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/iabetor/narrator/internal/capability"
	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（为空则使用默认检测命令）")
	verbose := flag.Bool("v", false, "输出调试日志")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(1)
		}
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Level: level}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	prober, err := capability.NewProber(cfg.Probe)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化硬件检测失败: %v\n", err)
		os.Exit(1)
	}
	status := prober.Analyze(context.Background())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(status); err != nil {
		fmt.Fprintf(os.Stderr, "输出失败: %v\n", err)
		os.Exit(1)
	}
	// 退出码: 0 READY, 2 DRIVER_MISSING, 3 CPU_ONLY
	switch status.Tier {
	case capability.TierDriverMissing:
		os.Exit(2)
	case capability.TierCPUOnly:
		os.Exit(3)
	}
}
