package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/pipeline"
	"github.com/iabetor/narrator/internal/synth"
)

func main() {
	configPath := flag.String("config", "configs/narrator.yaml", "配置文件路径")
	voiceID := flag.String("voice", "", "音色 ID（为空使用默认音色）")
	speed := flag.Float64("speed", 1.0, "语速 0.5-2.0")
	format := flag.String("format", "raw", "输出格式 raw/compressed")
	tier := flag.String("tier", "standard", "档位 standard/heavy")
	play := flag.Bool("play", false, "合成后直接播放")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.LoggerConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	switch args[0] {
	case "say":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: narrate say <文本>")
			os.Exit(1)
		}
		text := strings.Join(args[1:], " ")
		cmdSay(ctx, p, synth.Request{Text: text, Voice: *voiceID, Speed: *speed, Format: *format, Tier: *tier}, *play)
	case "file":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: narrate file <路径|->")
			os.Exit(1)
		}
		text, err := readText(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "读取文本失败: %v\n", err)
			os.Exit(1)
		}
		cmdSay(ctx, p, synth.Request{Text: text, Voice: *voiceID, Speed: *speed, Format: *format, Tier: *tier}, *play)
	case "voices":
		cmdVoices(p)
	case "preview":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: narrate preview <音色>")
			os.Exit(1)
		}
		rec, err := p.Service().Preview(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "生成试听失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(rec.Path)
	case "rm":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: narrate rm <文件名>")
			os.Exit(1)
		}
		if err := p.Store().Delete(ctx, args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "删除失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("已删除 %s\n", args[1])
	case "clean":
		stats := p.Store().Sweep(time.Now())
		fmt.Printf("扫描 %d 个文件，删除 %d 个，失败 %d 个\n", stats.Scanned, stats.Removed, stats.Failed)
	case "status":
		data, _ := json.MarshalIndent(p.Status(), "", "  ")
		fmt.Println(string(data))
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `用法: narrate [选项] <命令> [参数]

命令:
  say <文本>        合成一段文本
  file <路径|->     合成文件内容（- 表示标准输入）
  voices            列出可用音色
  preview <音色>    生成或读取音色试听
  rm <文件名>       删除输出文件
  clean             立即清理过期文件
  status            显示硬件检测结论

选项:`)
	flag.PrintDefaults()
}

func readText(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

func cmdSay(ctx context.Context, p *pipeline.Pipeline, req synth.Request, play bool) {
	start := time.Now()
	resp, err := p.Service().Synthesize(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "合成失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s (%.2fs, %d 段, 引擎 %s, 耗时 %s)\n", resp.Raw.Path, resp.Duration, resp.Chunks,
		strings.Join(resp.Engines, "+"), time.Since(start).Round(time.Millisecond))
	if resp.Compressed != nil {
		fmt.Println(resp.Compressed.Path)
	}
	if len(resp.Skipped) > 0 {
		fmt.Fprintf(os.Stderr, "警告: 跳过了 %d 个失败分段\n", len(resp.Skipped))
	}

	if play {
		if err := playFile(ctx, resp.Raw.Path); err != nil {
			fmt.Fprintf(os.Stderr, "播放失败: %v\n", err)
			os.Exit(1)
		}
	}
}

func playFile(ctx context.Context, path string) error {
	samples, rate, err := audio.ReadWAV(path)
	if err != nil {
		return err
	}
	player, err := audio.NewPlayer()
	if err != nil {
		return err
	}
	defer player.Close()
	return player.Play(ctx, samples, rate)
}

func cmdVoices(p *pipeline.Pipeline) {
	voices := p.Service().Voices()
	fmt.Printf("%-14s %-10s %-7s %-9s %s\n", "ID", "名称", "性别", "口音", "风格")
	for _, id := range voices.IDs() {
		v, _ := voices.Get(id)
		mark := ""
		if id == voices.Default() {
			mark = " *"
		}
		fmt.Printf("%-14s %-10s %-7s %-9s %s%s\n", v.ID, v.Name, v.Gender, v.Accent, v.Style, mark)
	}
}
