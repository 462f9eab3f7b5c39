package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iabetor/narrator/internal/logger"
)

// Config 是 narrator 的顶层配置结构。
// 加载后只读，通过构造函数显式传递给各组件。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Synth     SynthConfig     `yaml:"synth"`
	Primary   PrimaryConfig   `yaml:"primary"`
	Secondary SecondaryConfig `yaml:"secondary"`
	Probe     ProbeConfig     `yaml:"probe"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig HTTP 服务配置。
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// LoggerConfig 转换为 logger.Init 使用的配置。
func (l LogConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      l.Level,
		File:       l.File,
		MaxSize:    l.MaxSize,
		MaxBackups: l.MaxBackups,
		MaxAge:     l.MaxAge,
	}
}

// SynthConfig 合成流程配置。
type SynthConfig struct {
	// MaxChars 每个文本分段的最大字符数。
	MaxChars int `yaml:"max_chars"`
	// MaxTextChars 单次请求文本的最大字符数。
	MaxTextChars int `yaml:"max_text_chars"`
	// SilenceMs 相邻分段之间插入的静音时长（毫秒）。
	// 0 表示分段之间不插入静音，未配置时为 250。
	SilenceMs  int    `yaml:"silence_ms"`
	SampleRate int    `yaml:"sample_rate"`
	// SkipFailedChunks 为 true 时跳过合成失败的分段（仅记录警告），
	// 否则任意分段失败都会导致整个请求失败。
	SkipFailedChunks bool   `yaml:"skip_failed_chunks"`
	DefaultVoice     string `yaml:"default_voice"`
	// Voices 按 ID 覆盖内置音色或新增音色。
	Voices map[string]VoiceConfig `yaml:"voices"`
}

// VoiceConfig 单个音色的覆盖项，空字段保留内置值。
type VoiceConfig struct {
	Name   string `yaml:"name"`
	Gender string `yaml:"gender"`
	Accent string `yaml:"accent"`
	Style  string `yaml:"style"`
	Lang   string `yaml:"lang"`
	// SpeakerID 模型中的说话人编号，新增音色必须指定。
	SpeakerID *int `yaml:"speaker_id"`
}

// PrimaryConfig 常驻轻量后端配置。
type PrimaryConfig struct {
	Engine string       `yaml:"engine"` // kokoro / edge / piper
	Kokoro KokoroConfig `yaml:"kokoro"`
	Edge   EdgeConfig   `yaml:"edge"`
	Piper  PiperConfig  `yaml:"piper"`
}

// KokoroConfig sherpa-onnx Kokoro 模型配置。
type KokoroConfig struct {
	ModelDir   string `yaml:"model_dir"`
	NumThreads int    `yaml:"num_threads"`
}

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	// Voices 将内置音色 ID 映射到 Edge 音色名，未配置的音色使用 DefaultVoice。
	Voices       map[string]string `yaml:"voices"`
	DefaultVoice string            `yaml:"default_voice"`
}

// PiperConfig Piper TTS 配置。
type PiperConfig struct {
	Binary    string `yaml:"binary"`
	ModelPath string `yaml:"model_path"`
}

// SecondaryConfig 按需加载的重型后端配置。
type SecondaryConfig struct {
	Engine string `yaml:"engine"` // sherpa / exec / 空（禁用）
	// ModelDir sherpa 重型模型目录。
	ModelDir   string `yaml:"model_dir"`
	Provider   string `yaml:"provider"`
	NumThreads int    `yaml:"num_threads"`
	// Command exec 引擎的工作进程命令行。
	Command string `yaml:"command"`
	// RetryAfter 加载失败后再次尝试加载前的冷却时间，0 表示不再重试。
	RetryAfter time.Duration `yaml:"retry_after"`
}

// ProbeConfig 硬件能力检测配置。
type ProbeConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// PhysicalCommand 覆盖默认的设备清单查询命令。
	PhysicalCommand string `yaml:"physical_command"`
	// FunctionalCommand 在隔离子进程中初始化加速运行时的命令。
	FunctionalCommand string `yaml:"functional_command"`
	// Vendor 认定为独立加速卡的厂商关键字。
	Vendor string `yaml:"vendor"`
}

// StorageConfig 生成文件的存储与清理配置。
type StorageConfig struct {
	OutputDir     string        `yaml:"output_dir"`
	PreviewDir    string        `yaml:"preview_dir"`
	DBPath        string        `yaml:"db_path"`
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MP3Bitrate    string        `yaml:"mp3_bitrate"`
	FFmpegBinary  string        `yaml:"ffmpeg_binary"`
	// AlwaysEncode 为 true 时无论请求格式都生成压缩版本。
	AlwaysEncode bool `yaml:"always_encode"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置内容，填充默认值并校验。
func Parse(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := preset()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回全部使用默认值的配置。
func Default() *Config {
	cfg := preset()
	setDefaults(cfg)
	return cfg
}

// preset 返回解析前预置的配置。零值有意义的字段在这里设置默认值，
// YAML 中未出现的键保持预置值，显式写 0 则覆盖。
func preset() *Config {
	return &Config{
		Synth: SynthConfig{SilenceMs: 250},
	}
}

// Validate 检查配置项之间的约束。
func (c *Config) Validate() error {
	switch c.Primary.Engine {
	case "kokoro", "edge", "piper":
	default:
		return fmt.Errorf("未知的主引擎: %s", c.Primary.Engine)
	}
	switch c.Secondary.Engine {
	case "", "sherpa", "exec":
	default:
		return fmt.Errorf("未知的重型引擎: %s", c.Secondary.Engine)
	}
	if c.Secondary.Engine == "exec" && strings.TrimSpace(c.Secondary.Command) == "" {
		return fmt.Errorf("exec 重型引擎需要配置 secondary.command")
	}
	if c.Synth.MaxChars <= 0 {
		return fmt.Errorf("synth.max_chars 必须为正数")
	}
	if c.Synth.SilenceMs < 0 {
		return fmt.Errorf("synth.silence_ms 不能为负数")
	}
	if c.Storage.Retention <= 0 || c.Storage.SweepInterval <= 0 {
		return fmt.Errorf("storage.retention 与 storage.sweep_interval 必须为正数")
	}
	return nil
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Synth.MaxChars == 0 {
		cfg.Synth.MaxChars = 350
	}
	if cfg.Synth.MaxTextChars == 0 {
		cfg.Synth.MaxTextChars = 50000
	}
	if cfg.Synth.SampleRate == 0 {
		cfg.Synth.SampleRate = 24000
	}
	if cfg.Synth.DefaultVoice == "" {
		cfg.Synth.DefaultVoice = "am_michael"
	}

	if cfg.Primary.Engine == "" {
		cfg.Primary.Engine = "kokoro"
	}
	if cfg.Primary.Kokoro.NumThreads == 0 {
		cfg.Primary.Kokoro.NumThreads = 2
	}
	if cfg.Primary.Edge.DefaultVoice == "" {
		cfg.Primary.Edge.DefaultVoice = "en-US-GuyNeural"
	}
	if cfg.Primary.Piper.Binary == "" {
		cfg.Primary.Piper.Binary = "piper"
	}

	if cfg.Secondary.Provider == "" {
		cfg.Secondary.Provider = "cuda"
	}
	if cfg.Secondary.NumThreads == 0 {
		cfg.Secondary.NumThreads = 4
	}

	if cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout = 10 * time.Second
	}
	if cfg.Probe.FunctionalCommand == "" {
		cfg.Probe.FunctionalCommand = "nvidia-smi --query-gpu=name --format=csv,noheader"
	}
	if cfg.Probe.Vendor == "" {
		cfg.Probe.Vendor = "NVIDIA"
	}

	dataDir := defaultDataDir()
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.Primary.Kokoro.ModelDir = expandHome(cfg.Primary.Kokoro.ModelDir)
	cfg.Primary.Piper.ModelPath = expandHome(cfg.Primary.Piper.ModelPath)
	cfg.Secondary.ModelDir = expandHome(cfg.Secondary.ModelDir)
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = filepath.Join(dataDir, "audio_output")
	}
	cfg.Storage.OutputDir = expandHome(cfg.Storage.OutputDir)
	if cfg.Storage.PreviewDir == "" {
		cfg.Storage.PreviewDir = filepath.Join(dataDir, "voice_previews")
	}
	cfg.Storage.PreviewDir = expandHome(cfg.Storage.PreviewDir)
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = filepath.Join(dataDir, "narrator.db")
	}
	cfg.Storage.DBPath = expandHome(cfg.Storage.DBPath)
	if cfg.Storage.Retention == 0 {
		cfg.Storage.Retention = time.Hour
	}
	if cfg.Storage.SweepInterval == 0 {
		cfg.Storage.SweepInterval = 5 * time.Minute
	}
	if cfg.Storage.MP3Bitrate == "" {
		cfg.Storage.MP3Bitrate = "192k"
	}
	if cfg.Storage.FFmpegBinary == "" {
		cfg.Storage.FFmpegBinary = "ffmpeg"
	}
}

func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	if home != "" {
		return filepath.Join(home, ".narrator")
	}
	return "./.narrator-data"
}

// expandHome 展开 ~/ 前缀，Go 不会自动处理。
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return p
	}
	return filepath.Join(home, p[2:])
}
