package tts

import (
	"fmt"

	"github.com/iabetor/narrator/internal/config"
)

// NewPrimary 根据配置创建轻量后端。speakers 为音色 ID → 说话人编号。
func NewPrimary(cfg config.PrimaryConfig, speakers map[string]int) (Primary, error) {
	switch cfg.Engine {
	case "kokoro":
		k, err := NewKokoroEngine(cfg.Kokoro.ModelDir, cfg.Kokoro.NumThreads, speakers)
		if err != nil {
			return nil, err
		}
		return k, nil
	case "edge":
		return NewEdgeEngine(cfg.Edge.Voices, cfg.Edge.DefaultVoice), nil
	case "piper":
		return NewPiperEngine(cfg.Piper.Binary, cfg.Piper.ModelPath), nil
	default:
		return nil, fmt.Errorf("未知的主引擎: %s", cfg.Engine)
	}
}

// NewSecondary 根据配置创建重型后端，未配置时返回 nil。
// 返回的后端尚未加载。
func NewSecondary(cfg config.SecondaryConfig, speakers map[string]int) (Secondary, error) {
	switch cfg.Engine {
	case "":
		return nil, nil
	case "sherpa":
		return NewSherpaHeavyEngine(cfg.ModelDir, cfg.Provider, cfg.NumThreads, speakers), nil
	case "exec":
		e, err := NewExecEngine(cfg.Command)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("未知的重型引擎: %s", cfg.Engine)
	}
}
