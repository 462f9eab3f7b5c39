package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/segment"
)

// sherpaModel 封装 sherpa-onnx 离线 Kokoro 模型。
// OfflineTts 不保证可重入，所有调用串行执行。
type sherpaModel struct {
	mu       sync.Mutex
	tts      *sherpa.OfflineTts
	speakers map[string]int
}

// kokoroFiles 返回 Kokoro 模型目录下需要存在的文件。
func kokoroFiles(dir string) sherpa.OfflineTtsKokoroModelConfig {
	cfg := sherpa.OfflineTtsKokoroModelConfig{
		Model:   filepath.Join(dir, "model.onnx"),
		Voices:  filepath.Join(dir, "voices.bin"),
		Tokens:  filepath.Join(dir, "tokens.txt"),
		DataDir: filepath.Join(dir, "espeak-ng-data"),
	}
	// 多语言模型额外带词典
	if _, err := os.Stat(filepath.Join(dir, "dict")); err == nil {
		cfg.DictDir = filepath.Join(dir, "dict")
		var lexicons []string
		for _, name := range []string{"lexicon-us-en.txt", "lexicon-gb-en.txt", "lexicon-zh.txt"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				lexicons = append(lexicons, filepath.Join(dir, name))
			}
		}
		cfg.Lexicon = strings.Join(lexicons, ",")
	}
	return cfg
}

// loadSherpaModel 检查模型文件并创建 OfflineTts。
func loadSherpaModel(dir, provider string, numThreads int, speakers map[string]int) (*sherpaModel, error) {
	if dir == "" {
		return nil, fmt.Errorf("[tts] 未配置模型目录")
	}
	kokoro := kokoroFiles(dir)
	for _, p := range []string{kokoro.Model, kokoro.Voices, kokoro.Tokens} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("[tts] 模型文件缺失: %w", err)
		}
	}

	config := sherpa.OfflineTtsConfig{}
	config.Model.Kokoro = kokoro
	config.Model.NumThreads = numThreads
	config.Model.Provider = provider
	config.MaxNumSentences = 1

	impl := sherpa.NewOfflineTts(&config)
	if impl == nil {
		return nil, fmt.Errorf("[tts] 创建 sherpa-onnx 离线合成器失败，模型目录: %s, provider=%s", dir, provider)
	}

	logger.Infof("[tts] sherpa-onnx 模型已加载: dir=%s provider=%s speakers=%d",
		dir, provider, impl.NumSpeakers())
	return &sherpaModel{tts: impl, speakers: speakers}, nil
}

func (m *sherpaModel) speakerID(voice string) (int, error) {
	sid, ok := m.speakers[voice]
	if !ok {
		return 0, fmt.Errorf("[tts] 未知音色: %s", voice)
	}
	return sid, nil
}

// generate 合成一段文本，空输出返回 ok=false。
func (m *sherpaModel) generate(text string, sid int, speed float32) (Segment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tts == nil {
		return Segment{}, false, fmt.Errorf("[tts] 模型已释放")
	}
	out := m.tts.Generate(text, sid, speed)
	if out == nil || len(out.Samples) == 0 {
		return Segment{}, false, nil
	}
	return Segment{Samples: out.Samples, SampleRate: out.SampleRate}, true, nil
}

func (m *sherpaModel) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tts != nil {
		sherpa.DeleteOfflineTts(m.tts)
		m.tts = nil
	}
}

// KokoroEngine 是在 CPU 上运行的 Kokoro 轻量后端，按句惰性合成。
type KokoroEngine struct {
	model *sherpaModel
}

// NewKokoroEngine 立即加载 Kokoro 模型。
func NewKokoroEngine(modelDir string, numThreads int, speakers map[string]int) (*KokoroEngine, error) {
	model, err := loadSherpaModel(modelDir, "cpu", numThreads, speakers)
	if err != nil {
		return nil, err
	}
	return &KokoroEngine{model: model}, nil
}

// Name 实现 Primary 接口。
func (k *KokoroEngine) Name() string { return "kokoro" }

// Generate 按句切分文本，每次 Next 合成一句。
func (k *KokoroEngine) Generate(_ context.Context, text, voice string, speed float32) (Stream, error) {
	sid, err := k.model.speakerID(voice)
	if err != nil {
		return nil, err
	}

	sentences := segment.Sentences(text)
	producers := make([]Producer, len(sentences))
	for i, sentence := range sentences {
		sentence := sentence
		producers[i] = func(context.Context) (Segment, error) {
			logger.Debugf("[tts] kokoro: 正在合成 %d 个字符，音色=%s", len([]rune(sentence)), voice)
			seg, ok, err := k.model.generate(sentence, sid, speed)
			if err != nil {
				return Segment{}, err
			}
			if !ok {
				logger.Warnf("[tts] kokoro: 句子未产生音频: %q", sentence)
			}
			return seg, nil
		}
	}
	return NewStream(producers...), nil
}

// Close 释放模型。
func (k *KokoroEngine) Close() error {
	k.model.close()
	return nil
}

// SherpaHeavyEngine 在加速设备上运行全精度模型，作为高保真后端。
type SherpaHeavyEngine struct {
	modelDir   string
	provider   string
	numThreads int
	speakers   map[string]int
	model      *sherpaModel
}

// NewSherpaHeavyEngine 创建重型后端，模型在 Load 时才加载。
func NewSherpaHeavyEngine(modelDir, provider string, numThreads int, speakers map[string]int) *SherpaHeavyEngine {
	return &SherpaHeavyEngine{
		modelDir:   modelDir,
		provider:   provider,
		numThreads: numThreads,
		speakers:   speakers,
	}
}

// Name 实现 Secondary 接口。
func (s *SherpaHeavyEngine) Name() string { return "sherpa-" + s.provider }

// Load 实现 Secondary 接口。
func (s *SherpaHeavyEngine) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	model, err := loadSherpaModel(s.modelDir, s.provider, s.numThreads, s.speakers)
	if err != nil {
		return err
	}
	s.model = model
	return nil
}

// Infer 实现 Secondary 接口。
func (s *SherpaHeavyEngine) Infer(_ context.Context, text, voice string, speed float32) (Segment, bool, error) {
	if s.model == nil {
		return Segment{}, false, fmt.Errorf("[tts] 重型模型未加载")
	}
	sid, err := s.model.speakerID(voice)
	if err != nil {
		return Segment{}, false, err
	}
	return s.model.generate(text, sid, speed)
}

// Close 实现 Secondary 接口。
func (s *SherpaHeavyEngine) Close() error {
	if s.model != nil {
		s.model.close()
	}
	return nil
}
