package synth

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/iabetor/narrator/internal/apperr"
	"github.com/iabetor/narrator/internal/engine"
	"github.com/iabetor/narrator/internal/voice"
)

const (
	MinSpeed = 0.5
	MaxSpeed = 2.0

	defaultMaxTextChars = 50000
)

// Request 一次合成请求。
type Request struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	// Format raw / compressed，也接受 wav / mp3。为空时生成压缩版本。
	Format string `json:"format"`
	// Tier standard / heavy，为空时为 standard。
	Tier string `json:"tier"`
}

// Validated 校验通过的请求。
type Validated struct {
	Text       string
	Voice      string
	Speed      float32
	Compressed bool
	Tier       engine.Tier
}

// Validate 在任何后端调用之前检查请求。
// voice 为空时使用注册表默认音色，speed 为 0 时视为 1.0。
func Validate(req Request, voices *voice.Registry, maxTextChars int) (Validated, error) {
	if maxTextChars <= 0 {
		maxTextChars = defaultMaxTextChars
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Validated{}, apperr.Validation("文本不能为空")
	}
	if n := utf8.RuneCountInString(text); n > maxTextChars {
		return Validated{}, apperr.Validation("文本过长: %d 字符，上限 %d", n, maxTextChars)
	}

	voiceID := strings.TrimSpace(req.Voice)
	if voiceID == "" {
		voiceID = voices.Default()
	}
	if !voices.Has(voiceID) {
		return Validated{}, apperr.Validation("未知音色: %s", voiceID)
	}

	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}
	if math.IsNaN(speed) || speed < MinSpeed || speed > MaxSpeed {
		return Validated{}, apperr.Validation("语速必须在 %.1f 到 %.1f 之间", MinSpeed, MaxSpeed)
	}

	var compressed bool
	switch strings.ToLower(strings.TrimSpace(req.Format)) {
	case "", "compressed", "mp3":
		compressed = true
	case "raw", "wav":
	default:
		return Validated{}, apperr.Validation("不支持的格式: %s", req.Format)
	}

	tier, err := engine.ParseTier(req.Tier)
	if err != nil {
		return Validated{}, apperr.Validation("%v", err)
	}

	return Validated{
		Text:       text,
		Voice:      voiceID,
		Speed:      float32(speed),
		Compressed: compressed,
		Tier:       tier,
	}, nil
}
