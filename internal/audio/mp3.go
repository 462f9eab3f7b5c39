package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Duration 解码 MP3 文件头并返回时长（秒），用于校验编码结果。
func MP3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("打开 MP3 文件失败: %w", err)
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("MP3 解码失败: %w", err)
	}
	// go-mp3 输出为立体声 16-bit，每帧 4 字节
	frames := decoder.Length() / 4
	if frames <= 0 {
		return 0, fmt.Errorf("MP3 文件不包含音频数据: %s", path)
	}
	return float64(frames) / float64(decoder.SampleRate()), nil
}

// DecodeMP3 将 MP3 数据解码为单声道 float32 样本，返回样本和采样率。
func DecodeMP3(data []byte) ([]float32, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("MP3 解码失败: %w", err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("读取 PCM 数据失败: %w", err)
	}
	return StereoBytesToMono(pcm), decoder.SampleRate(), nil
}
