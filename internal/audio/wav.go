package audio

import (
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

type wavFile interface {
	io.WriteSeeker
	io.Closer
}

// createWAV 创建输出文件，测试中可替换。
var createWAV = func(path string) (wavFile, error) {
	return os.Create(path)
}

// WriteWAV 将单声道 float32 样本写为 16-bit PCM WAV 文件。
// 写入失败时删除不完整的文件。
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := createWAV(path)
	if err != nil {
		return fmt.Errorf("创建 WAV 文件失败: %w", err)
	}

	if err := encodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("关闭 WAV 文件失败: %w", err)
	}
	return nil
}

func encodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           Float32ToInts(samples),
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("写入 WAV 数据失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("写入 WAV 头失败: %w", err)
	}
	return nil
}

// ReadWAV 读取 16-bit PCM WAV 文件，多声道时取第一声道。
// 返回 float32 样本和采样率。
func ReadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("打开 WAV 文件失败: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("无效的 WAV 文件: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("读取 WAV 数据失败: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	samples := make([]float32, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, float32(buf.Data[i])/32767.0)
	}
	return samples, buf.Format.SampleRate, nil
}
