package audio

import (
	"math"
	"time"
)

// Int16ToFloat32 将 PCM int16 样本转换为 [-1.0, 1.0] 范围的 float32。
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// Float32ToInt16 将 float32 样本钳位到 [-1.0, 1.0] 后转换为 PCM int16。
func Float32ToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		out[i] = int16(clamp(s) * math.MaxInt16)
	}
	return out
}

// Float32ToInts 转换为 go-audio 使用的 int 样本（16 bit 深度）。
func Float32ToInts(in []float32) []int {
	out := make([]int, len(in))
	for i, s := range in {
		out[i] = int(clamp(s) * math.MaxInt16)
	}
	return out
}

// BytesToFloat32 将 signed 16-bit LE 单声道 PCM 字节转换为 float32 样本。
// 末尾不完整的字节被丢弃。
func BytesToFloat32(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(b[2*i]) | int16(b[2*i+1])<<8
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}

// StereoBytesToMono 将立体声 signed 16-bit LE PCM 转换为单声道 float32，
// 左右声道取平均。go-mp3 解码输出即为这种格式。
func StereoBytesToMono(b []byte) []float32 {
	const bytesPerFrame = 4
	numFrames := len(b) / bytesPerFrame
	out := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		off := i * bytesPerFrame
		left := int16(b[off]) | int16(b[off+1])<<8
		right := int16(b[off+2]) | int16(b[off+3])<<8
		out[i] = (float32(left) + float32(right)) / 2.0 / 32768.0
	}
	return out
}

// Float32ToBytes 将 float32 样本转换为 signed 16-bit LE PCM 字节。
func Float32ToBytes(in []float32) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range Float32ToInt16(in) {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// Silence 返回指定时长的静音样本。
func Silence(sampleRate int, d time.Duration) []float32 {
	if sampleRate <= 0 || d <= 0 {
		return nil
	}
	n := int(int64(sampleRate) * int64(d) / int64(time.Second))
	return make([]float32, n)
}

// Resample 使用线性插值把样本从 from 采样率转换到 to 采样率。
// 采样率相同时原样返回。
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}

// Duration 返回样本数对应的播放时长（秒）。
func Duration(numSamples, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(numSamples) / float64(sampleRate)
}

func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}
