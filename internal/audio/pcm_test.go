package audio

import (
	"math"
	"testing"
	"time"
)

func TestInt16ToFloat32_MaxInt16(t *testing.T) {
	out := Int16ToFloat32([]int16{0, math.MaxInt16})
	if out[0] != 0 || out[1] != 1.0 {
		t.Fatalf("got %v", out)
	}
}

func TestFloat32ToInt16_Clamp(t *testing.T) {
	out := Float32ToInt16([]float32{1.5, -1.5, 0})
	if out[0] != math.MaxInt16 {
		t.Errorf("expected %d (clamped to 1.0), got %d", math.MaxInt16, out[0])
	}
	if out[1] != -math.MaxInt16 {
		t.Errorf("expected %d (clamped to -1.0), got %d", -math.MaxInt16, out[1])
	}
	if out[2] != 0 {
		t.Errorf("expected 0, got %d", out[2])
	}
}

func TestBytesFloat32_Roundtrip(t *testing.T) {
	input := []float32{0, 1.0, -1.0}
	output := BytesToFloat32(Float32ToBytes(input))
	if len(output) != len(input) {
		t.Fatalf("length mismatch: expected %d, got %d", len(input), len(output))
	}
	for i := range input {
		if output[i] != input[i] {
			t.Errorf("index %d: expected %f, got %f", i, input[i], output[i])
		}
	}
}

func TestBytesToFloat32_DropsPartialSample(t *testing.T) {
	if out := BytesToFloat32([]byte{0x02, 0x01, 0x05}); len(out) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(out))
	}
}

func TestStereoBytesToMono(t *testing.T) {
	// 左 = 16384, 右 = 0 → 平均 8192 → 0.25
	b := []byte{0x00, 0x40, 0x00, 0x00, 0x01}
	out := StereoBytesToMono(b)
	if len(out) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(out))
	}
	if math.Abs(float64(out[0])-0.25) > 1e-6 {
		t.Errorf("expected 0.25, got %f", out[0])
	}
}

func TestSilence(t *testing.T) {
	s := Silence(24000, 250*time.Millisecond)
	if len(s) != 6000 {
		t.Fatalf("expected 6000 samples, got %d", len(s))
	}
	for _, v := range s {
		if v != 0 {
			t.Fatal("silence must be all zeros")
		}
	}
	if Silence(0, time.Second) != nil {
		t.Error("invalid sample rate should yield nil")
	}
}

func TestResample(t *testing.T) {
	in := make([]float32, 22050)
	for i := range in {
		in[i] = 0.5
	}
	out := Resample(in, 22050, 24000)
	if len(out) != 24000 {
		t.Fatalf("expected 24000 samples, got %d", len(out))
	}
	for i, v := range out {
		if math.Abs(float64(v)-0.5) > 1e-6 {
			t.Fatalf("index %d: expected 0.5, got %f", i, v)
		}
	}

	same := Resample(in, 24000, 24000)
	if len(same) != len(in) {
		t.Error("same-rate resample should be a no-op")
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(48000, 24000); d != 2.0 {
		t.Errorf("expected 2.0, got %f", d)
	}
	if d := Duration(100, 0); d != 0 {
		t.Errorf("expected 0 for invalid rate, got %f", d)
	}
}
