package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iabetor/narrator/internal/artifact"
	"github.com/iabetor/narrator/internal/capability"
	"github.com/iabetor/narrator/internal/config"
	"github.com/iabetor/narrator/internal/engine"
	"github.com/iabetor/narrator/internal/synth"
	"github.com/iabetor/narrator/internal/tts"
	"github.com/iabetor/narrator/internal/voice"
)

type fakeGenerator struct{}

func (fakeGenerator) Generate(context.Context, string, string, float32, engine.Tier) (engine.Result, error) {
	return engine.Result{
		Segments: []tts.Segment{{Samples: make([]float32, 2400), SampleRate: 24000}},
		Engine:   "fake",
	}, nil
}

type fakeEngines struct{}

func (fakeEngines) Status() capability.Status {
	return capability.Status{Tier: capability.TierCPUOnly, Message: "cpu"}
}

func (fakeEngines) State() engine.State {
	return engine.State{Primary: "fake", PrimaryReady: true}
}

func newTestServer(t *testing.T) (*httptest.Server, *artifact.Store) {
	t.Helper()
	root := t.TempDir()
	store, err := artifact.NewStore(artifact.Options{
		OutputDir:  filepath.Join(root, "out"),
		PreviewDir: filepath.Join(root, "preview"),
		Retention:  time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	voices, err := voice.Builtin("am_michael")
	if err != nil {
		t.Fatal(err)
	}
	svc := synth.NewService(fakeGenerator{}, store, voices, config.SynthConfig{SilenceMs: 250})

	ts := httptest.NewServer(New(svc, fakeEngines{}, store).Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestSynthesizeAndFetch(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/synthesize", "application/json",
		strings.NewReader(`{"text":"Hello world.","voice":"af_heart","speed":1.0,"format":"raw"}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out SynthesizeResponse
	decode(t, resp, &out)
	if !out.Success || out.Duration != 0.1 || out.AudioURLMP3 != "" {
		t.Fatalf("out = %+v", out)
	}
	if out.AudioURL != "/audio/"+out.Filename {
		t.Fatalf("AudioURL = %q", out.AudioURL)
	}

	audioResp, err := http.Get(ts.URL + out.AudioURL)
	if err != nil {
		t.Fatal(err)
	}
	audioResp.Body.Close()
	if audioResp.StatusCode != http.StatusOK {
		t.Fatalf("audio status = %d", audioResp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/audio/"+out.Filename, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", delResp.StatusCode)
	}

	missing, _ := http.Get(ts.URL + out.AudioURL)
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("deleted audio status = %d", missing.StatusCode)
	}
}

func TestSynthesizeValidationErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, body := range []string{
		`{"text":""}`,
		`{"text":"hi","speed":5}`,
		`{"text":"hi","voice":"nobody"}`,
		`{"text":"hi","format":"ogg"}`,
		`not json`,
	} {
		resp, err := http.Post(ts.URL+"/api/synthesize", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		var out ErrorResponse
		decode(t, resp, &out)
		if resp.StatusCode != http.StatusBadRequest || out.Kind != "validation" || out.Success {
			t.Errorf("body %s: status = %d out = %+v", body, resp.StatusCode, out)
		}
	}
}

func TestDeleteRejectsTraversal(t *testing.T) {
	ts, store := newTestServer(t)
	outside := filepath.Join(filepath.Dir(store.OutputDir()), "secret.wav")
	os.WriteFile(outside, []byte("x"), 0644)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/audio/..%2Fsecret.wav", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var out ErrorResponse
	decode(t, resp, &out)
	if resp.StatusCode != http.StatusBadRequest || out.Kind != "validation" {
		t.Fatalf("status = %d out = %+v", resp.StatusCode, out)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatal("目录外文件被删除")
	}
}

func TestVoicesSystemHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/voices")
	if err != nil {
		t.Fatal(err)
	}
	var voices struct {
		Voices  map[string]voice.Profile `json:"voices"`
		Default string                   `json:"default"`
	}
	decode(t, resp, &voices)
	if voices.Default != "am_michael" || len(voices.Voices) == 0 {
		t.Fatalf("voices = %+v", voices)
	}

	resp, err = http.Get(ts.URL + "/api/system")
	if err != nil {
		t.Fatal(err)
	}
	var system map[string]json.RawMessage
	decode(t, resp, &system)
	if !strings.Contains(string(system["capability"]), `"CPU_ONLY"`) {
		t.Fatalf("capability = %s", system["capability"])
	}

	resp, err = http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]interface{}
	decode(t, resp, &health)
	if health["status"] != "ok" {
		t.Fatalf("health = %v", health)
	}
}

func TestPreviewAndCleanup(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/preview/bf_emma")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/preview/nobody")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown preview status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/cleanup")
	if err != nil {
		t.Fatal(err)
	}
	var cleanup struct {
		Success bool                `json:"success"`
		Stats   artifact.SweepStats `json:"stats"`
	}
	decode(t, resp, &cleanup)
	if !cleanup.Success {
		t.Fatalf("cleanup = %+v", cleanup)
	}
}

func TestStatusOf(t *testing.T) {
	if statusOf(0) != http.StatusInternalServerError {
		t.Fatal("internal 应映射为 500")
	}
}
