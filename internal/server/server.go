// Package server 提供合成服务的 HTTP 接口。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/iabetor/narrator/internal/apperr"
	"github.com/iabetor/narrator/internal/artifact"
	"github.com/iabetor/narrator/internal/capability"
	"github.com/iabetor/narrator/internal/engine"
	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/synth"
)

const maxBodyBytes = 1 << 20

// EngineInfo 提供引擎状态，由 engine.Manager 实现。
type EngineInfo interface {
	Status() capability.Status
	State() engine.State
}

// Server HTTP 服务。
type Server struct {
	svc     *synth.Service
	engines EngineInfo
	store   *artifact.Store
	started time.Time
}

// New 创建 HTTP 服务。
func New(svc *synth.Service, engines EngineInfo, store *artifact.Store) *Server {
	return &Server{
		svc:     svc,
		engines: engines,
		store:   store,
		started: time.Now(),
	}
}

// Handler 返回注册了全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/synthesize", s.handleSynthesize)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("GET /api/system", s.handleSystem)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/preview/{voice}", s.handlePreview)
	mux.HandleFunc("GET /audio/{filename}", s.handleAudio)
	mux.HandleFunc("DELETE /api/audio/{filename}", s.handleDelete)
	mux.HandleFunc("GET /api/cleanup", s.handleCleanup)

	return logRequests(mux)
}

// ListenAndServe 监听 addr 直到 ctx 取消，随后优雅关闭。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[server] 监听 %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("[server] 正在关闭 HTTP 服务...")
	return srv.Shutdown(shutdownCtx)
}

// SynthesizeResponse 合成接口的响应。
type SynthesizeResponse struct {
	Success     bool     `json:"success"`
	AudioURL    string   `json:"audio_url"`
	AudioURLMP3 string   `json:"audio_url_mp3,omitempty"`
	Filename    string   `json:"filename"`
	Duration    float64  `json:"duration"`
	Message     string   `json:"message"`
	Chunks      int      `json:"chunks"`
	Skipped     []int    `json:"skipped,omitempty"`
	Engines     []string `json:"engines,omitempty"`
}

// ErrorResponse 失败时的响应，只暴露错误类别与用户可读消息。
type ErrorResponse struct {
	Success bool   `json:"success"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req synth.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, apperr.Validation("请求体不是合法的 JSON"))
		return
	}

	// 客户端断开后合成继续完成，产物由清理任务回收
	resp, err := s.svc.Synthesize(context.WithoutCancel(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	out := SynthesizeResponse{
		Success:  true,
		AudioURL: "/audio/" + resp.Raw.Filename,
		Filename: resp.Raw.Filename,
		Duration: math.Round(resp.Duration*100) / 100,
		Message:  "合成成功",
		Chunks:   resp.Chunks,
		Skipped:  resp.Skipped,
		Engines:  resp.Engines,
	}
	if resp.Compressed != nil {
		out.AudioURLMP3 = "/audio/" + resp.Compressed.Filename
	}
	if len(resp.Skipped) > 0 {
		out.Message = "合成成功，部分分段已跳过"
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices := s.svc.Voices()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"voices":  voices.All(),
		"default": voices.Default(),
	})
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	usage, err := s.store.Index().UsageOn(r.Context(), time.Now())
	if err != nil {
		logger.Warnf("[server] %v", err)
	}
	recent, err := s.store.Index().Recent(r.Context(), 10)
	if err != nil {
		logger.Warnf("[server] %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"capability": s.engines.Status(),
		"engine":     s.engines.State(),
		"usage":      usage,
		"recent":     recent,
		"retention":  s.store.Retention().String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.engines.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"primary_ready": state.PrimaryReady,
		"uptime":        time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Preview(context.WithoutCancel(r.Context()), r.PathValue("voice"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.ServeFile(w, r, rec.Path)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Resolve(r.PathValue("filename"))
	if err != nil {
		writeError(w, err)
		return
	}
	http.ServeFile(w, r, p)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if err := s.store.Delete(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "已删除 " + name,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Sweep(time.Now())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

// statusOf 把错误类别映射为 HTTP 状态码。
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBackendUnavailable, apperr.KindProbeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	code := statusOf(kind)
	if code >= http.StatusInternalServerError {
		logger.Errorf("[server] 请求失败: %v", err)
	}
	writeJSON(w, code, ErrorResponse{
		Success: false,
		Kind:    kind.String(),
		Message: apperr.Message(err),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("[server] 写入响应失败: %v", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debugf("[server] %s %s %d %s", r.Method, r.URL.Path, rec.code, time.Since(start).Round(time.Millisecond))
	})
}
