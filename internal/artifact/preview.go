package artifact

import (
	"context"
	"os"
	"path/filepath"

	"github.com/iabetor/narrator/internal/apperr"
	"github.com/iabetor/narrator/internal/audio"
	"github.com/iabetor/narrator/internal/logger"
)

// Preview 返回音色试听文件，优先压缩版本。
func (s *Store) Preview(voice string) (Record, bool) {
	if ValidateName(voice) != nil {
		return Record{}, false
	}
	for _, format := range []Format{FormatCompressed, FormatRaw} {
		name := voice + "." + string(format)
		p := filepath.Join(s.previewDir, name)
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return Record{
			ID:        voice,
			Filename:  name,
			Format:    format,
			Category:  CategoryPreview,
			Voice:     voice,
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			Path:      p,
		}, true
	}
	return Record{}, false
}

// PersistPreview 写入音色试听缓存，每个音色最多保留一个文件。
// 有编码器时转码为 MP3 并删除中间 WAV，转码失败则保留 WAV。
func (s *Store) PersistPreview(ctx context.Context, voice string, samples []float32, sampleRate int) (Record, error) {
	if err := ValidateName(voice); err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:        voice,
		Filename:  voice + "." + string(FormatRaw),
		Format:    FormatRaw,
		Category:  CategoryPreview,
		Voice:     voice,
		Duration:  audio.Duration(len(samples), sampleRate),
		CreatedAt: s.now(),
	}
	rec.Path = filepath.Join(s.previewDir, rec.Filename)
	if err := audio.WriteWAV(rec.Path, samples, sampleRate); err != nil {
		return Record{}, apperr.IO("写入试听文件失败", err)
	}

	if s.encoder != nil {
		mp3Path := filepath.Join(s.previewDir, voice+"."+string(FormatCompressed))
		if err := s.encoder.Encode(ctx, rec.Path, mp3Path); err != nil {
			logger.Warnf("[artifact] 试听 %s 转码失败，保留 WAV: %v", voice, err)
		} else {
			os.Remove(rec.Path)
			rec.Filename = filepath.Base(mp3Path)
			rec.Format = FormatCompressed
			rec.Path = mp3Path
		}
	}
	rec.Size = fileSize(rec.Path)
	logger.Infof("[artifact] 已缓存音色试听 %s", rec.Filename)
	return rec, nil
}
