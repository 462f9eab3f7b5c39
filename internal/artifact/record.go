// Package artifact 管理合成产物在磁盘上的生命周期：写入、转码、查找、删除与过期清理。
package artifact

import (
	"strings"
	"time"

	"github.com/iabetor/narrator/internal/apperr"
)

// Format 产物格式。
type Format string

const (
	FormatRaw        Format = "wav"
	FormatCompressed Format = "mp3"
)

// Category 产物类别。
type Category string

const (
	CategoryOutput  Category = "output"
	CategoryPreview Category = "preview"
)

// Record 磁盘上的一个产物文件。
type Record struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Format    Format    `json:"format"`
	Category  Category  `json:"category"`
	Voice     string    `json:"voice,omitempty"`
	Engine    string    `json:"engine,omitempty"`
	Duration  float64   `json:"duration"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"-"`
}

// Meta 写入产物时附带的描述信息。
type Meta struct {
	Voice  string
	Engine string
}

// ValidateName 检查外部传入的文件名，拒绝任何可能逃出存储目录的名字。
// 必须在访问文件系统之前调用。
func ValidateName(name string) error {
	switch {
	case name == "":
		return apperr.Validation("文件名不能为空")
	case name == ".",
		strings.Contains(name, ".."),
		strings.ContainsAny(name, `/\`):
		return apperr.Validation("非法文件名: %s", name)
	}
	return nil
}
