package artifact

import (
	"context"
	"fmt"
	"time"

	"github.com/iabetor/narrator/internal/database"
)

// Index 在 SQLite 中记录产物元数据与用量统计。
// 文件系统是唯一的事实来源，索引只用于查询展示；nil *Index 的所有方法都是空操作。
type Index struct {
	db *database.DB
}

// NewIndex 创建索引，db 需已完成迁移。
func NewIndex(db *database.DB) *Index {
	return &Index{db: db}
}

// Add 写入或覆盖一条记录。
func (i *Index) Add(ctx context.Context, rec Record) error {
	if i == nil {
		return nil
	}
	_, err := i.db.ExecContext(ctx, `INSERT OR REPLACE INTO artifacts
		(id, filename, format, category, voice, engine, duration, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, string(rec.Format), string(rec.Category), rec.Voice, rec.Engine,
		rec.Duration, rec.Size, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("写入产物索引失败: %w", err)
	}
	return nil
}

// Remove 删除一条记录，不存在时不报错。
func (i *Index) Remove(ctx context.Context, filename string) error {
	if i == nil {
		return nil
	}
	if _, err := i.db.ExecContext(ctx, `DELETE FROM artifacts WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("删除产物索引失败: %w", err)
	}
	return nil
}

// Recent 按创建时间倒序返回最近的输出产物。
func (i *Index) Recent(ctx context.Context, limit int) ([]Record, error) {
	if i == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := i.db.QueryContext(ctx, `SELECT id, filename, format, category, voice, engine, duration, size, created_at
		FROM artifacts WHERE category = ? ORDER BY created_at DESC LIMIT ?`, string(CategoryOutput), limit)
	if err != nil {
		return nil, fmt.Errorf("查询产物索引失败: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			format    string
			category  string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Filename, &format, &category, &rec.Voice, &rec.Engine,
			&rec.Duration, &rec.Size, &createdAt); err != nil {
			return nil, fmt.Errorf("读取产物索引失败: %w", err)
		}
		rec.Format = Format(format)
		rec.Category = Category(category)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Usage 某个引擎在某一天的合成用量。
type Usage struct {
	Engine string `json:"engine"`
	Count  int    `json:"count"`
	Chars  int    `json:"chars"`
}

// RecordUsage 累加引擎当天的合成次数与字符数。
func (i *Index) RecordUsage(ctx context.Context, engine string, chars int, day time.Time) error {
	if i == nil {
		return nil
	}
	_, err := i.db.ExecContext(ctx, `INSERT INTO synth_stats (engine, date, count, chars) VALUES (?, ?, 1, ?)
		ON CONFLICT(engine, date) DO UPDATE SET count = count + 1, chars = chars + excluded.chars`,
		engine, day.Format("2006-01-02"), chars)
	if err != nil {
		return fmt.Errorf("更新合成统计失败: %w", err)
	}
	return nil
}

// UsageOn 返回某一天各引擎的用量。
func (i *Index) UsageOn(ctx context.Context, day time.Time) ([]Usage, error) {
	if i == nil {
		return nil, nil
	}
	rows, err := i.db.QueryContext(ctx, `SELECT engine, count, chars FROM synth_stats WHERE date = ? ORDER BY engine`,
		day.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("查询合成统计失败: %w", err)
	}
	defer rows.Close()

	var usage []Usage
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.Engine, &u.Count, &u.Chars); err != nil {
			return nil, fmt.Errorf("读取合成统计失败: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
