package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/iabetor/narrator/internal/logger"
)

// DB 是产物索引使用的 SQLite 连接。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。
// dbPath 为空时使用 ~/.narrator/narrator.db；":memory:" 打开内存库。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".narrator", "narrator.db")
		} else {
			dbPath = "./narrator.db"
		}
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 内存库每个连接都是独立的数据库
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// 清理任务与请求处理会并发写索引
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 busy_timeout 失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 生成的音频产物
		`CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT NOT NULL,
			filename TEXT PRIMARY KEY,
			format TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'output',
			voice TEXT DEFAULT '',
			engine TEXT DEFAULT '',
			duration REAL DEFAULT 0,
			size INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// 合成请求统计
		`CREATE TABLE IF NOT EXISTS synth_stats (
			engine TEXT NOT NULL,
			date TEXT NOT NULL,
			count INTEGER DEFAULT 0,
			chars INTEGER DEFAULT 0,
			UNIQUE(engine, date)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_artifacts_id ON artifacts(id)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON artifacts(created_at)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Info("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
