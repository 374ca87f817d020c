package search

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// BookRecord maps the book catalog table.
type BookRecord struct {
	ID        string `gorm:"primaryKey;column:id"`
	Title     string
	Author    string
	Publisher string
	Content   string
	Tags      string
}

func (BookRecord) TableName() string { return "book" }

// SQLiteCatalog implements Catalog over the text-indexed SQLite book database.
type SQLiteCatalog struct {
	db *gorm.DB
}

// NewSQLiteCatalog opens the catalog database read-only.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(sqlite.Open(path+"?mode=ro"), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open book catalog: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

// Find runs the conjunctive filter query.
func (c *SQLiteCatalog) Find(f Filters) ([]Result, error) {
	tx := c.db.Model(&BookRecord{})
	if f.Title != "" {
		tx = tx.Where("title LIKE ?", contains(f.Title))
	}
	if f.Content != "" {
		tx = tx.Where("content LIKE ?", contains(f.Content))
	}
	if f.Tag != "" {
		tx = tx.Where("tags LIKE ?", contains(f.Tag))
	}
	if len(f.BookIDs) > 0 {
		tx = tx.Where("id IN ?", f.BookIDs)
	}
	var records []BookRecord
	if err := tx.Find(&records).Error; err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(records))
	for _, r := range records {
		results = append(results, Result{
			BookID: r.ID,
			Title:  r.Title,
			Author: r.Author,
			Tags:   r.Tags,
		})
	}
	return results, nil
}

func contains(s string) string {
	return "%" + s + "%"
}
