package retrieval

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Vector stores an embedding as a JSON array column. Portable across the
// SQL backends gorm supports; the store ranks in memory, so the column
// never needs native vector operators.
type Vector []float64

func (v Vector) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *Vector) Scan(value any) error {
	var data []byte
	switch src := value.(type) {
	case []byte:
		data = src
	case string:
		data = []byte(src)
	default:
		return fmt.Errorf("unsupported vector column type %T", value)
	}
	return json.Unmarshal(data, v)
}

// KnowledgeVector is one stored embedding row. Dimension is denormalized
// into its own indexed column so lookups never deserialize vectors of the
// wrong size.
type KnowledgeVector struct {
	ID         uint   `gorm:"primaryKey"`
	Owner      string `gorm:"size:64;index:idx_kv_scope"`
	Collection string `gorm:"size:64;index:idx_kv_scope"`
	Dimension  int    `gorm:"index:idx_kv_scope"`
	Embedding  Vector `gorm:"type:text"`
	Content    string `gorm:"type:text"`
	Source     string `gorm:"size:255"`
	CreatedAt  time.Time
}

// GormStore persists vectors through gorm and ranks candidates in memory.
// Rows are prefiltered by scope and dimension in SQL, so only comparable
// vectors are ever loaded.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the schema and wraps the connection.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&KnowledgeVector{}); err != nil {
		return nil, fmt.Errorf("migrate knowledge vectors: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Add persists one vector.
func (s *GormStore) Add(ctx context.Context, scope Scope, embedding []float64, content, source string) error {
	row := KnowledgeVector{
		Owner:      scope.Owner,
		Collection: scope.Collection,
		Dimension:  len(embedding),
		Embedding:  Vector(embedding),
		Content:    content,
		Source:     source,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Nearest loads scope- and dimension-matched rows and ranks them by cosine
// distance.
func (s *GormStore) Nearest(ctx context.Context, embedding []float64, dimension int, scope Scope, topK int) ([]Neighbor, error) {
	var rows []KnowledgeVector
	err := s.db.WithContext(ctx).
		Where("owner = ? AND collection = ? AND dimension = ?", scope.Owner, scope.Collection, dimension).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load knowledge vectors: %w", err)
	}

	matches := make([]Neighbor, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, Neighbor{
			Content:  row.Content,
			Distance: CosineDistance(embedding, row.Embedding),
			Source:   row.Source,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}
