package focus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRecord focus_profiles 表的行模型
type ProfileRecord struct {
	ID               string    `gorm:"primaryKey;size:64"`
	DisplayName      string    `gorm:"size:128"`
	Tone             []string  `gorm:"serializer:json;type:text"`
	Tier             int       `gorm:"not null"`
	TokenBudgetHint  int       `gorm:"not null"`
	TemperatureDelta float64   `gorm:"not null"`
	Keywords         []string  `gorm:"serializer:json;type:text"`
	PromptAddon      string    `gorm:"type:text"`
	ModelOverride    string    `gorm:"size:128"`
	Enabled          bool      `gorm:"not null;index"`
	AutoSkills       []string  `gorm:"serializer:json;type:text"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName 指定表名
func (ProfileRecord) TableName() string {
	return "focus_profiles"
}

func recordFromProfile(p *Profile) *ProfileRecord {
	return &ProfileRecord{
		ID:               p.ID,
		DisplayName:      p.DisplayName,
		Tone:             p.Tone,
		Tier:             int(p.Tier),
		TokenBudgetHint:  p.TokenBudgetHint,
		TemperatureDelta: p.TemperatureDelta,
		Keywords:         p.Keywords,
		PromptAddon:      p.PromptAddon,
		ModelOverride:    p.ModelOverride,
		Enabled:          p.Enabled,
		AutoSkills:       p.AutoSkills,
	}
}

func (r *ProfileRecord) toProfile() *Profile {
	return &Profile{
		ID:               r.ID,
		DisplayName:      r.DisplayName,
		Tone:             r.Tone,
		Tier:             Tier(r.Tier),
		TokenBudgetHint:  r.TokenBudgetHint,
		TemperatureDelta: r.TemperatureDelta,
		Keywords:         r.Keywords,
		PromptAddon:      r.PromptAddon,
		ModelOverride:    r.ModelOverride,
		Enabled:          r.Enabled,
		AutoSkills:       r.AutoSkills,
	}
}

// GormStore 基于 GORM 的画像存储（postgres / mysql / sqlite）
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore 创建关系库画像存储，表结构由 migration 包维护
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "focus_gorm_store")),
	}
}

// ListEnabled 实现 Store
func (s *GormStore) ListEnabled(ctx context.Context) ([]*Profile, error) {
	var rows []ProfileRecord
	if err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list focus profiles: %w", err)
	}

	out := make([]*Profile, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toProfile())
	}
	return out, nil
}

// Get 实现 Store
func (s *GormStore) Get(ctx context.Context, id string) (*Profile, error) {
	var row ProfileRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get focus profile %q: %w", id, err)
	}
	return row.toProfile(), nil
}

// Save 实现 Writer，按主键 upsert
func (s *GormStore) Save(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	rec := recordFromProfile(p)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("save focus profile %q: %w", p.ID, err)
	}

	s.logger.Debug("focus profile saved", zap.String("focus_id", p.ID))
	return nil
}
