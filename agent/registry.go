package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry Agent 定义的来源
type Registry interface {
	// ListAgents 返回全部 Agent 定义，按 ID 升序
	ListAgents(ctx context.Context) ([]Definition, error)

	// GetAgent 按 ID 获取，不存在时返回 ErrAgentNotFound
	GetAgent(ctx context.Context, id string) (*Definition, error)

	// UpdateAgentFocus 更新 Agent 的关注点，focusID 为空表示清除
	UpdateAgentFocus(ctx context.Context, id, focusID string) error
}

// =============================================================================
// 📦 MemoryRegistry
// =============================================================================

// MemoryRegistry 进程内注册表，用于种子数据与测试
type MemoryRegistry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewMemoryRegistry 创建进程内注册表
func NewMemoryRegistry(defs ...Definition) *MemoryRegistry {
	r := &MemoryRegistry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.ID] = d
	}
	return r
}

// ListAgents 实现 Registry
func (r *MemoryRegistry) ListAgents(ctx context.Context) ([]Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetAgent 实现 Registry
func (r *MemoryRegistry) GetAgent(ctx context.Context, id string) (*Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.defs[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return &d, nil
}

// UpdateAgentFocus 实现 Registry
func (r *MemoryRegistry) UpdateAgentFocus(ctx context.Context, id, focusID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.defs[id]
	if !ok {
		return ErrAgentNotFound
	}
	d.FocusID = focusID
	r.defs[id] = d
	return nil
}

// Save 新增或覆盖定义
func (r *MemoryRegistry) Save(_ context.Context, d Definition) error {
	if d.ID == "" {
		return errors.New("agent id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[d.ID] = d
	return nil
}

// =============================================================================
// 🗄️ GormRegistry
// =============================================================================

// AgentRecord agents 表的行模型
type AgentRecord struct {
	ID           string  `gorm:"primaryKey;size:64"`
	Name         string  `gorm:"size:128"`
	SystemPrompt string  `gorm:"type:text"`
	FocusID      string  `gorm:"size:64;index"`
	Model        string  `gorm:"size:128"`
	Temperature  float64 `gorm:"not null"`
	MaxTokens    int     `gorm:"not null"`
	Offline      bool    `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName 指定表名
func (AgentRecord) TableName() string {
	return "agents"
}

func (r *AgentRecord) toDefinition() Definition {
	return Definition{
		ID:           r.ID,
		Name:         r.Name,
		SystemPrompt: r.SystemPrompt,
		FocusID:      r.FocusID,
		Model:        r.Model,
		Temperature:  r.Temperature,
		MaxTokens:    r.MaxTokens,
		Offline:      r.Offline,
	}
}

// GormRegistry 基于 GORM 的注册表，表结构由 migration 包维护
type GormRegistry struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormRegistry 创建关系库注册表
func NewGormRegistry(db *gorm.DB, logger *zap.Logger) *GormRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormRegistry{
		db:     db,
		logger: logger.With(zap.String("component", "agent_registry")),
	}
}

// ListAgents 实现 Registry
func (r *GormRegistry) ListAgents(ctx context.Context) ([]Definition, error) {
	var rows []AgentRecord
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	out := make([]Definition, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDefinition())
	}
	return out, nil
}

// GetAgent 实现 Registry
func (r *GormRegistry) GetAgent(ctx context.Context, id string) (*Definition, error) {
	var row AgentRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent %q: %w", id, err)
	}
	d := row.toDefinition()
	return &d, nil
}

// UpdateAgentFocus 实现 Registry
func (r *GormRegistry) UpdateAgentFocus(ctx context.Context, id, focusID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&AgentRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("lookup agent %q: %w", id, err)
		}
		if count == 0 {
			return ErrAgentNotFound
		}
		if err := tx.Model(&AgentRecord{}).Where("id = ?", id).Update("focus_id", focusID).Error; err != nil {
			return fmt.Errorf("update agent %q focus: %w", id, err)
		}
		r.logger.Info("agent focus updated", zap.String("agent_id", id), zap.String("focus_id", focusID))
		return nil
	})
}

// Save 按主键 upsert，用于种子导入
func (r *GormRegistry) Save(ctx context.Context, d Definition) error {
	if d.ID == "" {
		return errors.New("agent id is required")
	}
	rec := AgentRecord{
		ID:           d.ID,
		Name:         d.Name,
		SystemPrompt: d.SystemPrompt,
		FocusID:      d.FocusID,
		Model:        d.Model,
		Temperature:  d.Temperature,
		MaxTokens:    d.MaxTokens,
		Offline:      d.Offline,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
		return fmt.Errorf("save agent %q: %w", d.ID, err)
	}
	return nil
}
