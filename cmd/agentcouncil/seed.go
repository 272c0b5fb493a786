package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/BaSui01/agentcouncil/agent"
	"github.com/BaSui01/agentcouncil/agent/focus"
	"github.com/BaSui01/agentcouncil/internal/database"
)

// =============================================================================
// 🌱 种子数据
// =============================================================================

// Seed 种子文件内容
type Seed struct {
	Agents   []agent.Definition `yaml:"agents"`
	Profiles []*focus.Profile   `yaml:"profiles"`
}

// Validate 校验种子：ID 唯一，profile 字段合法，Agent 引用的 focus 存在
func (s *Seed) Validate() error {
	var errs []error

	profiles := make(map[string]bool, len(s.Profiles))
	for i, p := range s.Profiles {
		if p == nil {
			errs = append(errs, fmt.Errorf("profiles[%d] is empty", i))
			continue
		}
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("profiles[%d]: %w", i, err))
			continue
		}
		if profiles[p.ID] {
			errs = append(errs, fmt.Errorf("duplicate focus profile %q", p.ID))
		}
		profiles[p.ID] = true
	}

	agents := make(map[string]bool, len(s.Agents))
	for i, a := range s.Agents {
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: id is required", i))
			continue
		}
		if agents[a.ID] {
			errs = append(errs, fmt.Errorf("duplicate agent %q", a.ID))
		}
		agents[a.ID] = true
		if a.FocusID != "" && !profiles[a.FocusID] {
			errs = append(errs, fmt.Errorf("agent %q references unknown focus %q", a.ID, a.FocusID))
		}
	}
	return errors.Join(errs...)
}

// LoadSeed 读取并校验 YAML 种子文件
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return &s, nil
}

// agentSaver 可写入 Agent 定义的注册表
type agentSaver interface {
	Save(ctx context.Context, d agent.Definition) error
}

// profileSaver 可写入 focus profile 的存储
type profileSaver interface {
	Save(ctx context.Context, p *focus.Profile) error
}

// seedTxRetries 种子事务遇到死锁或数据库忙时的最大尝试次数
const seedTxRetries = 3

// Apply 写入种子数据，已存在的记录被覆盖。先写 profile，Agent 才能引用它们。
func (s *Seed) Apply(ctx context.Context, agents agentSaver, profiles profileSaver, logger *zap.Logger) error {
	if err := s.writeProfiles(ctx, profiles); err != nil {
		return err
	}
	if err := s.writeAgents(ctx, agents); err != nil {
		return err
	}
	logger.Info("seed applied",
		zap.Int("agents", len(s.Agents)),
		zap.Int("profiles", len(s.Profiles)),
	)
	return nil
}

// ApplyTx 在一个关系库事务内写入 Agent；profilesInTx 时 profile 也写入同一事务，
// 任一写入失败整体回滚。external 是事务外的 profile 存储（mongo），在事务前写入。
func (s *Seed) ApplyTx(ctx context.Context, db *database.PoolManager, profilesInTx bool, external profileSaver, logger *zap.Logger) error {
	if !profilesInTx {
		if err := s.writeProfiles(ctx, external); err != nil {
			return err
		}
	}

	err := db.WithTransactionRetry(ctx, seedTxRetries, func(tx *gorm.DB) error {
		if profilesInTx {
			if err := s.writeProfiles(ctx, focus.NewGormStore(tx, logger)); err != nil {
				return err
			}
		}
		return s.writeAgents(ctx, agent.NewGormRegistry(tx, logger))
	})
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}

	logger.Info("seed applied",
		zap.Int("agents", len(s.Agents)),
		zap.Int("profiles", len(s.Profiles)),
		zap.Bool("profiles_in_tx", profilesInTx),
	)
	return nil
}

func (s *Seed) writeProfiles(ctx context.Context, profiles profileSaver) error {
	if profiles == nil {
		return nil
	}
	for _, p := range s.Profiles {
		if err := profiles.Save(ctx, p); err != nil {
			return fmt.Errorf("save focus profile %q: %w", p.ID, err)
		}
	}
	return nil
}

func (s *Seed) writeAgents(ctx context.Context, agents agentSaver) error {
	if agents == nil {
		return nil
	}
	for _, a := range s.Agents {
		if err := agents.Save(ctx, a); err != nil {
			return fmt.Errorf("save agent %q: %w", a.ID, err)
		}
	}
	return nil
}

// profileIDs 种子中的 profile ID
func (s *Seed) profileIDs() []string {
	ids := make([]string, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		ids = append(ids, p.ID)
	}
	return ids
}

// runSeed 处理 seed 命令：连接配置的存储并写入种子
func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	file := fs.String("file", "", "Seed file (YAML); defaults to profiles.seed_file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *file != "" {
		cfg.Profiles.SeedFile = *file
	}
	if cfg.Profiles.SeedFile == "" {
		fmt.Fprintln(os.Stderr, "no seed file: pass --file or set profiles.seed_file")
		os.Exit(1)
	}
	if cfg.Profiles.Source == "memory" {
		fmt.Fprintln(os.Stderr, "profiles source is memory: the seed file is read on every start, nothing to write")
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	srv := NewServer(cfg, logger)
	defer srv.closeStorage(ctx)

	if err := srv.initStorage(ctx); err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	seed, err := LoadSeed(cfg.Profiles.SeedFile)
	if err != nil {
		logger.Fatal("Failed to load seed", zap.Error(err))
	}
	if err := srv.storeSeed(ctx, seed); err != nil {
		logger.Fatal("Failed to apply seed", zap.Error(err))
	}
}
