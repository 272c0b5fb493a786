package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BaSui01/agentcouncil/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// migrateArgs 迁移命令的参数
type migrateArgs struct {
	command    []string // 子命令及其位置参数，如 ["goto", "2"]
	configPath string
	dbType     string
	dbURL      string
}

// parseMigrateArgs 解析 "<subcommand> [arg] [flags]"
func parseMigrateArgs(args []string, stderr io.Writer) (*migrateArgs, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing migrate subcommand")
	}

	out := &migrateArgs{command: []string{args[0]}}
	rest := args[1:]
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		out.command = append(out.command, rest[0])
		rest = rest[1:]
	}

	fs := flag.NewFlagSet("migrate "+args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&out.configPath, "config", "", "Path to config file")
	fs.StringVar(&out.dbType, "db-type", "", "Database type (postgres, mysql, sqlite)")
	fs.StringVar(&out.dbURL, "db-url", "", "Database connection URL")
	if err := fs.Parse(rest); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return out, nil
}

// newMigrator 由参数创建迁移器：显式 URL 优先，否则读取配置
func newMigrator(a *migrateArgs) (*migration.DefaultMigrator, error) {
	if a.dbType != "" && a.dbURL != "" {
		return migration.NewMigratorFromURL(a.dbType, a.dbURL)
	}

	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.dbType != "" {
		cfg.Database.Driver = a.dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

// runMigrate 处理 migrate 命令
func runMigrate(args []string) {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage()
		if len(args) == 0 {
			os.Exit(1)
		}
		return
	}

	parsed, err := parseMigrateArgs(args, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		printMigrateUsage()
		os.Exit(1)
	}

	migrator, err := newMigrator(parsed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	if err := migration.NewCLI(migrator).Run(context.Background(), parsed.command); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

// printMigrateUsage 打印迁移命令帮助
func printMigrateUsage() {
	fmt.Printf(`Database Migration Commands

Usage:
  agentcouncil migrate <subcommand> [arg] [options]

%s

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  agentcouncil migrate up
  agentcouncil migrate up --config /etc/agentcouncil/config.yaml
  agentcouncil migrate goto 1 --db-type sqlite --db-url sqlite3://agentcouncil.db
  agentcouncil migrate status
`, migration.Usage)
}
