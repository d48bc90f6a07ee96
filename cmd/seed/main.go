// seed 从 xlsx 或旧版 JSON 导出文件整体替换 records 表
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"student-roster/config"
	"student-roster/internal/repository"
	"student-roster/internal/service"
	"student-roster/pkg/database"
	applogger "student-roster/pkg/logger"
)

type seedOptions struct {
	configPath string
	file       string
	dryRun     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &seedOptions{}
	cmd := &cobra.Command{
		Use:          "seed --file records.xlsx",
		Short:        "从 xlsx / JSON 文件整体替换学生记录",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "待导入的 .xlsx 或 .json 文件")
	flags.StringVarP(&opts.configPath, "config", "c", "", "配置文件路径（默认 ./config/config.yaml）")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "只解析并打印行数，不写入数据库")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func run(ctx context.Context, opts *seedOptions) error {
	// 1. 加载配置
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()

	// 3. 读取文件
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("读取导入文件失败: %w", err)
	}

	// 4. 连接数据库并迁移
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, cfg.Database.Driver, logger); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	// 种子数据不经过推送，在线客户端需重新加载
	svc := service.NewService(repository.NewRepository(db), nil, nil, nil, logger)

	rows, err := svc.Record.ParseImportFile(filepath.Base(opts.file), data)
	if err != nil {
		return fmt.Errorf("解析导入文件失败: %w", err)
	}
	if opts.dryRun {
		fmt.Printf("解析成功: %d 行\n", len(rows))
		return nil
	}

	// 5. 整体替换
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	result, err := svc.Record.ImportRecords(ctx, rows)
	if err != nil {
		return fmt.Errorf("导入失败: %w", err)
	}
	logger.Info("导入完成", zap.Int("imported", result.Imported), zap.Int("failed", len(result.Failed)))

	fmt.Printf("导入完成: 成功 %d 行，失败 %d 行\n", result.Imported, len(result.Failed))
	for _, f := range result.Failed {
		fmt.Printf("  第 %d 行: %s\n", f.Row, f.Reason)
	}
	return nil
}
