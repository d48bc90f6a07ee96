// watch 终端版记录视图：订阅变更推送并实时刷新表格，命令从标准输入读取（help 查看）
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"student-roster/config"
	"student-roster/internal/model"
	"student-roster/internal/syncview"
	applogger "student-roster/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd 参数可由同名环境变量覆盖：ROSTER_URL、ROSTER_TOKEN、ROSTER_PASSWORD ...
func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "watch",
		Short:        "实时查看并编辑学生记录",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("url", "http://localhost:3000", "服务地址")
	flags.String("token", "", "访问令牌")
	flags.String("user", "", "登录用户名（与 --token 二选一）")
	flags.String("password", "", "登录密码")
	flags.String("log-level", "warn", "日志级别")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("ROSTER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func run(parent context.Context, v *viper.Viper) error {
	logger, err := applogger.NewLogger(&config.LogConfig{Level: v.GetString("log-level"), Format: "console"})
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := syncview.NewClient(v.GetString("url"), syncview.WithToken(v.GetString("token")))
	if user := v.GetString("user"); user != "" {
		if err := client.Login(ctx, user, v.GetString("password")); err != nil {
			return fmt.Errorf("登录失败: %w", err)
		}
	}

	var feed syncview.Feed = client
	if cc, err := client.ClientConfig(ctx); err == nil && !cc.FeedEnabled {
		logger.Warn("服务端未开启变更推送，只在本地操作后刷新")
		feed = nil
	}

	view := syncview.New(syncview.Options{
		API:      client,
		Feed:     feed,
		Render:   render,
		Logger:   logger,
		RetryMin: 500 * time.Millisecond,
		RetryMax: 15 * time.Second,
	})

	go func() {
		if err := view.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("视图退出", zap.Error(err))
		}
		stop()
	}()

	go readCommands(ctx, view, stop)

	<-ctx.Done()
	return nil
}

// render 清屏后输出可见行
func render(rows []model.Record) {
	fmt.Print("\033[H\033[2J")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "姓名", "编号", "老师", "监护人1", "监护人2", "到场1", "到场2"})
	table.SetAutoWrapText(false)
	for _, r := range rows {
		table.Append([]string{
			strconv.FormatInt(r.ID, 10), r.Name, r.Code,
			opt(r.Teacher), opt(r.Guardian1), opt(r.Guardian2),
			mark(r.Attended1), mark(r.Attended2),
		})
	}
	table.Render()
	fmt.Printf("\n共 %d 行  > ", len(rows))
}

func opt(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func mark(b bool) string {
	if b {
		return "✓"
	}
	return " "
}

func readCommands(ctx context.Context, view *syncview.View, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if err := runCommand(ctx, view, line); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			fmt.Printf("错误: %v\n> ", err)
		}
	}
	quit()
}
