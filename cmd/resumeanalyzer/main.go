package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"resume-analyzer-go/internal/analyzer"
	"resume-analyzer-go/internal/config"
	"resume-analyzer-go/internal/constants"
	appCoreLogger "resume-analyzer-go/internal/logger"
	"resume-analyzer-go/internal/storage"

	"github.com/spf13/pflag"
)

// 命令行参数定义
var (
	modeFlag        = pflag.StringP("mode", "m", "", "提取模式: structured(1) 或 messy(2)，默认取配置")
	fileFlag        = pflag.StringP("file", "f", "", "简历文件路径 (.pdf/.txt/.md)")
	textFlag        = pflag.StringP("text", "t", "", "直接传入简历文本")
	configFlag      = pflag.StringP("config", "c", "", "配置文件路径")
	interactiveFlag = pflag.BoolP("interactive", "i", false, "交互模式: 输入一段文本后以空行结束，exit/quit 退出")
	demoFlag        = pflag.Bool("demo", false, "用内置的两份示例简历分别跑两种模式")
	jsonFlag        = pflag.Bool("json", false, "以JSON输出完整结果")
	storeFlag       = pflag.Bool("store", false, "按配置连接存储并保存分析记录")
	initConfigFlag  = pflag.String("init-config", "", "在指定路径生成示例配置文件后退出")
	timeoutFlag     = pflag.Duration("timeout", 3*time.Minute, "单次分析超时时间")
)

func main() {
	pflag.Parse()

	if *initConfigFlag != "" {
		if err := config.CreateSampleConfig(*initConfigFlag); err != nil {
			fail("%v", err)
		}
		fmt.Printf("示例配置已写入: %s\n", *initConfigFlag)
		return
	}

	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		fail("加载配置失败: %v", err)
	}
	// 命令行下日志只输出警告以上，避免干扰结果
	if _, err := appCoreLogger.Init(appCoreLogger.Config{Level: "warn", Format: "pretty", Output: os.Stderr}); err != nil {
		fail("初始化日志失败: %v", err)
	}

	ctx := context.Background()

	var store *storage.Storage
	if *storeFlag {
		store, err = storage.NewStorage(ctx, cfg)
		if err != nil {
			fail("初始化存储失败: %v", err)
		}
		defer store.Close()
	}

	a, err := analyzer.NewFromConfig(ctx, cfg, store)
	if err != nil {
		fail("初始化分析器失败: %v", err)
	}

	var mode analyzer.Mode
	if *modeFlag != "" {
		if mode, err = analyzer.ParseMode(*modeFlag); err != nil {
			fail("%v", err)
		}
	}

	r := &runner{analyzer: a, out: os.Stdout, asJSON: *jsonFlag, timeout: *timeoutFlag}

	switch {
	case *demoFlag:
		err = r.demo(ctx)
	case *interactiveFlag:
		err = r.interactive(ctx, os.Stdin, mode)
	case *fileFlag != "":
		err = r.analyzeFile(ctx, *fileFlag, mode)
	case *textFlag != "":
		err = r.analyzeText(ctx, *textFlag, mode)
	default:
		fmt.Fprintln(os.Stderr, "错误: 必须提供 --file、--text、--interactive 或 --demo 之一")
		pflag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "错误: "+format+"\n", args...)
	os.Exit(1)
}

// runner 执行分析并打印结果
type runner struct {
	analyzer *analyzer.Analyzer
	out      io.Writer
	asJSON   bool
	timeout  time.Duration
}

func (r *runner) analyzeText(ctx context.Context, text string, mode analyzer.Mode) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.analyzer.Analyze(ctx, analyzer.Request{Text: text, Mode: mode, Source: constants.SourceCLI})
	if err != nil {
		return err
	}
	return r.print(res)
}

func (r *runner) analyzeFile(ctx context.Context, path string, mode analyzer.Mode) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取文件失败: %w", err)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.analyzer.AnalyzeFileRequest(ctx, analyzer.Request{
		Mode:             mode,
		Source:           constants.SourceCLI,
		OriginalFilename: filepath.Base(path),
	}, data)
	if err != nil {
		return err
	}
	return r.print(res)
}

func (r *runner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *runner) print(res *analyzer.Result) error {
	if r.asJSON {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprint(r.out, res.Report)
	if res.Degraded {
		fmt.Fprintf(r.out, "(降级结果: %s)\n", res.DegradedReason)
	}
	return nil
}
