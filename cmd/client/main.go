package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/internal/app"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/config"
	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
)

// 客户端参数
type clientParams struct {
	configFile string
	address    string
	raw        bool
	timeout    time.Duration
	verbose    bool
}

func main() {
	params := parseFlags()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig(params)
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("初始化日志系统失败: %v\n", err)
		os.Exit(1)
	}

	serviceManager := app.NewServiceManager(cfg)
	if err := serviceManager.Init(); err != nil {
		fmt.Printf("❌ 初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer serviceManager.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, params.timeout)
	defer cancel()

	if err := runCommand(ctx, serviceManager, params, args[0], args[1:]); err != nil {
		fmt.Printf("❌ %s 失败: %v\n", args[0], err)
		serviceManager.Shutdown()
		os.Exit(1)
	}
}

func parseFlags() clientParams {
	var p clientParams
	flag.StringVar(&p.configFile, "config", "", "配置文件路径（为空时使用默认配置）")
	flag.StringVar(&p.address, "addr", "", "显示屏地址（为空时使用配置中的默认设备）")
	flag.BoolVar(&p.raw, "raw", false, "图片/GIF按原样发送，不做缩放和重编码")
	flag.DurationVar(&p.timeout, "timeout", 3*time.Minute, "整个命令的超时时间")
	flag.BoolVar(&p.verbose, "v", false, "输出详细日志")
	flag.Usage = usage
	flag.Parse()
	return p
}

func loadConfig(p clientParams) *config.Config {
	var cfg *config.Config
	if p.configFile != "" {
		c, err := config.Read(p.configFile)
		if err != nil {
			fmt.Printf("加载配置文件失败: %v\n", err)
			os.Exit(1)
		}
		cfg = c
	} else {
		c := config.Default()
		cfg = &c
	}
	if p.verbose {
		cfg.Logger.Level = "debug"
	} else {
		cfg.Logger.Level = "warn"
	}
	cfg.Logger.FilePath = ""
	return cfg
}

func usage() {
	fmt.Println("点阵屏命令行客户端")
	fmt.Println("用法: client [选项] <命令> [参数]")
	fmt.Println("\n命令:")
	fmt.Println("  scan                        扫描附近的显示屏")
	fmt.Println("  image <文件>                发送静态图片")
	fmt.Println("  gif <文件>                  发送GIF动画")
	fmt.Println("  batch <文件...>             批量发送到轮播槽位")
	fmt.Println("  text <文字>                 发送滚动文字")
	fmt.Println("  brightness <0~100>          设置亮度")
	fmt.Println("  screen <on|off>             开关屏幕")
	fmt.Println("  clock [样式0~7]             切换到时钟")
	fmt.Println("  draw-mode <0|1>             进入/退出绘图模式")
	fmt.Println("\n选项:")
	flag.PrintDefaults()
}
