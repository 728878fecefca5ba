package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bujia-iot/iot-dotmatrix/internal/app"
	"github.com/bujia-iot/iot-dotmatrix/pkg/gateway"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
)

// runCommand 执行一条子命令
func runCommand(ctx context.Context, m *app.ServiceManager, p clientParams, name string, args []string) error {
	g := m.Gateway
	switch name {
	case "scan":
		ads, err := g.Scan(ctx)
		if err != nil {
			return err
		}
		if len(ads) == 0 {
			fmt.Println("未发现显示屏")
		}
		for _, ad := range ads {
			fmt.Printf("📡 %s  %-16s RSSI=%d\n", ad.Address, ad.Name, ad.RSSI)
		}
		return nil

	case "image", "gif":
		if len(args) != 1 {
			return fmt.Errorf("需要一个文件参数")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var res *gateway.UploadResult
		switch {
		case name == "image" && p.raw:
			res, err = g.SendImageRaw(ctx, p.address, data)
		case name == "image":
			res, err = g.SendImage(ctx, p.address, data)
		case p.raw:
			res, err = g.SendGifRaw(ctx, p.address, data)
		default:
			res, err = g.SendGif(ctx, p.address, data)
		}
		return printResult(res, err)

	case "batch":
		if len(args) == 0 {
			return fmt.Errorf("至少需要一个文件")
		}
		files := make([][]byte, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files = append(files, data)
		}
		return printResult(g.UploadBatch(ctx, p.address, files, p.raw))

	case "text":
		if len(args) == 0 {
			return fmt.Errorf("需要文字内容")
		}
		opts := g.TextDefaults()
		opts.Text = strings.Join(args, " ")
		return printResult(g.SendText(ctx, p.address, opts))

	case "brightness":
		v, err := intArg(args, 0)
		if err != nil {
			return err
		}
		return printDone(g.SetBrightness(ctx, p.address, v))

	case "screen":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return fmt.Errorf("参数必须为 on 或 off")
		}
		return printDone(g.SetScreen(ctx, p.address, args[0] == "on"))

	case "clock":
		style := 0
		if len(args) > 0 {
			v, err := intArg(args, 0)
			if err != nil {
				return err
			}
			style = v
		}
		if style < 0 || style > 7 {
			return fmt.Errorf("表盘样式超出范围0~7：%d", style)
		}
		return printDone(g.ShowClock(ctx, p.address, protocol.ClockOptions{
			Style:  uint8(style),
			Hour24: true,
			Color:  protocol.RGB{R: 255, G: 255, B: 255},
		}))

	case "draw-mode":
		v, err := intArg(args, 0)
		if err != nil {
			return err
		}
		var mode uint8
		if v != 0 {
			mode = 1
		}
		return printDone(g.SetDrawMode(ctx, p.address, mode))
	}
	return fmt.Errorf("未知命令：%s", name)
}

func intArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("缺少数值参数")
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("参数不是整数：%s", args[i])
	}
	return v, nil
}

func printResult(res *gateway.UploadResult, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("✅ 已发送 %s 到 %s：%d 字节，%d 次写入，耗时 %s\n",
		res.Kind, res.Address, res.Bytes, res.Writes, res.Duration)
	return nil
}

func printDone(err error) error {
	if err != nil {
		return err
	}
	fmt.Println("✅ 完成")
	return nil
}
