package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
)

func main() {
	var (
		interactive = flag.Bool("i", false, "进入交互模式")
		hexData     = flag.String("hex", "", "要解析的十六进制数据")
	)
	flag.Parse()

	if *interactive {
		runInteractiveMode()
	} else if *hexData != "" {
		if err := inspect(*hexData); err != nil {
			fmt.Printf("解析失败: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println("点阵屏写入数据解析工具")
		fmt.Println("用法:")
		fmt.Println("  payload-inspect -hex <十六进制数据>  - 解析一次BLE写入")
		fmt.Println("  payload-inspect -i                 - 进入交互模式")
		fmt.Println("\n示例:")
		fmt.Println("  payload-inspect -hex 0500040150")
	}
}

// runInteractiveMode 运行交互模式
func runInteractiveMode() {
	fmt.Println("点阵屏写入数据解析工具 - 交互模式")
	fmt.Println("输入十六进制数据进行解析，输入 'exit' 或 'quit' 退出")
	fmt.Println("----------------------------------------")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "exit" || input == "quit" {
			break
		}
		if input == "" {
			continue
		}
		if err := inspect(input); err != nil {
			fmt.Printf("解析失败: %v\n", err)
		}
	}
}

// inspect 解析十六进制文本并打印字段
func inspect(input string) error {
	cleaned := strings.NewReplacer(" ", "", ":", "", "\t", "", "0x", "").Replace(input)
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return fmt.Errorf("十六进制格式错误: %w", err)
	}

	info := protocol.DescribeFrame(data)
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("----------------------------------------")
	for _, k := range keys {
		fmt.Printf("%-14s %v\n", k+":", info[k])
	}
	fmt.Println("----------------------------------------")
	return nil
}
