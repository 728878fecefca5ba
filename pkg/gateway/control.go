package gateway

import (
	"context"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/pkg/encoder"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/network"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// SetDrawMode 进入/退出DIY绘图模式
func (g *DisplayGateway) SetDrawMode(ctx context.Context, address string, mode uint8) error {
	_, err := g.execute(ctx, address, &encoder.CommandContent{
		Name: "draw_mode",
		Data: protocol.BuildSetDrawMode(mode),
	})
	return err
}

// SetScreen 开关屏幕
func (g *DisplayGateway) SetScreen(ctx context.Context, address string, on bool) error {
	_, err := g.execute(ctx, address, &encoder.CommandContent{
		Name: "screen_power",
		Data: protocol.BuildScreenPower(on),
	})
	return err
}

// SetBrightness 设置亮度百分比（5~100，超出范围时钳位）
func (g *DisplayGateway) SetBrightness(ctx context.Context, address string, percent int) error {
	_, err := g.execute(ctx, address, &encoder.CommandContent{
		Name: "brightness",
		Data: protocol.BuildBrightness(percent),
	})
	return err
}

// ShowClock 切换到时钟表盘
func (g *DisplayGateway) ShowClock(ctx context.Context, address string, opts protocol.ClockOptions) error {
	_, err := g.execute(ctx, address, &encoder.CommandContent{
		Name: "clock",
		Data: protocol.BuildClock(opts),
	})
	return err
}

// Scan 扫描附近广播名匹配前缀的显示屏，并记入显示屏存储
func (g *DisplayGateway) Scan(ctx context.Context) ([]network.Advertisement, error) {
	ads, err := g.transport.Scan(ctx, g.opts.NamePrefix)
	if err != nil {
		return nil, err
	}
	for _, ad := range ads {
		g.store.GetOrCreate(ad.Address, ad.Name).SetName(ad.Name)
	}
	logger.WithFields(logrus.Fields{
		"prefix": g.opts.NamePrefix,
		"found":  len(ads),
	}).Debug("扫描完成")
	return ads, nil
}

// Read 读取设备通知特征值；链路未建立时返回NotConnected
func (g *DisplayGateway) Read(ctx context.Context, address string) ([]byte, error) {
	address, err := g.resolveAddress(address)
	if err != nil {
		return nil, err
	}
	l, ok := g.existingLink(address)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotConnected, "设备 %s 未连接", address)
	}
	return l.manager.Read(ctx)
}

// Disconnect 断开某显示屏，未连接时为空操作
func (g *DisplayGateway) Disconnect(address string) error {
	address, err := g.resolveAddress(address)
	if err != nil {
		return err
	}
	l, ok := g.existingLink(address)
	if !ok {
		return nil
	}
	return l.manager.Disconnect()
}
