package gateway

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"
	"time"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/metrics"
	"github.com/bujia-iot/iot-dotmatrix/pkg/network"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "AA:BB:CC:DD:EE:01"

var red = color.RGBA{R: 0xff, A: 0xff}

func testGateway(t *testing.T) (*DisplayGateway, *network.MemoryTransport, *network.MemoryDevice) {
	t.Helper()
	metrics.ResetMetrics()

	transport := network.NewMemoryTransport()
	dev := transport.AddDevice(testAddress, "IDM-TEST", 0)

	opts := DefaultOptions()
	opts.DefaultAddress = testAddress
	opts.ControlPause = time.Millisecond
	opts.FilePause = time.Millisecond
	opts.JobTimeout = 5 * time.Second
	opts.Manager.ResolveAttempts = 3
	opts.Manager.ResolveInterval = time.Millisecond
	opts.Manager.WritePacing = 0
	opts.Manager.Retry = network.RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	g := NewDisplayGateway(transport, opts)
	t.Cleanup(func() { _ = g.Close() })
	return g, transport, dev
}

func solidPNG(t *testing.T, size int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidGIF(t *testing.T, size int, c color.Color) []byte {
	t.Helper()
	frame := image.NewPaletted(image.Rect(0, 0, size, size), color.Palette{c, color.Black})
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, &gif.GIF{Image: []*image.Paletted{frame}, Delay: []int{10}}))
	return buf.Bytes()
}

// 32x32纯红图片：一个分片，正文3072字节，按509字节写出
func TestSendImage_EndToEnd(t *testing.T) {
	g, _, dev := testGateway(t)

	res, err := g.SendImage(context.Background(), "", solidPNG(t, 32, red))
	require.NoError(t, err)
	assert.Equal(t, testAddress, res.Address)
	assert.Equal(t, 16+3072, res.Bytes)
	assert.Equal(t, 1, res.Writes)

	stream := dev.Bytes()
	require.Len(t, stream, 16+3072)
	h, err := protocol.ParseChunkHeader(stream)
	require.NoError(t, err)
	assert.Equal(t, uint8(constants.ContentTypeImage), h.ContentType)
	assert.Equal(t, uint8(constants.SlotStandalone), h.SlotIndex)
	assert.Equal(t, uint32(3072), h.TotalSize)
	assert.Equal(t, []byte{0xff, 0x00, 0x00}, stream[16:19])

	for _, w := range dev.Writes() {
		assert.LessOrEqual(t, len(w.Data), constants.BLEWriteSizeCap)
		assert.False(t, w.WithResponse)
	}

	// 状态、指标、上传日志
	assert.Equal(t, uint64(1), metrics.GetUploadCount("image"))
	display, ok := g.Store().Get(testAddress)
	require.True(t, ok)
	assert.Equal(t, constants.StateConnected, display.GetState())

	last, err := g.Journal().Last(context.Background(), testAddress)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, res.ID, last.ID)
	assert.Equal(t, constants.UploadSucceeded, last.Status)
}

func TestSendImageRaw_AckWrites(t *testing.T) {
	g, _, dev := testGateway(t)

	res, err := g.SendImageRaw(context.Background(), testAddress, solidPNG(t, 4, red))
	require.NoError(t, err)
	assert.Equal(t, 16+4*4*3, res.Bytes)
	for _, w := range dev.Writes() {
		assert.True(t, w.WithResponse)
	}
}

func TestSendGif(t *testing.T) {
	g, _, dev := testGateway(t)

	_, err := g.SendGif(context.Background(), testAddress, solidGIF(t, 10, red))
	require.NoError(t, err)

	stream := dev.Bytes()
	h, err := protocol.ParseChunkHeader(stream)
	require.NoError(t, err)
	assert.Equal(t, uint8(constants.ContentTypeGIF), h.ContentType)
	assert.Equal(t, []byte("GIF89a"), stream[16:22])
}

func TestSendGifRaw_Verbatim(t *testing.T) {
	g, _, dev := testGateway(t)
	data := solidGIF(t, 10, red)

	_, err := g.SendGifRaw(context.Background(), testAddress, data)
	require.NoError(t, err)
	assert.Equal(t, data, dev.Bytes()[16:])
}

// 编码失败：不连接、不写入，记录失败
func TestSend_EncodeFailureWritesNothing(t *testing.T) {
	g, transport, dev := testGateway(t)

	_, err := g.SendGif(context.Background(), testAddress, []byte("not a gif"))
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrEncodeFailed))
	assert.Zero(t, transport.ConnectCount())
	assert.Empty(t, dev.Writes())
	assert.Equal(t, uint64(1), metrics.GetFailureCount("EncodeFailed"))

	last, err := g.Journal().Last(context.Background(), testAddress)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, constants.UploadFailed, last.Status)
	assert.Equal(t, "EncodeFailed", last.ErrorCode)
}

func TestSend_DeviceUnavailable(t *testing.T) {
	g, transport, _ := testGateway(t)
	const missing = "11:22:33:44:55:66"

	err := g.SetScreen(context.Background(), missing, true)
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrDeviceUnavailable))
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 3, transport.LookupCount(missing))
	assert.Equal(t, uint64(1), metrics.GetFailureCount("DeviceUnavailable"))
}

func TestSend_NoAddress(t *testing.T) {
	g, _, _ := testGateway(t)
	g.opts.DefaultAddress = ""

	_, err := g.SendImage(context.Background(), "", solidPNG(t, 4, red))
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrInvalidParameter))
}

func TestUploadBatch(t *testing.T) {
	g, _, dev := testGateway(t)
	files := [][]byte{solidGIF(t, 8, red), solidGIF(t, 8, color.White)}

	_, err := g.UploadBatch(context.Background(), testAddress, files, true)
	require.NoError(t, err)

	stream := dev.Bytes()
	assert.Equal(t, protocol.BuildBatchEnable(), stream[:4])
	assert.Equal(t, protocol.BuildBatchHeader(2), stream[4:11])

	h, err := protocol.ParseChunkHeader(stream[11:])
	require.NoError(t, err)
	assert.Equal(t, uint8(0), h.SlotIndex)
	assert.Equal(t, uint8(constants.ContentTypeGIF), h.ContentType)
}

func TestSendText(t *testing.T) {
	g, _, dev := testGateway(t)

	opts := g.TextDefaults()
	opts.Text = "HI"
	_, err := g.SendText(context.Background(), testAddress, opts)
	require.NoError(t, err)

	info, err := protocol.ParseTextPacket(dev.Bytes())
	require.NoError(t, err)
	assert.Equal(t, protocol.DefaultTextStyle(), info.Style)
	assert.Equal(t, uint16(protocol.CountGlyphs(info.Bitmaps)), info.Glyphs)
	assert.NotZero(t, info.Glyphs)
}

func TestControls(t *testing.T) {
	testCases := []struct {
		name string
		run  func(g *DisplayGateway) error
		want []byte
	}{
		{"绘图模式", func(g *DisplayGateway) error { return g.SetDrawMode(context.Background(), "", 1) }, []byte{0x05, 0x00, 0x04, 0x01, 0x01}},
		{"关屏", func(g *DisplayGateway) error { return g.SetScreen(context.Background(), "", false) }, []byte{0x05, 0x00, 0x07, 0x01, 0x00}},
		{"亮度钳位", func(g *DisplayGateway) error { return g.SetBrightness(context.Background(), "", 150) }, []byte{0x05, 0x00, 0x04, 0x80, 100}},
		{"时钟", func(g *DisplayGateway) error {
			return g.ShowClock(context.Background(), "", protocol.ClockOptions{Style: 1, ShowDate: true, Hour24: true, Color: protocol.RGB{R: 255, G: 255, B: 255}})
		}, []byte{0x08, 0x00, 0x06, 0x01, 0xc1, 0xff, 0xff, 0xff}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g, _, dev := testGateway(t)
			require.NoError(t, tc.run(g))
			assert.Equal(t, tc.want, dev.Bytes())
		})
	}
}

func TestScanReadDisconnect(t *testing.T) {
	g, transport, dev := testGateway(t)
	transport.AddDevice("11:22:33:44:55:66", "Headphones", 0)

	ads, err := g.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, ads, 1)
	display, ok := g.Store().Get(testAddress)
	require.True(t, ok)
	assert.Equal(t, "IDM-TEST", display.Name)

	_, err = g.Read(context.Background(), testAddress)
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrNotConnected))

	require.NoError(t, g.SetScreen(context.Background(), testAddress, true))
	dev.SetReadData([]byte{0x01})
	data, err := g.Read(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, data)

	require.NoError(t, g.Disconnect(testAddress))
	assert.False(t, dev.Connected())
	require.NoError(t, g.Disconnect(testAddress))

	status, err := g.Status(testAddress)
	require.NoError(t, err)
	assert.Equal(t, constants.StateDisconnected, status.Link.State)
	assert.Equal(t, int64(1), status.Queue.TotalProcessed)
}

func TestClose(t *testing.T) {
	g, _, dev := testGateway(t)
	require.NoError(t, g.SetScreen(context.Background(), testAddress, true))

	require.NoError(t, g.Close())
	assert.False(t, dev.Connected())

	err := g.SetScreen(context.Background(), testAddress, true)
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrQueueClosed))
	assert.NoError(t, g.Close())
}
