package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"strconv"

	"github.com/bujia-iot/iot-dotmatrix/internal/infrastructure/logger"
	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	"github.com/bujia-iot/iot-dotmatrix/pkg/gateway"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// readFormFile 读取上传文件，超过大小上限时报错
func (h *HandlerContext) readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > h.MaxUploadBytes {
		return nil, fmt.Errorf("文件%s过大：%d字节，上限%d字节", fh.Filename, fh.Size, h.MaxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("打开上传文件失败: %w", err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, h.MaxUploadBytes))
}

// rawQuery 是否按原样上传（不缩放/不重新编码）
func rawQuery(c *gin.Context) bool {
	raw, _ := strconv.ParseBool(c.DefaultQuery("raw", "false"))
	return raw
}

func uploadResponse(res *gateway.UploadResult) UploadResponse {
	return UploadResponse{
		ID:         res.ID,
		Address:    res.Address,
		Kind:       string(res.Kind),
		Bytes:      res.Bytes,
		Writes:     res.Writes,
		DurationMs: res.Duration.Milliseconds(),
	}
}

type uploadFunc func(h *HandlerContext, c *gin.Context, data []byte, raw bool) (*gateway.UploadResult, error)

// handleSingleUpload 单文件上传的公共流程
func (h *HandlerContext) handleSingleUpload(c *gin.Context, upload uploadFunc) {
	fh, err := c.FormFile("file")
	if err != nil {
		respondBadRequest(c, "缺少上传文件字段file")
		return
	}
	data, err := h.readFormFile(fh)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	raw := rawQuery(c)
	res, err := upload(h, c, data, raw)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"address":  res.Address,
		"uploadID": res.ID,
		"kind":     res.Kind,
		"file":     fh.Filename,
		"raw":      raw,
		"clientIP": c.ClientIP(),
	}).Info("上传完成")
	respondOK(c, uploadResponse(res))
}

// HandleImage 上传静态图片，raw=true时不缩放
// @Router /api/v1/displays/{address}/image [post]
func (h *HandlerContext) HandleImage(c *gin.Context) {
	h.handleSingleUpload(c, func(h *HandlerContext, c *gin.Context, data []byte, raw bool) (*gateway.UploadResult, error) {
		ctx, cancel := h.requestContext(c)
		defer cancel()
		if raw {
			return h.Displays.SendImageRaw(ctx, addressParam(c), data)
		}
		return h.Displays.SendImage(ctx, addressParam(c), data)
	})
}

// HandleGif 上传GIF动画，raw=true时原样分片
// @Router /api/v1/displays/{address}/gif [post]
func (h *HandlerContext) HandleGif(c *gin.Context) {
	h.handleSingleUpload(c, func(h *HandlerContext, c *gin.Context, data []byte, raw bool) (*gateway.UploadResult, error) {
		ctx, cancel := h.requestContext(c)
		defer cancel()
		if raw {
			return h.Displays.SendGifRaw(ctx, addressParam(c), data)
		}
		return h.Displays.SendGif(ctx, addressParam(c), data)
	})
}

// HandleBatch 批量上传GIF到轮播槽位，表单字段files可重复
// @Router /api/v1/displays/{address}/batch [post]
func (h *HandlerContext) HandleBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondBadRequest(c, "请求必须为multipart表单")
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		respondBadRequest(c, "缺少上传文件字段files")
		return
	}
	if len(headers) > constants.MaxBatchSlots {
		logger.WithFields(logrus.Fields{
			"provided": len(headers),
			"limit":    constants.MaxBatchSlots,
		}).Warn("批量文件数超过槽位上限，将被截断")
	}

	files := make([][]byte, 0, len(headers))
	for _, fh := range headers {
		data, err := h.readFormFile(fh)
		if err != nil {
			respondBadRequest(c, err.Error())
			return
		}
		files = append(files, data)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	res, err := h.Displays.UploadBatch(ctx, addressParam(c), files, rawQuery(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, uploadResponse(res))
}

// textOptions 将请求参数合并到默认文字参数上
func (h *HandlerContext) textOptions(req *TextRequest) (gateway.TextOptions, error) {
	opts := h.Displays.TextDefaults()
	opts.Text = req.Text
	if req.Font != "" {
		opts.Font = req.Font
	}
	if req.FontSize > 0 {
		opts.FontSize = req.FontSize
	}
	if req.Animation != "" {
		mode, ok := constants.AnimationModes[req.Animation]
		if !ok {
			return opts, fmt.Errorf("不支持的动画模式：%s", req.Animation)
		}
		opts.Style.AnimationMode = mode
	}
	if req.Speed != nil {
		opts.Style.Speed = uint8(*req.Speed)
	}
	if req.ColorMode != nil {
		opts.Style.ColorMode = uint8(*req.ColorMode)
	}
	if req.Color != nil {
		opts.Style.Color = protocol.ParseRGB(req.Color)
	}
	if req.BgMode != nil {
		opts.Style.BgMode = uint8(*req.BgMode)
	}
	if req.BgColor != nil {
		opts.Style.BgColor = protocol.ParseRGB(req.BgColor)
	}
	if req.Spacing != nil {
		opts.Spacing = *req.Spacing
	}
	if req.Proportional != nil {
		opts.Proportional = *req.Proportional
	}
	if req.Compact != nil {
		opts.Compact = *req.Compact
	}
	return opts, nil
}

// HandleText 发送滚动文字
// @Router /api/v1/displays/{address}/text [post]
func (h *HandlerContext) HandleText(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "参数验证失败: "+err.Error())
		return
	}
	opts, err := h.textOptions(&req)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	res, err := h.Displays.SendText(ctx, addressParam(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, uploadResponse(res))
}

// HandleDrawMode 进入/退出绘图模式
// @Router /api/v1/displays/{address}/draw-mode [post]
func (h *HandlerContext) HandleDrawMode(c *gin.Context) {
	var req DrawModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "参数验证失败: "+err.Error())
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	if err := h.Displays.SetDrawMode(ctx, addressParam(c), req.Mode); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"mode": req.Mode})
}

// HandleScreen 开关屏
// @Router /api/v1/displays/{address}/screen [post]
func (h *HandlerContext) HandleScreen(c *gin.Context) {
	var req ScreenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "参数验证失败: "+err.Error())
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()
	if err := h.Displays.SetScreen(ctx, addressParam(c), *req.On); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"on": *req.On})
}

// HandleBrightness 设置亮度
// @Router /api/v1/displays/{address}/brightness [post]
func (h *HandlerContext) HandleBrightness(c *gin.Context) {
	var req BrightnessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "参数验证失败: "+err.Error())
		return
	}

	var percent int
	switch {
	case req.Percent != nil:
		percent = *req.Percent
	case req.Level != nil:
		percent = protocol.BrightnessFromLevel(uint8(*req.Level))
	default:
		respondBadRequest(c, "percent与level至少提供一个")
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	if err := h.Displays.SetBrightness(ctx, addressParam(c), percent); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"percent": percent})
}

// HandleClock 切换到时钟表盘
// @Router /api/v1/displays/{address}/clock [post]
func (h *HandlerContext) HandleClock(c *gin.Context) {
	var req ClockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "参数验证失败: "+err.Error())
		return
	}
	color := protocol.RGB{R: 255, G: 255, B: 255}
	if req.Color != nil {
		color = protocol.ParseRGB(req.Color)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()
	err := h.Displays.ShowClock(ctx, addressParam(c), protocol.ClockOptions{
		Style:    req.Style,
		ShowDate: req.ShowDate,
		Hour24:   req.Hour24,
		Color:    color,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, req)
}
