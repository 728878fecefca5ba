package encoder

import (
	"bytes"
	"context"
	"testing"

	"github.com/bujia-iot/iot-dotmatrix/pkg/constants"
	apperrors "github.com/bujia-iot/iot-dotmatrix/pkg/errors"
	"github.com/bujia-iot/iot-dotmatrix/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 32x32纯红图片：单片，总长3072，正文全部为ff 00 00
func TestEncodeImage_SolidRed32(t *testing.T) {
	payload, err := EncodeImage(solidImage(32, 32, red), 32, constants.DefaultChunkSize)
	require.NoError(t, err)

	require.Len(t, payload.Chunks, 1)
	assert.Equal(t, uint32(3072), payload.TotalSize)

	h, err := protocol.ParseChunkHeader(payload.Chunks[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(constants.ContentTypeImage), h.ContentType)
	assert.Equal(t, uint8(constants.SlotStandalone), h.SlotIndex)
	assert.Equal(t, uint8(constants.DefaultInterval), h.Interval)

	body := payload.Body()
	require.Len(t, body, 3072)
	for i := 0; i < len(body); i += 3 {
		if !assert.Equal(t, []byte{0xff, 0x00, 0x00}, body[i:i+3], "像素%d", i/3) {
			break
		}
	}
}

func TestEncodeImage_Resize(t *testing.T) {
	payload, err := EncodeImage(solidImage(64, 48, green), 16, constants.DefaultChunkSize)
	require.NoError(t, err)
	assert.Equal(t, uint32(16*16*3), payload.TotalSize)
}

func TestDecodeImage_Invalid(t *testing.T) {
	_, err := DecodeImage(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
	assert.True(t, apperrors.IsErrCode(err, apperrors.ErrEncodeFailed))
}

func TestImageContent_Encode(t *testing.T) {
	src := pngBytes(t, solidImage(20, 20, blue))

	t.Run("缩放", func(t *testing.T) {
		plan, err := (&ImageContent{Source: src, Size: 32}).Encode(context.Background())
		require.NoError(t, err)
		assert.Equal(t, KindImage, plan.Kind)
		require.Len(t, plan.Steps, 1)
		assert.False(t, plan.Steps[0].WaitForAck)
		assert.Equal(t, constants.ChunkHeaderSize+32*32*3, plan.Bytes())
	})

	t.Run("原始尺寸", func(t *testing.T) {
		plan, err := (&ImageContent{Source: src, Size: 32, Raw: true}).Encode(context.Background())
		require.NoError(t, err)
		assert.True(t, plan.Steps[0].WaitForAck)
		assert.Equal(t, constants.ChunkHeaderSize+20*20*3, plan.Bytes())
	})
}
