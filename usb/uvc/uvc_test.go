package uvc_test

import (
	"testing"
	"time"

	"github.com/Alia5/usbforge/usb"
	"github.com/Alia5/usbforge/usb/uvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUncompressedFormat(t *testing.T) {
	const fps30 = 333333 * 100 * time.Nanosecond
	frame := func(idx uint8, w, h uint16) uvc.FrameUncompressed {
		return uvc.FrameUncompressed{
			BFrameIndex:               idx,
			WWidth:                    w,
			WHeight:                   h,
			DwMinBitRate:              uint32(w) * uint32(h) * 16 * 30,
			DwMaxBitRate:              uint32(w) * uint32(h) * 16 * 30,
			DwMaxVideoFrameBufferSize: uint32(w) * uint32(h) * 2,
			DefaultFrameInterval:      fps30,
			FrameIntervals:            []time.Duration{fps30},
		}
	}
	f := uvc.FormatUncompressed{
		BFormatIndex:       1,
		GUIDFormat:         uvc.FormatYUY2,
		BBitsPerPixel:      16,
		BDefaultFrameIndex: 1,
		Frames:             usb.Array[uvc.FrameUncompressed]{frame(1, 640, 480), frame(2, 320, 240)},
	}

	d, err := usb.Compose(f)
	require.NoError(t, err)
	b := d.Bytes()

	require.Equal(t, 27+30+30, d.TotalLength())
	assert.Equal(t, []byte{0x1B, 0x24, 0x04, 0x01, 0x02}, b[:5])
	assert.Equal(t, []byte{'Y', 'U', 'Y', '2', 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}, b[5:21])
	assert.Equal(t, uint8(16), b[21])

	fr := b[27:57]
	assert.Equal(t, []byte{0x1E, 0x24, 0x05, 0x01}, fr[:4])
	assert.Equal(t, []byte{0x80, 0x02, 0xE0, 0x01}, fr[5:9])
	assert.Equal(t, []byte{0x15, 0x16, 0x05, 0x00}, fr[21:25])
	assert.Equal(t, uint8(1), fr[25])
	assert.Equal(t, []byte{0x15, 0x16, 0x05, 0x00}, fr[26:30])
}
