// Package uvc declares the USB Video Class uncompressed format and frame
// descriptors.
package uvc

import (
	"time"

	"github.com/Alia5/usbforge/usb"
	"github.com/google/uuid"
)

// Video streaming interface descriptor subtypes.
const (
	SubtypeFormatUncompressed uint8 = 0x04
	SubtypeFrameUncompressed  uint8 = 0x05
)

// Uncompressed format GUIDs.
var (
	FormatYUY2 = uuid.MustParse("32595559-0000-0010-8000-00aa00389b71")
	FormatNV12 = uuid.MustParse("3231564e-0000-0010-8000-00aa00389b71")
)

// FormatUncompressed (UVC 1.5 Uncompressed Payload Table 3-1). Its frames
// follow it and bNumFrameDescriptors is derived from them.
type FormatUncompressed struct {
	BFormatIndex       uint8
	GUIDFormat         uuid.UUID
	BBitsPerPixel      uint8
	BDefaultFrameIndex uint8
	BAspectRatioX      uint8
	BAspectRatioY      uint8
	BmInterlaceFlags   uint8
	BCopyProtect       uint8
	Frames             usb.Array[FrameUncompressed]
}

func (FormatUncompressed) DescriptorType() usb.DescriptorType { return usb.DescriptorTypeCSInterface }
func (f FormatUncompressed) Nested() usb.Collection          { return f.Frames }

func (f FormatUncompressed) Layout() []usb.Field {
	return usb.ClassSpecific{
		Type:    usb.DescriptorTypeCSInterface,
		Subtype: SubtypeFormatUncompressed,
		Fields: []usb.Field{
			usb.U8(f.BFormatIndex),
			usb.CountOf(f.Frames),
			usb.GUID(f.GUIDFormat),
			usb.U8(f.BBitsPerPixel),
			usb.U8(f.BDefaultFrameIndex),
			usb.U8(f.BAspectRatioX),
			usb.U8(f.BAspectRatioY),
			usb.U8(f.BmInterlaceFlags),
			usb.U8(f.BCopyProtect),
		},
	}.Layout()
}

// FrameUncompressed (UVC 1.5 Uncompressed Payload Table 3-2) with discrete
// frame intervals.
type FrameUncompressed struct {
	BFrameIndex               uint8
	BmCapabilities            uint8
	WWidth                    uint16
	WHeight                   uint16
	DwMinBitRate              uint32
	DwMaxBitRate              uint32
	DwMaxVideoFrameBufferSize uint32
	DefaultFrameInterval      time.Duration
	FrameIntervals            []time.Duration
}

// interval encodes d in the 100 ns units of dwFrameInterval.
func interval(d time.Duration) usb.Field { return usb.U32(uint32(d / (100 * time.Nanosecond))) }

func (FrameUncompressed) DescriptorType() usb.DescriptorType { return usb.DescriptorTypeCSInterface }
func (FrameUncompressed) Nested() usb.Collection             { return usb.Empty{} }

func (f FrameUncompressed) Layout() []usb.Field {
	fields := []usb.Field{
		usb.U8(f.BFrameIndex),
		usb.U8(f.BmCapabilities),
		usb.U16(f.WWidth),
		usb.U16(f.WHeight),
		usb.U32(f.DwMinBitRate),
		usb.U32(f.DwMaxBitRate),
		usb.U32(f.DwMaxVideoFrameBufferSize),
		interval(f.DefaultFrameInterval),
		usb.Count(len(f.FrameIntervals)),
	}
	for _, d := range f.FrameIntervals {
		fields = append(fields, interval(d))
	}
	return usb.ClassSpecific{Type: usb.DescriptorTypeCSInterface, Subtype: SubtypeFrameUncompressed, Fields: fields}.Layout()
}
