package jp2view

import (
	"context"
	"image"
	"image/color"
	"io"
)

// Decode renders a whole JPEG 2000 file or codestream from r with the
// Direct producer and returns the view. opts.MaxView still applies.
func Decode(r io.Reader, opts Options) (*image.NRGBA, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	src, err := OpenBytes(data, opts.SourceOptions...)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	opts.Variant = VariantDirect
	surface := NewImageSurface()
	if _, err := RenderSource(context.Background(), src, surface, opts); err != nil {
		return nil, err
	}
	return surface.Image(), nil
}

// DecodeConfig returns the unclipped view size and colour model without
// decoding. Decode clips this size to Options.MaxView.
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}
	src, err := OpenBytes(data)
	if err != nil {
		return image.Config{}, err
	}
	defer src.Close()

	exp, mapping := ComputeExpansion(src, Resolve(src), nil)
	geom, err := RenderedGeometry(src, mapping.Reference(), exp)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		Width:      geom.Size.X,
		Height:     geom.Size.Y,
		ColorModel: colorModel(mapping),
	}, nil
}

func colorModel(m ChannelMapping) color.Model {
	if len(m.Channels) == 1 && m.Palette == nil {
		return color.GrayModel
	}
	return color.NRGBAModel
}
