// Package jp2view decodes JPEG 2000 images incrementally, one rectangular
// region at a time, so a viewer can show content before the whole image is
// decoded.
//
// A session opens a Source (a JP2/JPX or DICOM container, or a raw
// codestream), resolves which components feed which display channels,
// reconciles their subsampling into one view grid, and drives a
// RegionProducer until the view is complete:
//
//	surface := jp2view.NewImageSurface()
//	stats, err := jp2view.Render(ctx, "image.jp2", surface, jp2view.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = surface.WriteFile("image.png")
//
// Two producers are provided. A Decompressor decodes each region on the
// calling goroutine. A Compositor renders bands of the view in 64x64 tiles
// on a worker Pool and copies regions out of its composition buffer.
//
// Component decoding itself is delegated to a ComponentDecoder; the default
// is backed by github.com/mrjoshuak/go-jpeg2000.
package jp2view
