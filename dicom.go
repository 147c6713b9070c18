package jp2view

import (
	"bytes"
	"fmt"

	"github.com/cocosip/go-dicom/pkg/dicom/parser"
	"github.com/cocosip/go-dicom/pkg/dicom/tag"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/imaging"
)

const dicomPreamble = 128

var dicomMagic = []byte("DICM")

// jpeg2000Syntaxes are the transfer syntaxes whose pixel data fragments are
// JPEG 2000 codestreams.
var jpeg2000Syntaxes = []*transfer.Syntax{
	transfer.JPEG2000Lossless,
	transfer.JPEG2000,
}

type dicomReader struct {
	frame []byte
}

// NewDICOMReader returns a ContainerReader for DICOM files whose pixel data
// is JPEG 2000 encapsulated. Only the first frame is exposed.
func NewDICOMReader() ContainerReader {
	return &dicomReader{}
}

func (r *dicomReader) Open(in *Input) (*Container, error) {
	if len(in.Data) < dicomPreamble+len(dicomMagic) ||
		!bytes.Equal(in.Data[dicomPreamble:dicomPreamble+len(dicomMagic)], dicomMagic) {
		return nil, ErrNotContainer
	}

	res, err := parser.Parse(bytes.NewReader(in.Data), parser.WithReadOption(parser.ReadAll))
	if err != nil {
		return nil, fmt.Errorf("%w: dicom: %v", ErrInvalidHeader, err)
	}
	if !isJPEG2000Syntax(res.TransferSyntax) {
		return nil, ErrNotContainer
	}

	pd, err := imaging.CreatePixelData(res.Dataset)
	if err != nil {
		return nil, fmt.Errorf("%w: dicom pixel data: %v", ErrInvalidHeader, err)
	}
	if !pd.IsEncapsulated() || pd.FrameCount() < 1 {
		return nil, fmt.Errorf("%w: dicom pixel data is not encapsulated", ErrInvalidHeader)
	}
	frame, err := pd.GetFrame(0)
	if err != nil {
		return nil, fmt.Errorf("%w: dicom frame 0: %v", ErrTruncatedData, err)
	}
	r.frame = frame

	info := &ContainerInfo{
		Width:    int(res.Dataset.TryGetUInt16(tag.Columns, 0)),
		Height:   int(res.Dataset.TryGetUInt16(tag.Rows, 0)),
		NumComps: int(res.Dataset.TryGetUInt16(tag.SamplesPerPixel, 0)),
	}
	if bits := int(res.Dataset.TryGetUInt16(tag.BitsStored, 0)); bits > 0 {
		info.Precision = bits
	}
	info.Signed = res.Dataset.TryGetUInt16(tag.PixelRepresentation, 0) != 0
	if info.NumComps == 1 {
		info.Method = ColorEnumerated
		info.Space = ColorGrayscale
	}

	return &Container{Format: FormatDICOM, Codestream: frame, Info: info}, nil
}

func (r *dicomReader) Close() error {
	r.frame = nil
	return nil
}

func isJPEG2000Syntax(ts *transfer.Syntax) bool {
	if ts == nil {
		return false
	}
	uid := ts.UID().UID()
	for _, s := range jpeg2000Syntaxes {
		if s.UID().UID() == uid {
			return true
		}
	}
	return false
}
