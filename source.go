package jp2view

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"
)

var (
	gzipMagic = []byte{0x1F, 0x8B}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// DecoderFactory builds the decoding engine for one codestream.
type DecoderFactory func(codestream []byte, hdr *Header) (ComponentDecoder, error)

type sourceConfig struct {
	readers    []func() ContainerReader
	newDecoder DecoderFactory
	logger     log.FieldLogger
}

// SourceOption configures Open.
type SourceOption func(*sourceConfig)

// WithContainerReaders replaces the container readers tried before the raw
// codestream fallback. Each factory is called once per Open.
func WithContainerReaders(readers ...func() ContainerReader) SourceOption {
	return func(c *sourceConfig) {
		c.readers = readers
	}
}

// WithDecoderFactory replaces the default decoding engine.
func WithDecoderFactory(f DecoderFactory) SourceOption {
	return func(c *sourceConfig) {
		c.newDecoder = f
	}
}

// WithSourceLogger sets the logger used while opening.
func WithSourceLogger(l log.FieldLogger) SourceOption {
	return func(c *sourceConfig) {
		c.logger = l
	}
}

// DefaultContainerReaders returns the readers Open tries when none are configured.
func DefaultContainerReaders() []func() ContainerReader {
	return []func() ContainerReader{NewJP2Reader, NewDICOMReader}
}

// Source is an open compressed image: one codestream, its container
// metadata if it had a wrapper, and the engine that decodes it.
// It must be closed exactly once, after every engine using it has finished.
type Source struct {
	Format ContainerFormat
	Header *Header
	Info   *ContainerInfo // nil for raw codestreams

	decoder   ComponentDecoder
	container ContainerReader
	closed    bool
}

// NewSource wraps an already parsed header and a decoding engine.
func NewSource(hdr *Header, info *ContainerInfo, dec ComponentDecoder) *Source {
	return &Source{Format: FormatRaw, Header: hdr, Info: info, decoder: dec}
}

// Open reads path and interprets it first as a container and then as a raw codestream.
func Open(path string, opts ...SourceOption) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	return open(&Input{Path: path, Data: data}, opts...)
}

// OpenBytes is Open for an in-memory file.
func OpenBytes(data []byte, opts ...SourceOption) (*Source, error) {
	return open(&Input{Data: data}, opts...)
}

func open(in *Input, opts ...SourceOption) (*Source, error) {
	cfg := sourceConfig{
		readers:    DefaultContainerReaders(),
		newDecoder: NewJ2KDecoder,
		logger:     log.StandardLogger(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	if err := unwrap(in); err != nil {
		return nil, err
	}

	for _, newReader := range cfg.readers {
		rd := newReader()
		c, err := rd.Open(in)
		if errors.Is(err, ErrNotContainer) {
			// Release the failed attempt before trying anything else.
			if cerr := rd.Close(); cerr != nil {
				return nil, fmt.Errorf("%w: releasing container reader: %v", ErrUnreadableSource, cerr)
			}
			continue
		}
		if err != nil {
			rd.Close()
			return nil, fmt.Errorf("%w: %w", ErrUnreadableSource, err)
		}

		src, err := newSource(c.Codestream, c.Format, c.Info, cfg.newDecoder)
		if err != nil {
			rd.Close()
			return nil, err
		}
		src.container = rd
		cfg.logger.WithFields(log.Fields{"path": in.Path, "format": src.Format}).Debug("opened container")
		return src, nil
	}

	if !isCodestream(in.Data) {
		return nil, fmt.Errorf("%w: neither a known container nor a raw codestream", ErrUnreadableSource)
	}
	src, err := newSource(in.Data, FormatRaw, nil, cfg.newDecoder)
	if err != nil {
		return nil, err
	}
	cfg.logger.WithField("path", in.Path).Debug("opened raw codestream")
	return src, nil
}

func newSource(codestream []byte, format ContainerFormat, info *ContainerInfo, newDecoder DecoderFactory) (*Source, error) {
	hdr, err := ParseHeader(codestream)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableSource, err)
	}
	dec, err := newDecoder(codestream, hdr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableSource, err)
	}
	return &Source{Format: format, Header: hdr, Info: info, decoder: dec}, nil
}

// unwrap replaces gzip or zstd compressed input with its payload.
func unwrap(in *Input) error {
	var (
		out []byte
		err error
	)
	switch {
	case bytes.HasPrefix(in.Data, gzipMagic):
		var zr *gzip.Reader
		zr, err = gzip.NewReader(bytes.NewReader(in.Data))
		if err == nil {
			out, err = io.ReadAll(zr)
			zr.Close()
		}
	case bytes.HasPrefix(in.Data, zstdMagic):
		var zr *zstd.Decoder
		zr, err = zstd.NewReader(nil)
		if err == nil {
			out, err = zr.DecodeAll(in.Data, nil)
			zr.Close()
		}
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: decompressing input: %v", ErrUnreadableSource, err)
	}
	in.Data = out
	return nil
}

// NumComponents returns the number of codestream components.
func (s *Source) NumComponents() int {
	return len(s.Header.Components)
}

// Component returns the descriptor of component c.
func (s *Source) Component(c int) (ComponentDescriptor, error) {
	return s.Header.Component(c)
}

// Decoder returns the decoding engine.
func (s *Source) Decoder() ComponentDecoder {
	return s.decoder
}

// Close releases the container reader and the decoding engine.
func (s *Source) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	var errs []error
	if c, ok := s.decoder.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if s.container != nil {
		errs = append(errs, s.container.Close())
	}
	s.decoder = nil
	s.container = nil
	return errors.Join(errs...)
}
