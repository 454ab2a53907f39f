package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"
)

func init() {
	// Keep pdfcpu from creating a user config directory on first use.
	api.DisableConfigDir()
}

// Options controls image recompression.
type Options struct {
	Scale       float64 `json:"scale"`
	JPEGQuality int     `json:"jpeg_quality"`
	// Pages restricts recompression to a page selection like "1,3-5". Empty means all pages.
	Pages string `json:"pages,omitempty"`
}

// DefaultOptions returns 70% scaling at JPEG quality 50 over all pages.
func DefaultOptions() Options {
	return Options{Scale: DefaultScale, JPEGQuality: DefaultJPEGQuality}
}

// Result describes a compression run
type Result struct {
	PageCount          int     `json:"page_count"`
	ImagesFound        int     `json:"images_found"`
	ImagesRecompressed int     `json:"images_recompressed"`
	ImagesSkipped      int     `json:"images_skipped"`
	OriginalSize       int64   `json:"original_size"`
	CompressedSize     int64   `json:"compressed_size"`
	CompressionRatio   float64 `json:"compression_ratio"`
}

// calculateCompressionRatio sets the saved share of the original size, in percent.
func (r *Result) calculateCompressionRatio() {
	if r.OriginalSize > 0 {
		r.CompressionRatio = (float64(r.OriginalSize) - float64(r.CompressedSize)) / float64(r.OriginalSize) * 100
	}
}

// Compressor downsamples and re-encodes the raster images of PDF documents.
type Compressor struct {
	opts   Options
	logger *zap.Logger
}

func NewCompressor(opts Options, logger *zap.Logger) *Compressor {
	if opts.Scale <= 0 || opts.Scale > 1 {
		opts.Scale = DefaultScale
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compressor{opts: opts, logger: logger}
}

// CompressPDF is a shorthand for NewCompressor(opts, logger).Compress.
func CompressPDF(ctx context.Context, rs io.ReadSeeker, w io.Writer, opts Options, logger *zap.Logger) (*Result, error) {
	return NewCompressor(opts, logger).Compress(ctx, rs, w)
}

// Compress reads the PDF from rs, replaces every supported image on the
// selected pages by a scaled JPEG and writes the document to w. Text and
// vector content are left as they are.
func (c *Compressor) Compress(ctx context.Context, rs io.ReadSeeker, w io.Writer) (*Result, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to determine input size: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind input: %w", err)
	}

	pdfCtx, err := api.ReadValidateAndOptimize(rs, newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	pages, err := selectPages(c.opts.Pages, pdfCtx.PageCount)
	if err != nil {
		return nil, err
	}

	result := &Result{PageCount: pdfCtx.PageCount, OriginalSize: size}
	seen := make(map[int]bool)
	for _, pageNr := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		objNrs := pdfcpu.ImageObjNrs(pdfCtx, pageNr)
		sort.Ints(objNrs)
		for _, objNr := range objNrs {
			// Images shared between pages are rewritten once.
			if seen[objNr] {
				continue
			}
			seen[objNr] = true
			result.ImagesFound++

			if err := c.recompressObject(pdfCtx, objNr); err != nil {
				result.ImagesSkipped++
				c.logger.Debug("Skipping image",
					zap.Int("page", pageNr),
					zap.Int("obj", objNr),
					zap.Error(err))
				continue
			}
			result.ImagesRecompressed++
		}
	}

	cw := &countingWriter{w: w}
	if err := api.WriteContext(pdfCtx, cw); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	result.CompressedSize = cw.n
	result.calculateCompressionRatio()

	c.logger.Info("PDF compressed",
		zap.Int("pages", result.PageCount),
		zap.Int("images_found", result.ImagesFound),
		zap.Int("images_recompressed", result.ImagesRecompressed),
		zap.Int("images_skipped", result.ImagesSkipped),
		zap.Int64("original_size", result.OriginalSize),
		zap.Int64("compressed_size", result.CompressedSize))
	return result, nil
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.Cmd = model.OPTIMIZE
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func (c *Compressor) recompressObject(pdfCtx *model.Context, objNr int) error {
	entry, ok := pdfCtx.Table[objNr]
	if !ok || entry == nil || entry.Free {
		return fmt.Errorf("object %d not found", objNr)
	}
	sd, ok := entry.Object.(types.StreamDict)
	if !ok {
		return fmt.Errorf("object %d is not a stream", objNr)
	}
	if err := c.recompressStream(pdfCtx.XRefTable, &sd); err != nil {
		return err
	}
	entry.Object = sd
	return nil
}

// recompressStream replaces the image in sd by a scaled DCTDecode JPEG.
func (c *Compressor) recompressStream(xr objectResolver, sd *types.StreamDict) error {
	if subtype, _ := nameEntry(sd.Dict, "Subtype"); subtype != "Image" {
		return fmt.Errorf("%w: subtype %q", errUnsupportedImage, subtype)
	}
	if b, ok := sd.Dict["ImageMask"].(types.Boolean); ok && bool(b) {
		return fmt.Errorf("%w: image mask", errUnsupportedImage)
	}
	if _, ok := sd.Dict["Mask"].(types.Array); ok {
		return fmt.Errorf("%w: color key mask", errUnsupportedImage)
	}
	if _, ok := sd.Dict["Decode"]; ok {
		return fmt.Errorf("%w: decode array", errUnsupportedImage)
	}

	img, err := decodeStream(xr, sd)
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	width, height := scaledSize(bounds.Dx(), bounds.Dy(), c.opts.Scale)
	scaled := scaleImage(img, width, height)
	data, err := encodeJPEG(scaled, c.opts.JPEGQuality)
	if err != nil {
		return err
	}

	colorSpace := colorSpaceRGB
	if isGray(scaled) {
		colorSpace = colorSpaceGray
	}

	d := sd.Dict
	d["Width"] = types.Integer(width)
	d["Height"] = types.Integer(height)
	d["BitsPerComponent"] = types.Integer(8)
	d["ColorSpace"] = types.Name(colorSpace)
	d["Filter"] = types.Name(filterDCT)
	d["Length"] = types.Integer(len(data))
	delete(d, "DecodeParms")

	length := int64(len(data))
	sd.FilterPipeline = []types.PDFFilter{{Name: filterDCT}}
	sd.Raw = data
	sd.Content = nil
	sd.StreamLength = &length
	sd.StreamLengthObjNr = nil
	return nil
}

// decodeStream turns an image stream into an image.Image. JPEG data is
// decoded directly, other supported streams are unfiltered by pdfcpu and
// interpreted as 8-bit samples of their resolved color space.
func decodeStream(xr objectResolver, sd *types.StreamDict) (image.Image, error) {
	filters := sd.FilterPipeline
	if len(filters) == 1 && filters[0].Name == filterDCT {
		img, err := jpeg.Decode(bytes.NewReader(sd.Raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode jpeg: %w", err)
		}
		if _, ok := img.(*image.CMYK); ok {
			return nil, fmt.Errorf("%w: cmyk jpeg", errUnsupportedImage)
		}
		return img, nil
	}

	for _, f := range filters {
		if !losslessFilters[f.Name] {
			return nil, fmt.Errorf("%w: filter %s", errUnsupportedImage, f.Name)
		}
	}

	if bpc, ok := intEntry(sd.Dict, "BitsPerComponent"); !ok || bpc != 8 {
		return nil, fmt.Errorf("%w: bits per component", errUnsupportedImage)
	}
	cs, err := resolveColorSpace(xr, sd.Dict["ColorSpace"])
	if err != nil {
		return nil, err
	}
	width, wok := intEntry(sd.Dict, "Width")
	height, hok := intEntry(sd.Dict, "Height")
	if !wok || !hok || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: missing dimensions", errUnsupportedImage)
	}

	if sd.Content == nil {
		if err := sd.Decode(); err != nil {
			return nil, fmt.Errorf("failed to decode stream: %w", err)
		}
	}
	samples := sd.Content
	if cs.palette != nil {
		if samples, err = expandIndexed(samples, width, height, cs); err != nil {
			return nil, err
		}
	}
	return rawToImage(samples, width, height, cs.device)
}

func nameEntry(d types.Dict, key string) (string, bool) {
	n, ok := d[key].(types.Name)
	return string(n), ok
}

func intEntry(d types.Dict, key string) (int, bool) {
	i, ok := d[key].(types.Integer)
	return int(i), ok
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
