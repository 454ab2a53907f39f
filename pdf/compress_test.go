package pdf

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file_reducer/internal/testpdf"
)

func rgbSamples(width, height int) []byte {
	data := make([]byte, 0, width*height*3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			data = append(data, uint8(x*6), uint8(y*6), 0x80)
		}
	}
	return data
}

func jpegBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: 0x40, B: uint8(y * 8), A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

// objectTable resolves indirect references against a fixed set of objects.
type objectTable map[int]types.Object

func (t objectTable) Dereference(o types.Object) (types.Object, error) {
	ref, ok := o.(types.IndirectRef)
	if !ok {
		return o, nil
	}
	return t[int(ref.ObjectNumber)], nil
}

func iccProfile(n int) types.StreamDict {
	return types.StreamDict{Dict: types.Dict{"N": types.Integer(n)}, Raw: []byte("profile")}
}

func imageStream(width, height int, colorSpace string, filters []types.PDFFilter, raw []byte) types.StreamDict {
	d := types.Dict{
		"Type":             types.Name("XObject"),
		"Subtype":          types.Name("Image"),
		"Width":            types.Integer(width),
		"Height":           types.Integer(height),
		"ColorSpace":       types.Name(colorSpace),
		"BitsPerComponent": types.Integer(8),
	}
	return types.StreamDict{Dict: d, FilterPipeline: filters, Raw: raw}
}

func TestRecompressStream_RawRGB(t *testing.T) {
	sd := imageStream(40, 20, colorSpaceRGB, nil, rgbSamples(40, 20))
	c := NewCompressor(DefaultOptions(), nil)

	require.NoError(t, c.recompressStream(objectTable{}, &sd))

	w, _ := intEntry(sd.Dict, "Width")
	h, _ := intEntry(sd.Dict, "Height")
	assert.Equal(t, 28, w)
	assert.Equal(t, 14, h)
	filter, _ := nameEntry(sd.Dict, "Filter")
	assert.Equal(t, filterDCT, filter)
	cs, _ := nameEntry(sd.Dict, "ColorSpace")
	assert.Equal(t, colorSpaceRGB, cs)
	require.Len(t, sd.FilterPipeline, 1)
	assert.Equal(t, filterDCT, sd.FilterPipeline[0].Name)
	require.NotNil(t, sd.StreamLength)
	assert.Equal(t, int64(len(sd.Raw)), *sd.StreamLength)

	// The stream holds exactly what a quality 50 encode of the scaled image produces.
	src, err := rawToImage(rgbSamples(40, 20), 40, 20, colorSpaceRGB)
	require.NoError(t, err)
	want, err := encodeJPEG(scaleImage(src, 28, 14), DefaultJPEGQuality)
	require.NoError(t, err)
	assert.Equal(t, want, sd.Raw)

	decoded, err := jpeg.Decode(bytes.NewReader(sd.Raw))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 28, 14), decoded.Bounds())
}

func TestRecompressStream_JPEG(t *testing.T) {
	sd := imageStream(30, 30, colorSpaceRGB, []types.PDFFilter{{Name: filterDCT}}, jpegBytes(t, 30, 30))
	c := NewCompressor(DefaultOptions(), nil)

	require.NoError(t, c.recompressStream(objectTable{}, &sd))

	decoded, err := jpeg.Decode(bytes.NewReader(sd.Raw))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 21, 21), decoded.Bounds())
}

func TestRecompressStream_GrayStaysGray(t *testing.T) {
	sd := imageStream(10, 10, colorSpaceGray, nil, bytes.Repeat([]byte{0x7f}, 100))
	c := NewCompressor(DefaultOptions(), nil)

	require.NoError(t, c.recompressStream(objectTable{}, &sd))

	cs, _ := nameEntry(sd.Dict, "ColorSpace")
	assert.Equal(t, colorSpaceGray, cs)
	w, _ := intEntry(sd.Dict, "Width")
	assert.Equal(t, 7, w)
}

func TestRecompressStream_ICCBased(t *testing.T) {
	tests := []struct {
		name    string
		profile types.StreamDict
		samples []byte
		wantCS  string
	}{
		{"rgb profile", iccProfile(3), rgbSamples(40, 20), colorSpaceRGB},
		{"gray profile", iccProfile(1), bytes.Repeat([]byte{0x40}, 40*20), colorSpaceGray},
		{"cmyk profile", iccProfile(4), bytes.Repeat([]byte{0x10, 0x20, 0x30, 0x00}, 40*20), colorSpaceRGB},
		{
			"alternate only",
			types.StreamDict{Dict: types.Dict{"Alternate": types.Name(colorSpaceRGB)}},
			rgbSamples(40, 20),
			colorSpaceRGB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd := imageStream(40, 20, colorSpaceRGB, nil, tt.samples)
			sd.Dict["ColorSpace"] = types.Array{types.Name("ICCBased"), *types.NewIndirectRef(9, 0)}
			c := NewCompressor(DefaultOptions(), nil)

			require.NoError(t, c.recompressStream(objectTable{9: tt.profile}, &sd))

			w, _ := intEntry(sd.Dict, "Width")
			h, _ := intEntry(sd.Dict, "Height")
			assert.Equal(t, 28, w)
			assert.Equal(t, 14, h)
			cs, _ := nameEntry(sd.Dict, "ColorSpace")
			assert.Equal(t, tt.wantCS, cs)

			decoded, err := jpeg.Decode(bytes.NewReader(sd.Raw))
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 28, 14), decoded.Bounds())
		})
	}
}

func TestRecompressStream_Indexed(t *testing.T) {
	// Two palette entries: pure red and pure blue.
	palette := []byte{0xff, 0x00, 0x00, 0x00, 0x00, 0xff}
	indices := make([]byte, 20*20)
	for i := range indices {
		if i%20 >= 10 {
			indices[i] = 1
		}
	}

	tests := []struct {
		name   string
		lookup types.Object
		table  objectTable
	}{
		{"hex lookup", types.HexLiteral("ff00000000ff"), objectTable{}},
		{"string lookup", types.StringLiteral("\377\000\000\000\000\377"), objectTable{}},
		{"stream lookup", *types.NewIndirectRef(7, 0), objectTable{7: types.StreamDict{Dict: types.Dict{}, Raw: palette}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd := imageStream(20, 20, colorSpaceRGB, nil, indices)
			sd.Dict["ColorSpace"] = types.Array{types.Name("Indexed"), types.Name(colorSpaceRGB), types.Integer(1), tt.lookup}

			require.NoError(t, NewCompressor(DefaultOptions(), nil).recompressStream(tt.table, &sd))

			cs, _ := nameEntry(sd.Dict, "ColorSpace")
			assert.Equal(t, colorSpaceRGB, cs)
			decoded, err := jpeg.Decode(bytes.NewReader(sd.Raw))
			require.NoError(t, err)
			require.Equal(t, image.Rect(0, 0, 14, 14), decoded.Bounds())

			r, _, b, _ := decoded.At(1, 7).RGBA()
			assert.Greater(t, r, b, "left half is red")
			r, _, b, _ = decoded.At(12, 7).RGBA()
			assert.Greater(t, b, r, "right half is blue")
		})
	}
}

func TestExpandIndexed_ClampsToHival(t *testing.T) {
	cs := colorSpace{device: colorSpaceGray, palette: []byte{0x00, 0x80}}
	got, err := expandIndexed([]byte{0, 1, 5, 1}, 2, 2, cs)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x80, 0x80, 0x80}, got)

	_, err = expandIndexed([]byte{0}, 2, 2, cs)
	assert.Error(t, err)
}

func TestRecompressStream_Unsupported(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(sd *types.StreamDict)
	}{
		{"not an image", func(sd *types.StreamDict) { sd.Dict["Subtype"] = types.Name("Form") }},
		{"image mask", func(sd *types.StreamDict) { sd.Dict["ImageMask"] = types.Boolean(true) }},
		{"color key mask", func(sd *types.StreamDict) { sd.Dict["Mask"] = types.Array{types.Integer(0), types.Integer(0)} }},
		{"decode array", func(sd *types.StreamDict) { sd.Dict["Decode"] = types.Array{types.Integer(1), types.Integer(0)} }},
		{"16 bit", func(sd *types.StreamDict) { sd.Dict["BitsPerComponent"] = types.Integer(16) }},
		{"malformed indexed color space", func(sd *types.StreamDict) {
			sd.Dict["ColorSpace"] = types.Array{types.Name("Indexed"), types.Name("DeviceRGB")}
		}},
		{"dangling ICC profile", func(sd *types.StreamDict) {
			sd.Dict["ColorSpace"] = types.Array{types.Name("ICCBased"), *types.NewIndirectRef(99, 0)}
		}},
		{"jbig2", func(sd *types.StreamDict) { sd.FilterPipeline = []types.PDFFilter{{Name: "JBIG2Decode"}} }},
		{"unknown device space", func(sd *types.StreamDict) { sd.Dict["ColorSpace"] = types.Name("Pattern") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd := imageStream(4, 4, colorSpaceRGB, nil, rgbSamples(4, 4))
			tt.mutate(&sd)
			raw := sd.Raw

			err := NewCompressor(DefaultOptions(), nil).recompressStream(objectTable{}, &sd)

			require.Error(t, err)
			assert.True(t, errors.Is(err, errUnsupportedImage), "got %v", err)
			assert.Equal(t, raw, sd.Raw)
		})
	}
}

func TestNewCompressor_FallsBackToDefaults(t *testing.T) {
	c := NewCompressor(Options{Scale: 3, JPEGQuality: 0}, nil)
	assert.Equal(t, DefaultScale, c.opts.Scale)
	assert.Equal(t, DefaultJPEGQuality, c.opts.JPEGQuality)
}

func imageDicts(t *testing.T, data []byte) []types.StreamDict {
	t.Helper()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	require.NoError(t, err)

	var images []types.StreamDict
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, _ := nameEntry(sd.Dict, "Subtype"); subtype == "Image" {
			images = append(images, sd)
		}
	}
	return images
}

func TestCompress_EndToEnd(t *testing.T) {
	rgb := testpdf.Image{Name: "Im0", Width: 40, Height: 20, ColorSpace: colorSpaceRGB, Data: rgbSamples(40, 20)}
	photo := testpdf.Image{Name: "Im1", Width: 30, Height: 30, ColorSpace: colorSpaceRGB, Filter: filterDCT, Data: jpegBytes(t, 30, 30)}
	input := testpdf.Build([]testpdf.Image{rgb, photo}, []testpdf.Image{rgb})

	var out bytes.Buffer
	result, err := CompressPDF(context.Background(), bytes.NewReader(input), &out, DefaultOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, 2, result.ImagesFound, "shared image counted once")
	assert.Equal(t, 2, result.ImagesRecompressed)
	assert.Equal(t, 0, result.ImagesSkipped)
	assert.Equal(t, int64(len(input)), result.OriginalSize)
	assert.Equal(t, int64(out.Len()), result.CompressedSize)
	require.True(t, bytes.HasPrefix(out.Bytes(), []byte("%PDF")))

	var sizes []image.Rectangle
	for _, sd := range imageDicts(t, out.Bytes()) {
		filter, _ := nameEntry(sd.Dict, "Filter")
		assert.Equal(t, filterDCT, filter)
		decoded, err := jpeg.Decode(bytes.NewReader(sd.Raw))
		require.NoError(t, err)
		sizes = append(sizes, decoded.Bounds())
	}
	assert.ElementsMatch(t, []image.Rectangle{image.Rect(0, 0, 28, 14), image.Rect(0, 0, 21, 21)}, sizes)
}

func TestCompress_ICCBasedImage(t *testing.T) {
	icc := testpdf.Image{Name: "Im0", Width: 40, Height: 20, ColorSpace: colorSpaceRGB, ICCComponents: 3, Data: rgbSamples(40, 20)}
	input := testpdf.Build([]testpdf.Image{icc})

	var out bytes.Buffer
	result, err := CompressPDF(context.Background(), bytes.NewReader(input), &out, DefaultOptions(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ImagesRecompressed)
	assert.Equal(t, 0, result.ImagesSkipped)

	images := imageDicts(t, out.Bytes())
	require.Len(t, images, 1)
	w, _ := intEntry(images[0].Dict, "Width")
	assert.Equal(t, 28, w)
	cs, _ := nameEntry(images[0].Dict, "ColorSpace")
	assert.Equal(t, colorSpaceRGB, cs)
}

func TestCompress_PageSelection(t *testing.T) {
	first := testpdf.Image{Name: "Im0", Width: 20, Height: 20, ColorSpace: colorSpaceGray, Data: bytes.Repeat([]byte{0x10}, 400)}
	second := testpdf.Image{Name: "Im1", Width: 10, Height: 10, ColorSpace: colorSpaceGray, Data: bytes.Repeat([]byte{0x20}, 100)}
	input := testpdf.Build([]testpdf.Image{first}, []testpdf.Image{second})

	opts := DefaultOptions()
	opts.Pages = "2"
	var out bytes.Buffer
	result, err := CompressPDF(context.Background(), bytes.NewReader(input), &out, opts, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ImagesFound)
	assert.Equal(t, 1, result.ImagesRecompressed)

	widths := map[int]bool{}
	for _, sd := range imageDicts(t, out.Bytes()) {
		w, _ := intEntry(sd.Dict, "Width")
		widths[w] = true
	}
	assert.Equal(t, map[int]bool{20: true, 7: true}, widths)
}

func TestCompress_Errors(t *testing.T) {
	t.Run("corrupt input", func(t *testing.T) {
		var out bytes.Buffer
		_, err := CompressPDF(context.Background(), bytes.NewReader([]byte("%PDF-1.7\ngarbage")), &out, DefaultOptions(), nil)
		assert.Error(t, err)
	})

	t.Run("page out of range", func(t *testing.T) {
		input := testpdf.Build([]testpdf.Image{{Name: "Im0", Width: 2, Height: 2, ColorSpace: colorSpaceGray, Data: []byte{1, 2, 3, 4}}})
		opts := DefaultOptions()
		opts.Pages = "5"
		var out bytes.Buffer
		_, err := CompressPDF(context.Background(), bytes.NewReader(input), &out, opts, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidPageSpec))
	})

	t.Run("cancelled context", func(t *testing.T) {
		input := testpdf.Build([]testpdf.Image{{Name: "Im0", Width: 2, Height: 2, ColorSpace: colorSpaceGray, Data: []byte{1, 2, 3, 4}}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var out bytes.Buffer
		_, err := CompressPDF(ctx, bytes.NewReader(input), &out, DefaultOptions(), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestResult_CompressionRatio(t *testing.T) {
	r := &Result{OriginalSize: 200, CompressedSize: 50}
	r.calculateCompressionRatio()
	assert.InDelta(t, 75.0, r.CompressionRatio, 1e-9)

	empty := &Result{}
	empty.calculateCompressionRatio()
	assert.Zero(t, empty.CompressionRatio)
}
