package pdf

const (
	// DefaultScale is the linear scale factor applied to every embedded image (70%)
	DefaultScale = 0.7

	// DefaultJPEGQuality is the JPEG quality used when re-encoding images
	DefaultJPEGQuality = 50
)

// PDF names used when rewriting image streams
const (
	filterDCT       = "DCTDecode"
	filterFlate     = "FlateDecode"
	filterLZW       = "LZWDecode"
	filterASCII85   = "ASCII85Decode"
	filterASCIIHex  = "ASCIIHexDecode"
	filterRunLength = "RunLengthDecode"

	colorSpaceGray = "DeviceGray"
	colorSpaceRGB  = "DeviceRGB"
	colorSpaceCMYK = "DeviceCMYK"
)

// losslessFilters can be undone by pdfcpu, leaving raw samples.
var losslessFilters = map[string]bool{
	filterFlate:     true,
	filterLZW:       true,
	filterASCII85:   true,
	filterASCIIHex:  true,
	filterRunLength: true,
}
