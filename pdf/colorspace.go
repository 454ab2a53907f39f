package pdf

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// objectResolver looks up indirect references. *model.XRefTable implements it.
type objectResolver interface {
	Dereference(o types.Object) (types.Object, error)
}

// colorSpace is an image color space reduced to a device space. Indexed
// spaces carry their lookup table, with components bytes per entry.
type colorSpace struct {
	device  string
	palette []byte
}

func componentCount(device string) int {
	switch device {
	case colorSpaceGray:
		return 1
	case colorSpaceRGB:
		return 3
	case colorSpaceCMYK:
		return 4
	}
	return 0
}

// resolveColorSpace maps the ColorSpace entry of an image to the device
// space its samples are laid out in. ICCBased and calibrated spaces are
// treated as their device equivalents; the profile itself is not applied.
func resolveColorSpace(xr objectResolver, obj types.Object) (colorSpace, error) {
	obj, err := xr.Dereference(obj)
	if err != nil {
		return colorSpace{}, fmt.Errorf("failed to resolve color space: %w", err)
	}

	switch cs := obj.(type) {
	case types.Name:
		if componentCount(string(cs)) == 0 {
			return colorSpace{}, fmt.Errorf("%w: color space %s", errUnsupportedImage, cs)
		}
		return colorSpace{device: string(cs)}, nil

	case types.Array:
		if len(cs) == 0 {
			return colorSpace{}, fmt.Errorf("%w: empty color space array", errUnsupportedImage)
		}
		family, _ := cs[0].(types.Name)
		switch family {
		case "ICCBased":
			return iccColorSpace(xr, cs)
		case "Indexed":
			return indexedColorSpace(xr, cs)
		case "CalGray":
			return colorSpace{device: colorSpaceGray}, nil
		case "CalRGB":
			return colorSpace{device: colorSpaceRGB}, nil
		}
		return colorSpace{}, fmt.Errorf("%w: color space %s", errUnsupportedImage, family)
	}
	return colorSpace{}, fmt.Errorf("%w: color space of type %T", errUnsupportedImage, obj)
}

// iccColorSpace picks the device space from the profile's component count,
// falling back to its Alternate entry.
func iccColorSpace(xr objectResolver, cs types.Array) (colorSpace, error) {
	if len(cs) < 2 {
		return colorSpace{}, fmt.Errorf("%w: ICCBased without profile", errUnsupportedImage)
	}
	obj, err := xr.Dereference(cs[1])
	if err != nil {
		return colorSpace{}, fmt.Errorf("failed to resolve ICC profile: %w", err)
	}
	profile, ok := obj.(types.StreamDict)
	if !ok {
		return colorSpace{}, fmt.Errorf("%w: ICC profile is not a stream", errUnsupportedImage)
	}

	if n, err := xr.Dereference(profile.Dict["N"]); err == nil {
		if n, ok := n.(types.Integer); ok {
			switch int(n) {
			case 1:
				return colorSpace{device: colorSpaceGray}, nil
			case 3:
				return colorSpace{device: colorSpaceRGB}, nil
			case 4:
				return colorSpace{device: colorSpaceCMYK}, nil
			}
		}
	}

	alt, ok := profile.Dict["Alternate"]
	if !ok {
		return colorSpace{}, fmt.Errorf("%w: ICC profile without N or Alternate", errUnsupportedImage)
	}
	base, err := resolveColorSpace(xr, alt)
	if err != nil {
		return colorSpace{}, err
	}
	if base.palette != nil {
		return colorSpace{}, fmt.Errorf("%w: indexed ICC alternate", errUnsupportedImage)
	}
	return base, nil
}

// indexedColorSpace resolves [/Indexed base hival lookup].
func indexedColorSpace(xr objectResolver, cs types.Array) (colorSpace, error) {
	if len(cs) != 4 {
		return colorSpace{}, fmt.Errorf("%w: malformed Indexed color space", errUnsupportedImage)
	}
	base, err := resolveColorSpace(xr, cs[1])
	if err != nil {
		return colorSpace{}, err
	}
	if base.palette != nil {
		return colorSpace{}, fmt.Errorf("%w: nested Indexed color space", errUnsupportedImage)
	}

	obj, err := xr.Dereference(cs[2])
	if err != nil {
		return colorSpace{}, fmt.Errorf("failed to resolve hival: %w", err)
	}
	hival, ok := obj.(types.Integer)
	if !ok || hival < 0 || hival > 255 {
		return colorSpace{}, fmt.Errorf("%w: hival %v", errUnsupportedImage, obj)
	}

	lookup, err := lookupTable(xr, cs[3])
	if err != nil {
		return colorSpace{}, err
	}
	size := (int(hival) + 1) * componentCount(base.device)
	if len(lookup) < size {
		return colorSpace{}, fmt.Errorf("lookup table too short: %d bytes, need %d", len(lookup), size)
	}
	return colorSpace{device: base.device, palette: lookup[:size]}, nil
}

func lookupTable(xr objectResolver, obj types.Object) ([]byte, error) {
	obj, err := xr.Dereference(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lookup table: %w", err)
	}
	switch lt := obj.(type) {
	case types.StringLiteral:
		return types.Unescape(lt.Value())
	case types.HexLiteral:
		return lt.Bytes()
	case types.StreamDict:
		if err := lt.Decode(); err != nil {
			return nil, fmt.Errorf("failed to decode lookup table: %w", err)
		}
		return lt.Content, nil
	}
	return nil, fmt.Errorf("%w: lookup table of type %T", errUnsupportedImage, obj)
}

// expandIndexed replaces every index sample by its palette entry. Indices
// above hival are clamped to the last entry.
func expandIndexed(indices []byte, width, height int, cs colorSpace) ([]byte, error) {
	n := componentCount(cs.device)
	if len(indices) < width*height {
		return nil, fmt.Errorf("indexed image data too short: %d bytes for %dx%d", len(indices), width, height)
	}
	last := len(cs.palette)/n - 1
	out := make([]byte, 0, width*height*n)
	for _, idx := range indices[:width*height] {
		i := int(idx)
		if i > last {
			i = last
		}
		out = append(out, cs.palette[i*n:(i+1)*n]...)
	}
	return out, nil
}
