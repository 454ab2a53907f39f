// Package testpdf assembles small PDF documents with image XObjects for tests.
package testpdf

import (
	"bytes"
	"fmt"
	"strings"
)

// Image is an image XObject. Data is written verbatim, so it must already be
// encoded according to Filter.
type Image struct {
	Name       string
	Width      int
	Height     int
	ColorSpace string
	Filter     string
	Data       []byte
	// ICCComponents, when set, replaces ColorSpace by [/ICCBased ref] pointing
	// to a profile stream with /N ICCComponents and ColorSpace as /Alternate.
	ICCComponents int
}

// Build returns a PDF with one page per entry of pages. Each page draws its
// images; an image listed on several pages (same Name) is stored once.
func Build(pages ...[]Image) []byte {
	var buf bytes.Buffer
	var offsets []int

	begin := func() int {
		offsets = append(offsets, buf.Len())
		nr := len(offsets)
		fmt.Fprintf(&buf, "%d 0 obj\n", nr)
		return nr
	}
	stream := func(dict string, data []byte) int {
		nr := begin()
		fmt.Fprintf(&buf, "<< %s /Length %d >>\nstream\n", dict, len(data))
		buf.Write(data)
		buf.WriteString("\nendstream\nendobj\n")
		return nr
	}

	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	// Object numbers are assigned in write order: catalog, page tree, then
	// pages with their content streams and images.
	pageCount := len(pages)
	firstPage := 3

	begin()
	buf.WriteString("<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, pageCount)
	// Page i occupies firstPage+2*i (page) and firstPage+2*i+1 (content).
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", firstPage+2*i)
	}
	begin()
	fmt.Fprintf(&buf, "<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), pageCount)

	// Images follow the pages and contents.
	imageObj := make(map[string]int)
	next := firstPage + 2*pageCount
	var ordered []Image
	for _, page := range pages {
		for _, img := range page {
			if _, ok := imageObj[img.Name]; !ok {
				imageObj[img.Name] = next
				next++
				ordered = append(ordered, img)
			}
		}
	}

	for _, page := range pages {
		var xobjects, content strings.Builder
		for j, img := range page {
			fmt.Fprintf(&xobjects, "/%s %d 0 R ", img.Name, imageObj[img.Name])
			fmt.Fprintf(&content, "q %d 0 0 %d %d %d cm /%s Do Q\n", img.Width, img.Height, 10+j*5, 10+j*5, img.Name)
		}
		pageNr := begin()
		fmt.Fprintf(&buf, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << %s>> >> /Contents %d 0 R >>\nendobj\n",
			xobjects.String(), pageNr+1)
		stream("", []byte(content.String()))
	}

	// ICC profiles follow the images.
	var profiles []Image
	for _, img := range ordered {
		colorSpace := "/" + img.ColorSpace
		if img.ICCComponents > 0 {
			colorSpace = fmt.Sprintf("[/ICCBased %d 0 R]", next)
			next++
			profiles = append(profiles, img)
		}
		dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace %s /BitsPerComponent 8",
			img.Width, img.Height, colorSpace)
		if img.Filter != "" {
			dict += " /Filter /" + img.Filter
		}
		stream(dict, img.Data)
	}
	for _, img := range profiles {
		stream(fmt.Sprintf("/N %d /Alternate /%s", img.ICCComponents, img.ColorSpace), []byte("icc profile"))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
