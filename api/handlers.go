package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"file_reducer/notebook"
	"file_reducer/pdf"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errNoFile       = errors.New("no file uploaded")
	errBadExtension = errors.New("unsupported file extension")
	errTooLarge     = errors.New("file too large")
	errNotPDF       = errors.New("invalid PDF file: header does not match")
)

// HandleReduceNotebook reduces an uploaded .ipynb and returns it for download.
func HandleReduceNotebook(c *gin.Context, config *Config, logger *zap.Logger) {
	data, filename, err := readUpload(c, NotebookFormField, ".ipynb", config.MaxFileSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log := logger.With(zap.String("request_id", c.GetString(requestIDKey)), zap.String("upload", filename))

	nb, err := notebook.Read(bytes.NewReader(data))
	if err != nil {
		respondProcessingError(c, log, err)
		return
	}

	stats := notebook.NewReducer(config.Notebook, log).Reduce(nb)

	var buf bytes.Buffer
	if err := nb.Write(&buf); err != nil {
		respondProcessingError(c, log, err)
		return
	}

	log.Info("Notebook reduced",
		zap.Int("original_size", len(data)),
		zap.Int("reduced_size", buf.Len()),
		zap.Int("cells_dropped", stats.CellsDropped),
		zap.Int("outputs_truncated", stats.OutputsTruncated),
		zap.Int("images_reencoded", stats.ImagesReencoded))

	sendDownload(c, ReducedNotebookFilename, NotebookMIMEType, int64(len(data)), buf.Bytes())
}

// HandleCompressPDF compresses the images of an uploaded PDF and returns it for download.
func HandleCompressPDF(c *gin.Context, config *Config, logger *zap.Logger) {
	data, filename, err := readUpload(c, PDFFormField, ".pdf", config.MaxFileSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errNotPDF.Error()})
		return
	}
	log := logger.With(zap.String("request_id", c.GetString(requestIDKey)), zap.String("upload", filename))

	opts := config.PDF
	opts.Pages = c.PostForm("pages")

	var buf bytes.Buffer
	if _, err := pdf.CompressPDF(c.Request.Context(), bytes.NewReader(data), &buf, opts, log); err != nil {
		if errors.Is(err, pdf.ErrInvalidPageSpec) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondProcessingError(c, log, err)
		return
	}

	sendDownload(c, ReducedPDFFilename, PDFMIMEType, int64(len(data)), buf.Bytes())
}

// readUpload reads the multipart file in field fully into memory after
// checking its extension and size. The request body is capped at maxSize
// plus MultipartOverhead, so larger uploads are cut off while streaming.
func readUpload(c *gin.Context, field, ext string, maxSize int64) ([]byte, string, error) {
	bodyLimit := maxSize + MultipartOverhead
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)

	header, err := c.FormFile(field)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) || c.Request.ContentLength > bodyLimit {
			return nil, "", fmt.Errorf("%w: request exceeds maximum allowed %d bytes", errTooLarge, maxSize)
		}
		return nil, "", errNoFile
	}
	file, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ext) {
		return nil, "", fmt.Errorf("%w: expected %s, got %q", errBadExtension, ext, header.Filename)
	}
	if header.Size > maxSize {
		return nil, "", fmt.Errorf("%w: file size %d exceeds maximum allowed %d bytes", errTooLarge, header.Size, maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, "", fmt.Errorf("%w: exceeds maximum allowed %d bytes", errTooLarge, maxSize)
	}
	return data, header.Filename, nil
}

// respondProcessingError logs err and returns it to the client, truncated.
func respondProcessingError(c *gin.Context, logger *zap.Logger, err error) {
	logger.Error("Processing failed", zap.Error(err))
	errorMsg := err.Error()
	if len(errorMsg) > MaxErrorMessageLength {
		errorMsg = errorMsg[:MaxErrorMessageLength] + "..."
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": errorMsg})
}

func sendDownload(c *gin.Context, filename, contentType string, originalSize int64, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("X-Original-Size", strconv.FormatInt(originalSize, 10))
	c.Header("X-Reduced-Size", strconv.Itoa(len(body)))
	c.Data(http.StatusOK, contentType, body)
}
