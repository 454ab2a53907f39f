package api

const (
	// ReducedNotebookFilename is the download name of a reduced notebook
	ReducedNotebookFilename = "reduced_notebook.ipynb"

	// ReducedPDFFilename is the download name of a compressed PDF
	ReducedPDFFilename = "reduced_pdf.pdf"

	// NotebookMIMEType is the Content-Type of a reduced notebook download
	NotebookMIMEType = "application/octet-stream"

	// PDFMIMEType is the Content-Type of a compressed PDF download
	PDFMIMEType = "application/pdf"

	// NotebookFormField and PDFFormField are the multipart field names of uploads
	NotebookFormField = "notebook"
	PDFFormField      = "pdf"

	// MultipartOverhead is the body allowance on top of MaxFileSize for
	// multipart boundaries, headers and small form fields
	MultipartOverhead = 64 << 10

	// MaxErrorMessageLength truncates processing errors returned to clients
	MaxErrorMessageLength = 200

	// RequestIDHeader carries the per-request id
	RequestIDHeader = "X-Request-ID"
)
