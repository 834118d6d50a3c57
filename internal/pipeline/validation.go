package pipeline

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/dvloznov/sales-tracker/internal/domain"
)

// ValidateRequest checks an upload before any work is done. Checks run in
// a fixed order and the first failure is returned. It has no side effects.
func ValidateRequest(req *UploadRequest, maxBytes int64) (domain.Entity, error) {
	if req == nil || (req.FileName == "" && len(req.Data) == 0) {
		return "", &ValidationError{Code: CodeMissingFile, Message: "no file was uploaded"}
	}
	if len(req.Data) == 0 {
		return "", &ValidationError{Code: CodeMissingFile, Message: fmt.Sprintf("file %q is empty", req.FileName)}
	}

	if strings.TrimSpace(req.Entity) == "" {
		return "", &ValidationError{Code: CodeMissingEntity, Message: "entity is required"}
	}
	entity, err := domain.ParseEntity(req.Entity)
	if err != nil {
		return "", &ValidationError{
			Code:    CodeInvalidEntity,
			Message: fmt.Sprintf("entity %q is not one of %s", req.Entity, entityList()),
		}
	}

	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if size := requestSize(req); size > maxBytes {
		return "", &ValidationError{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("file is %d bytes; the limit is %d bytes", size, maxBytes),
		}
	}

	if !acceptedType(req.ContentType, req.FileName) {
		return "", &ValidationError{
			Code:    CodeUnsupportedFileType,
			Message: fmt.Sprintf("file %q (%s) is not an Excel workbook", req.FileName, req.ContentType),
		}
	}

	return entity, nil
}

func requestSize(req *UploadRequest) int64 {
	if req.Size > int64(len(req.Data)) {
		return req.Size
	}
	return int64(len(req.Data))
}

// acceptedType accepts a workbook MIME type or, failing that, a workbook
// file extension.
func acceptedType(contentType, fileName string) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && acceptedMIMETypes[strings.ToLower(mt)] {
		return true
	}
	return acceptedExtensions[strings.ToLower(filepath.Ext(fileName))]
}

func entityList() string {
	names := make([]string, 0, len(domain.Entities()))
	for _, e := range domain.Entities() {
		names = append(names, string(e))
	}
	return strings.Join(names, ", ")
}
