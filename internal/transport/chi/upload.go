package chi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/kbchat/internal/logger"
)

// UploadURLPrefix is the url prefix of stored uploads.
const UploadURLPrefix = "/uploads/"

const multipartMemory = 8 << 20

var preferredExtensions = map[string]string{
	"text/plain":       ".txt",
	"text/markdown":    ".md",
	"text/csv":         ".csv",
	"application/json": ".json",
	"application/pdf":  ".pdf",
	"application/zip":  ".zip",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

type uploadData struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type,omitempty"`
}

type uploadResponse struct {
	Success bool       `json:"success"`
	Code    int        `json:"code"`
	URL     string     `json:"url"`
	Data    uploadData `json:"data"`
}

// Upload handles POST /api/upload. The multipart "file" part is stored as
// <uuid><ext> under the upload directory.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.opts.MaxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest,
			fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUploadSize))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest,
				fmt.Sprintf("file exceeds %d bytes", s.opts.MaxUploadSize))
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid multipart body: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	name := uuid.NewString() + uploadExtension(header.Filename, contentType)

	size, err := s.store(file, name)
	if err != nil {
		logpkg.FromContext(r.Context()).Error("upload failed", zap.String("file", header.Filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "upload failed")
		return
	}

	url := path.Join(UploadURLPrefix, name)
	writeJSON(w, http.StatusOK, uploadResponse{
		Success: true,
		Code:    http.StatusOK,
		URL:     url,
		Data:    uploadData{URL: url, Name: header.Filename, Size: size, Type: contentType},
	})
}

func (s *Server) store(src io.Reader, name string) (int64, error) {
	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir %s: %w", s.opts.UploadDir, err)
	}
	dst := filepath.Join(s.opts.UploadDir, name)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("write %s: %w", dst, err)
	}
	return n, nil
}

// uploadExtension keeps the client file extension, falling back to the
// content type ("text/plain" -> ".txt").
func uploadExtension(filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if ext, ok := preferredExtensions[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}
