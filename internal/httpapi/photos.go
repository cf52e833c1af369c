package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"fixit/pkg/schema"
)

const multipartMemory = 8 << 20

// readPhotos reads every "photos" part of a multipart request in order.
// Parts over the transfer cap are not read; they come back as refusals so the
// machine can apply the admission policy to them. Type, size and count checks
// happen in the machine.
func (s *Server) readPhotos(w http.ResponseWriter, r *http.Request) ([]schema.Photo, []schema.Rejection, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxPhotoBytes*schema.MaxPhotos+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, nil, fmt.Errorf("parse multipart form: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[schema.FieldPhotos]
	if len(headers) == 0 {
		return nil, nil, fmt.Errorf("no %q parts in request", schema.FieldPhotos)
	}

	photos := make([]schema.Photo, 0, len(headers))
	var refused []schema.Rejection
	for _, fh := range headers {
		if fh.Size > s.maxPhotoBytes {
			refused = append(refused, schema.Rejection{Name: fh.Filename, Reason: "file is too large to upload"})
			continue
		}
		f, err := fh.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, s.maxPhotoBytes+1))
		_ = f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}

		contentType := strings.TrimSpace(fh.Header.Get("Content-Type"))
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		photos = append(photos, schema.Photo{
			Name:        fh.Filename,
			Size:        int64(len(data)),
			ContentType: contentType,
			Data:        data,
		})
	}
	return photos, refused, nil
}
