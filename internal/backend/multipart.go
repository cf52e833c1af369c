package backend

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"

	"fixit/pkg/schema"
)

// EncodeMultipart writes the submission as multipart/form-data and returns its content type.
// Text fields use their JSON names; each photo is one "photos" file part.
func EncodeMultipart(w io.Writer, s *Submission) (string, error) {
	mw := multipart.NewWriter(w)

	fields := []struct{ name, value string }{
		{schema.FieldDeviceType, string(s.Form.DeviceType)},
		{schema.FieldDeviceModel, s.Form.DeviceModel},
		{schema.FieldDescription, s.Form.Description},
		{schema.FieldPriority, string(s.Form.Priority)},
		{schema.FieldAddress, s.Form.Address},
		{schema.FieldContactInfo, s.Form.ContactInfo},
		{schema.FieldPreferredDate1, s.Form.PreferredDate1},
		{schema.FieldPreferredDate2, s.Form.PreferredDate2},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return "", fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	for _, p := range s.Form.Photos {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, schema.FieldPhotos, p.Name))
		contentType := p.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		h.Set("X-Photo-Id", p.ID)
		h.Set("X-Photo-Size", strconv.FormatInt(p.Size, 10))

		part, err := mw.CreatePart(h)
		if err != nil {
			return "", fmt.Errorf("create photo part %s: %w", p.ID, err)
		}
		if _, err := part.Write(p.Data); err != nil {
			return "", fmt.Errorf("write photo %s: %w", p.ID, err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}
	return mw.FormDataContentType(), nil
}
