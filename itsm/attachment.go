package itsm

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/tidwall/gjson"
)

// dispositionFilename extracts the filename from a Content-Disposition
// header. An absent or unparseable header yields "".
func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func handleAttachmentUpload(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	data := p.BinaryData
	if len(data) == 0 && itemIndex < len(ec.Items) {
		data = ec.Items[itemIndex].Binary
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no binary data on item %d", itemIndex)
	}
	fileName := p.FileName
	if fileName == "" {
		fileName = "file"
	}

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	if err := writer.WriteField("ObjectID", p.RecID); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	// The upload endpoint wants the owning object's internal name with a
	// trailing '#', e.g. "incident#".
	if err := writer.WriteField("ObjectType", strings.ToLower(p.ObjectName)+"#"); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if err := writer.WriteField("AttachmentType", "File"); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	contentType := p.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}

	var body string
	err = ec.Client.APIBuilder().
		Path("/api/rest/Attachment").
		BodyBytes(form.Bytes()).
		ContentType(writer.FormDataContentType()).
		Post().
		Handle(captureJSON(&body, "attachment.upload")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}

	// The endpoint answers with an array of attachment descriptors, one
	// per uploaded file.
	parsed := gjson.Parse(body)
	if parsed.IsArray() {
		items := make([]Item, 0, len(parsed.Array()))
		for _, record := range parsed.Array() {
			items = append(items, shapeRecord(record, p, itemIndex))
		}
		return items, nil
	}
	return []Item{shapeRecord(parsed, p, itemIndex)}, nil
}

func handleAttachmentGet(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	var (
		data     []byte
		fileName string
		mimeType string
	)
	err := ec.Client.APIBuilder().
		Path("/api/rest/Attachment").
		Param("ID", p.AttachmentID).
		Handle(captureBinary(&data, &fileName, &mimeType, "attachment.get")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if fileName == "" {
		fileName = fmt.Sprintf("attachment_%s", p.AttachmentID)
	}
	return []Item{{
		JSON:     buildObject([]member{{"fileName", mustJSONString(fileName)}}),
		Binary:   data,
		FileName: fileName,
		MimeType: mimeType,
		Input:    itemIndex,
	}}, nil
}

func handleAttachmentDelete(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	var body string
	err := ec.Client.APIBuilder().
		Pathf("/api/rest/Attachment/%s", p.AttachmentID).
		Delete().
		Handle(captureJSON(&body, "attachment.delete")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return []Item{successItem(itemIndex, "Successfully deleted attachment",
		member{"recId", mustJSONString(p.AttachmentID)})}, nil
}
