package minarai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/gabriel-vasile/mimetype"
)

var maxImageBytes int64 = 32 << 20

type uploadResponse struct {
	Message *string `json:"message"`
	URL     *string `json:"url"`
}

// ResolveImage downloads an image with the session credentials and returns it
// as an inline data URI of the form "data:<imageType>base64,<payload>".
func (c *Client) ResolveImage(ctx context.Context, imageURL, imageType string) (string, error) {
	if imageURL == "" || imageType == "" {
		return "", fmt.Errorf("%w: image url and type are required", ErrMissingArgument)
	}
	id := c.Identity()
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	if !c.opts.ImageFetchViaHeader {
		creds := url.Values{
			"applicationId":     {id.ApplicationID},
			"applicationSecret": {id.ApplicationSecret},
			"userId":            {id.UserID},
		}.Encode()
		// The existing query may be signed; append without re-encoding it.
		if u.RawQuery == "" {
			u.RawQuery = creds
		} else {
			u.RawQuery += "&" + creds
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	if c.opts.ImageFetchViaHeader {
		req.Header.Set("X-Minarai-Application-Id", id.ApplicationID)
		req.Header.Set("X-Minarai-Application-Secret", id.ApplicationSecret)
		req.Header.Set("X-Minarai-User-Id", id.UserID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch image: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > maxImageBytes {
		return "", fmt.Errorf("fetch image: exceeds %d bytes", maxImageBytes)
	}
	return "data:" + imageType + "base64," + base64.StdEncoding.EncodeToString(data), nil
}

// UploadImage posts an image to the connector's upload endpoint and returns
// the URL it is served at. An empty contentType is detected from the data.
// opts.Extra, when set, is sent as the JSON "params" field.
func (c *Client) UploadImage(ctx context.Context, data []byte, contentType, fileName string, opts *SendOptions) (*url.URL, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image data must not be empty", ErrMissingArgument)
	}
	if fileName == "" {
		return nil, fmt.Errorf("%w: file name must not be empty", ErrMissingArgument)
	}
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	if _, _, err := mime.ParseMediaType(contentType); err != nil {
		return nil, fmt.Errorf("parse media type %q: %w", contentType, err)
	}

	id := c.Identity()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := []struct{ key, value string }{
		{"applicationId", id.ApplicationID},
		{"applicationSecret", id.ApplicationSecret},
		{"clientId", id.ClientID},
		{"userId", id.UserID},
		{"deviceId", id.DeviceID},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.key, f.value); err != nil {
			return nil, err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": fileName,
	}))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if opts != nil && opts.Extra != nil {
		params, err := json.Marshal(opts.Extra)
		if err != nil {
			return nil, fmt.Errorf("%w: params: %v", ErrEncode, err)
		}
		if err := mw.WriteField("params", string(params)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.log.Info("uploading image", "url", c.uploadURL, "file", fileName, "content_type", contentType, "bytes", len(data))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response (status %s): %w", resp.Status, err)
	}
	if out.Message == nil || out.URL == nil {
		return nil, fmt.Errorf("upload response missing message or url (status %s)", resp.Status)
	}
	c.log.Debug("image uploaded", "message", *out.Message, "url", *out.URL)
	u, err := url.Parse(*out.URL)
	if err != nil {
		return nil, fmt.Errorf("parse uploaded url: %w", err)
	}
	return u, nil
}
