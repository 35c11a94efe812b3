package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxUploadSize caps individual files before any network call.
const maxUploadSize = 25 << 20 // 25 MB

// allowedExtensions is the set of assignment/rubric formats the backend's
// text extractors understand.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
}

// UploadedFile is one saved file as reported by the upload service. SavedAs
// is the storage key all downstream scoring calls use, decoupled from the
// user-visible name so the backend can deduplicate and rename safely.
type UploadedFile struct {
	OriginalName string `json:"originalName"`
	SavedAs      string `json:"savedAs"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimetype"`
}

// uploadResponse keeps Files raw so a non-list value is detectable as a
// protocol mismatch rather than a silent zero value.
type uploadResponse struct {
	Success *bool           `json:"success"`
	Files   json.RawMessage `json:"files"`
}

// Upload sends the given files to the upload service under a folder
// discriminator. Results are positional: one entry per input path, in input
// order. Validation failures happen before any bytes leave the machine.
func (c *Client) Upload(ctx context.Context, folder string, paths []string) ([]UploadedFile, error) {
	if err := validateUpload(folder, paths); err != nil {
		return nil, err
	}

	body, contentType, err := buildMultipart(folder, paths)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+"/api/upload", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", uuid.NewString())
	c.attachSession(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Status: 0, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.decodeError(resp.StatusCode, raw)
	}

	var ur uploadResponse
	if err := json.Unmarshal(raw, &ur); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("malformed upload response: %v", err)}
	}
	if ur.Success == nil || len(ur.Files) == 0 {
		return nil, &APIError{Status: resp.StatusCode, Message: "upload response missing success flag or files"}
	}
	if !*ur.Success {
		return nil, &APIError{Status: resp.StatusCode, Message: "upload service reported failure"}
	}

	var files []UploadedFile
	if err := json.Unmarshal(ur.Files, &files); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: "upload response files field is not a list"}
	}

	c.logger.Info("files uploaded", "folder", folder, "count", len(files))
	return files, nil
}

// UploadOne is the single-file convenience over Upload.
func (c *Client) UploadOne(ctx context.Context, folder, path string) (*UploadedFile, error) {
	files, err := c.Upload(ctx, folder, []string{path})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &APIError{Status: http.StatusOK, Message: "upload succeeded but returned no files"}
	}
	return &files[0], nil
}

func validateUpload(folder string, paths []string) error {
	if folder == "" {
		return &ValidationError{Field: "folder", Message: "folder is required"}
	}
	if len(paths) == 0 {
		return &ValidationError{Field: "files", Message: "at least one file is required"}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return &ValidationError{Field: "files", Message: fmt.Sprintf("cannot read %s: %v", p, err)}
		}
		if info.IsDir() {
			return &ValidationError{Field: "files", Message: fmt.Sprintf("%s is a directory", p)}
		}
		if info.Size() > maxUploadSize {
			return &ValidationError{Field: "files", Message: fmt.Sprintf("%s exceeds the %d MB limit", filepath.Base(p), maxUploadSize>>20)}
		}
		ext := strings.ToLower(filepath.Ext(p))
		if !allowedExtensions[ext] {
			return &ValidationError{Field: "files", Message: fmt.Sprintf("unsupported file type %q", ext)}
		}
	}
	return nil
}

func buildMultipart(folder string, paths []string) (io.Reader, string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			if err := mw.WriteField("folder", folder); err != nil {
				return err
			}
			for _, p := range paths {
				part, err := mw.CreateFormFile("files", filepath.Base(p))
				if err != nil {
					return err
				}
				f, err := os.Open(p)
				if err != nil {
					return err
				}
				_, err = io.Copy(part, f)
				f.Close()
				if err != nil {
					return err
				}
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType(), nil
}
