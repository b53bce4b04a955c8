// Package audio acquires horror audio samples from a Freesound-compatible
// sound service and writes the per-level audio config.
package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/errors"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/fsutil"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/timeouts"
)

// DefaultBaseURL is the Freesound API root
const DefaultBaseURL = "https://freesound.org/apiv2"

const searchFields = "id,name,tags,duration,previews"

// maxPreviewBytes bounds a single preview download.
const maxPreviewBytes = 50 << 20

// Sound is one record of a text search reply
type Sound struct {
	ID       int               `json:"id"`
	Name     string            `json:"name"`
	Tags     []string          `json:"tags"`
	Duration float64           `json:"duration"`
	Previews map[string]string `json:"previews"`
}

// PreviewURL returns the high quality mp3 preview, falling back to low quality.
func (s Sound) PreviewURL() (string, bool) {
	for _, key := range []string{"preview-hq-mp3", "preview-lq-mp3"} {
		if u := s.Previews[key]; u != "" {
			return u, true
		}
	}
	return "", false
}

type searchResponse struct {
	Count   int     `json:"count"`
	Results []Sound `json:"results"`
}

// Client talks to the sound service
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a sound service client. A nil httpClient uses a default one.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient}
}

// Search runs a text search and returns at most pageSize sounds.
func (c *Client) Search(ctx context.Context, query string, pageSize int) ([]Sound, error) {
	if c.apiKey == "" {
		return nil, apperrors.New(apperrors.CodeNoProvider, "FREESOUND_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.SoundSearch)
	defer cancel()

	params := url.Values{}
	params.Set("query", query)
	params.Set("fields", searchFields)
	params.Set("page_size", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/text/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransport(apperrors.CodeSoundSearch, "sound search failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.WithMetadata(apperrors.CodeSoundSearch,
			fmt.Sprintf("sound search returned status %d", resp.StatusCode),
			map[string]string{"status": strconv.Itoa(resp.StatusCode), "query": query})
	}

	var reply searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSoundSearch, "failed to parse search reply", err)
	}
	if len(reply.Results) > pageSize {
		reply.Results = reply.Results[:pageSize]
	}
	return reply.Results, nil
}

// Download fetches the sound's preview into dir as <id>_<name>.<ext> and
// returns the file name and size.
func (c *Client) Download(ctx context.Context, s Sound, dir string) (string, int64, error) {
	previewURL, ok := s.PreviewURL()
	if !ok {
		return "", 0, apperrors.Newf(apperrors.CodeDownload, "sound %d has no preview", s.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Download)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, previewURL, nil)
	if err != nil {
		return "", 0, apperrors.Wrap(apperrors.CodeDownload, "invalid preview url", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, wrapTransport(apperrors.CodeDownload, "preview download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, apperrors.WithMetadata(apperrors.CodeDownload,
			fmt.Sprintf("preview download returned status %d", resp.StatusCode),
			map[string]string{"status": strconv.Itoa(resp.StatusCode), "sound": strconv.Itoa(s.ID)})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPreviewBytes))
	if err != nil {
		return "", 0, wrapTransport(apperrors.CodeDownload, "reading preview", err)
	}

	name := FileName(s.ID, s.Name, previewURL)
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, name), data); err != nil {
		return "", 0, apperrors.Wrap(apperrors.CodeIO, "writing preview", err)
	}
	return name, int64(len(data)), nil
}

func wrapTransport(code apperrors.Code, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.CodeTimeout, msg, err)
	}
	return apperrors.Wrap(code, msg, err)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileName builds <id>_<sanitized-name>.<ext>. The extension comes from the
// preview URL and defaults to mp3.
func FileName(id int, name, previewURL string) string {
	clean := strings.Trim(unsafeName.ReplaceAllString(name, "_"), "_")
	if len(clean) > 64 {
		clean = clean[:64]
	}
	if clean == "" {
		clean = "sound"
	}

	ext := "mp3"
	if u, err := url.Parse(previewURL); err == nil {
		if e := strings.TrimPrefix(path.Ext(u.Path), "."); e != "" {
			ext = strings.ToLower(e)
		}
	}
	return fmt.Sprintf("%d_%s.%s", id, clean, ext)
}
