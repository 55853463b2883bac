package library

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"CrateFM/storage"
)

// Fetcher 按定位符拉取负载字节。定位符可能是 http(s) URL、
// blob:// 键或本地文件路径，取决于部署形态。
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (data []byte, contentType string, err error)
}

// HTTPFetcher 从网络拉取负载。拉取边界必须有显式超时，
// 否则一个挂死的请求会让实体永远停在待加载状态。
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher 创建带超时的网络拉取器
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid locator %s: %w", locator, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: unexpected status %d", locator, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: read body: %w", locator, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// FileFetcher 读取本地文件形式的负载
type FileFetcher struct{}

func (FileFetcher) Fetch(_ context.Context, locator string) ([]byte, string, error) {
	path := strings.TrimPrefix(locator, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}

// BlobFetcher 解析 blob:// 定位符，直接从 blob 存储取回。
// 导出的包在同一部署内重新导入时走这条路，不经过网络。
type BlobFetcher struct {
	blobs storage.BlobStore
}

func (f BlobFetcher) Fetch(ctx context.Context, locator string) ([]byte, string, error) {
	key := strings.TrimPrefix(locator, "blob://")
	data, err := f.blobs.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return data, "application/octet-stream", nil
}

// LocatorFetcher 按定位符前缀把拉取分派给对应实现
type LocatorFetcher struct {
	http Fetcher
	file Fetcher
	blob Fetcher
}

// NewLocatorFetcher 组装默认的复合拉取器
func NewLocatorFetcher(timeout time.Duration, blobs storage.BlobStore) *LocatorFetcher {
	return &LocatorFetcher{
		http: NewHTTPFetcher(timeout),
		file: FileFetcher{},
		blob: BlobFetcher{blobs: blobs},
	}
}

func (f *LocatorFetcher) Fetch(ctx context.Context, locator string) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return f.http.Fetch(ctx, locator)
	case strings.HasPrefix(locator, "blob://"):
		return f.blob.Fetch(ctx, locator)
	default:
		return f.file.Fetch(ctx, locator)
	}
}
