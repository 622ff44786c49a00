package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/iabetor/moritts/internal/logger"
	"github.com/iabetor/moritts/internal/ttserr"
)

// Fetcher 把 http(s) 地址的模型文件下载到本地缓存目录。
type Fetcher struct {
	CacheDir string
	Client   *http.Client
	// Progress 是进度条输出目标，为 nil 时不显示进度。
	Progress io.Writer
}

// NewFetcher 创建下载器，进度输出到 stderr。
func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{
		CacheDir: cacheDir,
		Client:   &http.Client{Timeout: 30 * time.Minute},
		Progress: os.Stderr,
	}
}

// IsRemote 判断位置是否为 http(s) URL。
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Resolve 返回模型文件的本地路径。
// 本地路径必须存在；URL 在缓存中不存在时下载一次。
func (f *Fetcher) Resolve(ctx context.Context, location string) (string, error) {
	if !IsRemote(location) {
		if _, err := os.Stat(location); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("[model] 模型文件不存在: %s: %w", location, ttserr.ErrNotFound)
			}
			return "", fmt.Errorf("[model] 检查模型文件失败: %w", err)
		}
		return location, nil
	}

	dst, err := f.cachePath(location)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dst); err == nil {
		logger.Debugf("[model] 使用缓存: %s", dst)
		return dst, nil
	}

	if err := f.download(ctx, location, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// cachePath 将 URL 映射为 <CacheDir>/<host>/<path>。
func (f *Fetcher) cachePath(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("[model] 无效的模型地址 %s: %w", location, err)
	}
	clean := filepath.Clean("/" + u.Path)
	if clean == "/" {
		return "", fmt.Errorf("[model] 模型地址缺少文件名: %s: %w", location, ttserr.ErrInvalidArgument)
	}
	return filepath.Join(f.CacheDir, u.Host, filepath.FromSlash(clean)), nil
}

func (f *Fetcher) download(ctx context.Context, location, dst string) error {
	logger.Infof("[model] 正在下载 %s", location)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return fmt.Errorf("[model] 创建下载请求失败: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("[model] 下载 %s 失败: %w", location, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("[model] 远程模型不存在: %s: %w", location, ttserr.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("[model] 下载 %s 失败: HTTP %d", location, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("[model] 创建缓存目录失败: %w", err)
	}

	// 先写临时文件再重命名，中断的下载不会留下半个模型
	tmp := filepath.Join(filepath.Dir(dst), "."+uuid.NewString()+".part")
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("[model] 创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp)

	var w io.Writer = out
	if f.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(f.Progress),
			progressbar.OptionSetDescription(filepath.Base(dst)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(f.Progress) }),
		)
		w = io.MultiWriter(out, bar)
	}

	n, err := io.Copy(w, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("[model] 写入 %s 失败: %w", dst, err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("[model] 保存模型文件失败: %w", err)
	}
	logger.Infof("[model] 已下载 %s (%d 字节)", dst, n)
	return nil
}
