// internal/platform/resolver.go
package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/Corphon/PodcastDigest/internal/models"
)

const (
	resolvedByFeed = "feed"
	resolvedByPage = "page"

	maxPageBytes = 5 << 20
)

// Resolution 解析链接得到的音频地址与节目元数据
type Resolution struct {
	AudioURL   string
	Title      string
	ShowName   string
	ImageURL   string
	Published  string
	ResolvedBy string
}

// Apply 将元数据写入平台信息
func (r *Resolution) Apply(info *models.PlatformInfo) {
	if r == nil {
		return
	}
	info.Title = r.Title
	info.ShowName = r.ShowName
	info.ImageURL = r.ImageURL
	info.Published = r.Published
	info.ResolvedBy = r.ResolvedBy
}

// Resolver 识别订阅源与网页，找出可转写的音频
type Resolver struct {
	client     *http.Client
	feedParser *gofeed.Parser
}

// NewResolver 创建解析器
func NewResolver(timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		client:     &http.Client{Timeout: timeout},
		feedParser: gofeed.NewParser(),
	}
}

// Resolve 直链音频与视频平台不解析；订阅源取最新一集；网页读取 og 元数据
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Resolution, error) {
	switch DetectPlatform(rawURL).Platform {
	case AudioFile, YouTube:
		return nil, nil
	}

	body, contentType, err := r.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if looksLikeFeed(contentType, body) {
		return r.fromFeed(body)
	}

	res, feedURL, err := fromPage(rawURL, body)
	if err != nil {
		return nil, err
	}
	// 页面没有音频但声明了订阅源时，再解析一次订阅源
	if res.AudioURL == "" && feedURL != "" {
		if feedBody, _, err := r.fetch(ctx, feedURL); err == nil {
			if fromFeed, err := r.fromFeed(feedBody); err == nil {
				fromFeed.ImageURL = firstNonEmpty(res.ImageURL, fromFeed.ImageURL)
				return fromFeed, nil
			}
		}
	}
	return res, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", "PodcastDigest/1.0 (+metadata)")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func looksLikeFeed(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") || strings.Contains(ct, "xml") {
		return true
	}
	head := bytes.ToLower(bytes.TrimSpace(body))
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<?xml")) || bytes.Contains(head, []byte("<rss")) || bytes.Contains(head, []byte("<feed"))
}

// fromFeed 选取带音频附件的最新一集
func (r *Resolver) fromFeed(body []byte) (*Resolution, error) {
	feed, err := r.feedParser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed: %w", err)
	}
	if feed == nil || len(feed.Items) == 0 {
		return nil, fmt.Errorf("feed contains no items")
	}

	var latest *gofeed.Item
	var audioURL string
	for _, item := range feed.Items {
		enclosure := audioEnclosure(item)
		if enclosure == "" {
			continue
		}
		if latest == nil || newer(item, latest) {
			latest = item
			audioURL = enclosure
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no audio enclosure found in feed items")
	}

	res := &Resolution{
		AudioURL:   audioURL,
		Title:      latest.Title,
		ShowName:   feed.Title,
		ResolvedBy: resolvedByFeed,
	}
	if latest.Image != nil {
		res.ImageURL = latest.Image.URL
	} else if feed.Image != nil {
		res.ImageURL = feed.Image.URL
	}
	if latest.PublishedParsed != nil {
		res.Published = latest.PublishedParsed.UTC().Format(time.RFC3339)
	} else {
		res.Published = latest.Published
	}
	return res, nil
}

func audioEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.HasPrefix(strings.ToLower(enc.Type), "audio/") || audioFilePattern.MatchString(enc.URL) {
			return enc.URL
		}
	}
	return ""
}

// newer 无发布时间的条目按原顺序，视为更旧
func newer(a, b *gofeed.Item) bool {
	if a.PublishedParsed == nil {
		return false
	}
	if b.PublishedParsed == nil {
		return true
	}
	return a.PublishedParsed.After(*b.PublishedParsed)
}

// fromPage 读取 Open Graph 元数据，返回页面声明的订阅源地址
func fromPage(pageURL string, body []byte) (*Resolution, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	meta := func(keys ...string) string {
		for _, key := range keys {
			sel := fmt.Sprintf(`meta[property="%s"], meta[name="%s"]`, key, key)
			if content, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(content) != "" {
				return strings.TrimSpace(content)
			}
		}
		return ""
	}

	res := &Resolution{
		AudioURL:   absolute(pageURL, meta("og:audio", "og:audio:url", "og:audio:secure_url", "twitter:player:stream")),
		Title:      firstNonEmpty(meta("og:title", "twitter:title"), strings.TrimSpace(doc.Find("title").First().Text())),
		ShowName:   meta("og:site_name"),
		ImageURL:   absolute(pageURL, meta("og:image", "twitter:image")),
		ResolvedBy: resolvedByPage,
	}

	feedURL := ""
	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		kind, _ := s.Attr("type")
		href, ok := s.Attr("href")
		if ok && (strings.Contains(kind, "rss") || strings.Contains(kind, "atom")) {
			feedURL = absolute(pageURL, href)
			return false
		}
		return true
	})

	return res, feedURL, nil
}

func absolute(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
