package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Corphon/PodcastDigest/internal/models"
)

func TestDetectPlatform(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=abc123":    YouTube,
		"https://youtu.be/xyz":                      YouTube,
		"https://open.spotify.com/episode/1":        Spotify,
		"https://podcasts.apple.com/us/podcast/id1": Apple,
		"https://soundcloud.com/artist/track":       SoundCloud,
		"https://cdn.example.com/episodes/ep1.MP3":  AudioFile,
		"https://example.com/feed.xml":              Other,
		"not a url":                                 Other,
	}
	for raw, want := range cases {
		if got := DetectPlatform(raw).Platform; got != want {
			t.Errorf("DetectPlatform(%q) = %s, want %s", raw, got, want)
		}
	}

	yt := DetectPlatform("https://www.youtube.com/watch?v=abc123")
	if yt.YouTubeID != "abc123" || yt.Thumbnail != "https://img.youtube.com/vi/abc123/maxresdefault.jpg" {
		t.Errorf("YouTube 元数据错误: %+v", yt)
	}
	if ExtractYouTubeID("https://youtu.be/xyz") != "xyz" {
		t.Error("短链ID解析错误")
	}
	other := DetectPlatform("https://example.com/show")
	if other.Name != "Podcast" || other.Color != "slate" {
		t.Errorf("默认平台错误: %+v", other)
	}
}

func TestChapterVTT(t *testing.T) {
	if ChapterVTT(nil) != "" {
		t.Error("无章节应返回空串")
	}
	vtt := ChapterVTT([]models.Chapter{
		{Headline: "Intro", Start: 0, End: 61500},
		{Headline: "Deep dive", Start: 61500, End: 3723004},
	})
	want := "WEBVTT\n\n1\n00:00:00.000 --> 00:01:01.500\nIntro\n\n2\n00:01:01.500 --> 01:02:03.004\nDeep dive\n\n"
	if vtt != want {
		t.Errorf("VTT 内容错误:\n%s", vtt)
	}
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Builders Podcast</title>
  <image><url>https://example.com/show.png</url></image>
  <item>
    <title>Episode 1</title>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
    <enclosure url="https://cdn.example.com/ep1.mp3" type="audio/mpeg" length="1"/>
  </item>
  <item>
    <title>Episode 2</title>
    <pubDate>Mon, 08 Jan 2024 10:00:00 GMT</pubDate>
    <enclosure url="https://cdn.example.com/ep2.mp3" type="audio/mpeg" length="1"/>
  </item>
  <item>
    <title>Bonus video</title>
    <pubDate>Mon, 15 Jan 2024 10:00:00 GMT</pubDate>
    <enclosure url="https://cdn.example.com/bonus.mp4" type="video/mp4" length="1"/>
  </item>
</channel>
</rss>`

func TestResolveFeedPicksLatestAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	res, err := NewResolver(time.Second).Resolve(context.Background(), server.URL+"/feed")
	if err != nil {
		t.Fatalf("解析订阅源失败: %v", err)
	}
	if res.AudioURL != "https://cdn.example.com/ep2.mp3" || res.Title != "Episode 2" {
		t.Errorf("应选择最新的音频条目, got %+v", res)
	}
	if res.ShowName != "Builders Podcast" || res.ImageURL != "https://example.com/show.png" || res.ResolvedBy != "feed" {
		t.Errorf("节目元数据错误: %+v", res)
	}
	if !strings.HasPrefix(res.Published, "2024-01-08") {
		t.Errorf("发布时间错误: %s", res.Published)
	}
}

func TestResolvePageOpenGraph(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/episode", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
			<title>fallback</title>
			<meta property="og:title" content="Great Episode">
			<meta property="og:site_name" content="Great Show">
			<meta property="og:image" content="/cover.jpg">
			<meta property="og:audio" content="/audio/great.mp3">
		</head><body></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	res, err := NewResolver(time.Second).Resolve(context.Background(), server.URL+"/episode")
	if err != nil {
		t.Fatalf("解析页面失败: %v", err)
	}
	if res.AudioURL != server.URL+"/audio/great.mp3" || res.ImageURL != server.URL+"/cover.jpg" {
		t.Errorf("相对地址应补全, got %+v", res)
	}
	if res.Title != "Great Episode" || res.ShowName != "Great Show" || res.ResolvedBy != "page" {
		t.Errorf("页面元数据错误: %+v", res)
	}
}

func TestResolvePageFollowsAlternateFeed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/show", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><link rel="alternate" type="application/rss+xml" href="/rss"></head></html>`))
	})
	mux.HandleFunc("/rss", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	res, err := NewResolver(time.Second).Resolve(context.Background(), server.URL+"/show")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if res.AudioURL != "https://cdn.example.com/ep2.mp3" {
		t.Errorf("应沿订阅源找到音频, got %+v", res)
	}
}

func TestResolveSkipsDirectAudio(t *testing.T) {
	res, err := NewResolver(time.Second).Resolve(context.Background(), "https://cdn.example.com/ep.mp3")
	if err != nil || res != nil {
		t.Errorf("直链音频不应解析, got %+v %v", res, err)
	}
}
