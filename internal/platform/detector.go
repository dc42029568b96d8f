// internal/platform/detector.go
package platform

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Corphon/PodcastDigest/internal/models"
)

// 平台标识
const (
	YouTube    = "youtube"
	Spotify    = "spotify"
	Apple      = "apple"
	SoundCloud = "soundcloud"
	AudioFile  = "audio"
	Other      = "other"
)

var audioFilePattern = regexp.MustCompile(`(?i)\.(mp3|wav|m4a|ogg|aac)$`)

func otherPlatform() models.PlatformInfo {
	return models.PlatformInfo{Platform: Other, Name: "Podcast", Icon: "🎧", Color: "slate"}
}

// DetectPlatform 根据主机名与扩展名识别来源平台
func DetectPlatform(rawURL string) models.PlatformInfo {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return otherPlatform()
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case strings.Contains(host, "youtube.com") || strings.Contains(host, "youtu.be"):
		info := models.PlatformInfo{Platform: YouTube, Name: "YouTube", Icon: "▶️", Color: "red"}
		if id := ExtractYouTubeID(rawURL); id != "" {
			info.YouTubeID = id
			info.Thumbnail = YouTubeThumbnail(id)
		}
		return info
	case strings.Contains(host, "spotify.com"):
		return models.PlatformInfo{Platform: Spotify, Name: "Spotify", Icon: "🎵", Color: "green"}
	case strings.Contains(host, "podcasts.apple.com"):
		return models.PlatformInfo{Platform: Apple, Name: "Apple Podcasts", Icon: "🎙️", Color: "purple"}
	case strings.Contains(host, "soundcloud.com"):
		return models.PlatformInfo{Platform: SoundCloud, Name: "SoundCloud", Icon: "☁️", Color: "orange"}
	case audioFilePattern.MatchString(rawURL):
		return models.PlatformInfo{Platform: AudioFile, Name: "Audio File", Icon: "🔊", Color: "blue"}
	}
	return otherPlatform()
}

// ExtractYouTubeID 支持 youtu.be 短链与 watch?v=
func ExtractYouTubeID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if strings.Contains(strings.ToLower(u.Hostname()), "youtu.be") {
		return strings.TrimPrefix(u.Path, "/")
	}
	return u.Query().Get("v")
}

// YouTubeThumbnail 最高清缩略图地址
func YouTubeThumbnail(videoID string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", videoID)
}

// ChapterVTT 将章节导出为 WebVTT，无章节时返回空串
func ChapterVTT(chapters []models.Chapter) string {
	if len(chapters) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, ch := range chapters {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, vttTimestamp(ch.Start), vttTimestamp(ch.End), ch.Headline)
	}
	return b.String()
}

// vttTimestamp HH:MM:SS.mmm
func vttTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", total/3600, (total%3600)/60, total%60, ms%1000)
}
