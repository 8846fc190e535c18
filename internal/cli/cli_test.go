package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guiyumin/mediagrab/internal/core/config"
	"github.com/guiyumin/mediagrab/internal/core/extractor"
	"github.com/guiyumin/mediagrab/internal/core/mediastore"
)

func init() {
	color.NoColor = true
}

func TestPrintInfo(t *testing.T) {
	var buf bytes.Buffer
	printInfo(&buf, &extractor.MediaInfo{
		Platform:     "youtube",
		ID:           "dQw4w9WgXcQ",
		Title:        "Never Gonna Give You Up",
		MediaKind:    extractor.MediaKindVideo,
		DownloadLink: "https://rr1.googlevideo.com/x",
		Duration:     213,
	}, "/media/youtube/dQw4w9WgXcQ.mp4")

	out := buf.String()
	assert.Contains(t, out, "  youtube\n")
	assert.Contains(t, out, "Never Gonna Give You Up")
	assert.Contains(t, out, "3m33s")
	assert.Contains(t, out, "https://rr1.googlevideo.com/x")
	assert.Contains(t, out, "/media/youtube/dQw4w9WgXcQ.mp4")
	assert.NotContains(t, out, "No direct link")
}

func TestPrintInfoWithoutLink(t *testing.T) {
	var buf bytes.Buffer
	printInfo(&buf, &extractor.MediaInfo{Platform: "youtube", ID: "abcdef", Title: "t"}, "")
	assert.Contains(t, buf.String(), "No direct link reported")
}

func TestSaveToCacheRejectsResultsWithoutID(t *testing.T) {
	_, err := saveToCache(context.Background(), nil, "https://www.instagram.com/reel/ABC/", &extractor.MediaInfo{Platform: "Instagram"})
	assert.True(t, extractor.IsKind(err, extractor.KindInvalidInput))
}

func TestWriteEntries(t *testing.T) {
	now := time.Now()
	entries := []mediastore.Entry{
		{Key: mediastore.Key{Namespace: "youtube", ID: "dQw4w9WgXcQ"}, Path: "/media/youtube/dQw4w9WgXcQ.mp4", Size: 2 * 1000 * 1000, ModTime: now},
		{Key: mediastore.Key{Namespace: "tiktok", ID: "7234567890"}, Path: "/media/tiktok/7234567890.mp4", Size: 500 * 1000, ModTime: now.Add(-time.Hour)},
	}

	var buf bytes.Buffer
	writeEntries(&buf, "/media", entries)
	out := buf.String()
	assert.Contains(t, out, "youtube/dQw4w9WgXcQ")
	assert.Contains(t, out, "2.0 MB")
	assert.Contains(t, out, "2 file(s), 2.5 MB in /media")

	buf.Reset()
	writeEntries(&buf, "/media", nil)
	assert.Contains(t, buf.String(), "No cached videos")
}

func TestWriteEntriesJSON(t *testing.T) {
	mod := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, writeEntriesJSON(&buf, []mediastore.Entry{
		{Key: mediastore.Key{Namespace: "youtube", ID: "abcdef"}, Path: "/m/youtube/abcdef.mp4", Size: 10, ModTime: mod},
	}))

	var got []CacheEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []CacheEntry{{Namespace: "youtube", ID: "abcdef", Path: "/m/youtube/abcdef.mp4", Size: 10, Modified: "2026-10-01T12:00:00Z"}}, got)

	buf.Reset()
	require.NoError(t, writeEntriesJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "cookies", "cache", "config", "completion", "init", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestConfigValues(t *testing.T) {
	cfg := config.DefaultConfig()

	require.NoError(t, setConfigValue(cfg, "server.port", "9000"))
	require.NoError(t, setConfigValue(cfg, "Telegram.Bot_Token", "123:abc"))
	require.NoError(t, setConfigValue(cfg, "cookies.refresh_interval", "12h"))
	require.NoError(t, setConfigValue(cfg, "cache.max_entries", "0"))

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, 12*time.Hour, cfg.Cookies.RefreshInterval)
	assert.Equal(t, 0, cfg.Cache.MaxEntries)

	got, err := getConfigValue(cfg, "extractor.timeout")
	require.NoError(t, err)
	assert.Equal(t, "2m0s", got)

	assert.Error(t, setConfigValue(cfg, "server.port", "eighty"))
	assert.Error(t, setConfigValue(cfg, "extractor.timeout", "-1s"))
	_, err = getConfigValue(cfg, "language")
	assert.ErrorContains(t, err, "unknown config key")
}

func TestConfigKeyCompletion(t *testing.T) {
	keys, _ := completeConfigKey(configGetCmd, nil, "")
	assert.Contains(t, keys, "telegram.bot_token")
	assert.IsIncreasing(t, keys)

	keys, _ = completeConfigKey(configSetCmd, []string{"server.port"}, "")
	assert.Empty(t, keys)
}
