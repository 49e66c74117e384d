package discord

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listCall struct {
	limit         int
	before, after string
}

type fakeLister struct {
	pages [][]*discordgo.Message
	err   error
	calls []listCall
}

func (f *fakeLister) ChannelMessages(_ string, limit int, beforeID, afterID, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.calls = append(f.calls, listCall{limit: limit, before: beforeID, after: afterID})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.pages) == 0 {
		return nil, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func snowflakeAt(t time.Time, seq uint64) string {
	return strconv.FormatUint(uint64(t.UnixMilli()-discordEpochMillis)<<22|seq, 10)
}

func msg(at time.Time, seq uint64, author string, bot bool, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        snowflakeAt(at, seq),
		Content:   content,
		Timestamp: at,
		Author:    &discordgo.User{Username: author, Bot: bot},
	}
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	text := "見て https://cookpad.com/recipe/1 と <https://x.test/a?b=1> また https://cookpad.com/recipe/1"
	links := ExtractLinks(text)
	assert.Equal(t, []string{"https://cookpad.com/recipe/1", "https://x.test/a?b=1"}, links)
	assert.Nil(t, ExtractLinks("no links here"))
}

func TestSourceFetchFullHistory(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
	lister := &fakeLister{pages: [][]*discordgo.Message{
		{
			msg(base.Add(3*time.Minute), 0, "alice", false, "https://x/3"),
			msg(base.Add(2*time.Minute), 0, "bot", true, "https://x/bot"),
		},
		{
			msg(base.Add(time.Minute), 0, "bob", false, "no link"),
			msg(base, 0, "carol", false, "https://x/0 https://x/00"),
		},
		{},
	}}

	src := NewSource(lister, "chan", 2, nil)
	messages, err := src.Fetch(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Equal(t, "carol", messages[0].Author)
	assert.Equal(t, []string{"https://x/0", "https://x/00"}, messages[0].Links)
	assert.Equal(t, "alice", messages[1].Author)

	require.Len(t, lister.calls, 3)
	assert.Equal(t, "", lister.calls[0].before)
	assert.Equal(t, "", lister.calls[0].after)
	assert.Equal(t, snowflakeAt(base.Add(2*time.Minute), 0), lister.calls[1].before)
	assert.Equal(t, snowflakeAt(base, 0), lister.calls[2].before)
}

func TestSourceFetchSince(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
	lister := &fakeLister{pages: [][]*discordgo.Message{
		{
			msg(since, 5, "same-ms", false, "https://x/edge"),
			msg(since.Add(time.Second), 0, "dave", false, "https://x/new"),
		},
	}}

	src := NewSource(lister, "chan", 100, nil)
	messages, err := src.Fetch(context.Background(), &since)
	require.NoError(t, err)

	require.Len(t, messages, 1)
	assert.Equal(t, "dave", messages[0].Author)
	require.Len(t, lister.calls, 1)
	assert.Equal(t, snowflakeAfter(since), lister.calls[0].after)
}

func TestSourceFetchError(t *testing.T) {
	t.Parallel()

	src := NewSource(&fakeLister{err: errors.New("HTTP 401 Unauthorized")}, "chan", 100, nil)
	_, err := src.Fetch(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSourceFetchKeepsOldestMessagesAcrossPages(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
	lister := &fakeLister{pages: [][]*discordgo.Message{
		{msg(base.Add(time.Minute), 0, "a", false, "https://x/1"), msg(base, 0, "b", false, "https://x/2")},
		{msg(base.Add(-time.Minute), 0, "c", false, "https://x/3"), msg(base.Add(-2*time.Minute), 0, "d", false, "https://x/4")},
	}}

	src := NewSource(lister, "chan", 2, nil)
	messages, err := src.Fetch(context.Background(), nil)
	require.NoError(t, err)

	var links []string
	for _, m := range messages {
		links = append(links, m.Links...)
	}
	assert.Equal(t, []string{"https://x/4", "https://x/3", "https://x/2", "https://x/1"}, links)
	assert.Len(t, lister.calls, 3)
}

func TestSourceFetchForwardPagesUntilExhausted(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
	lister := &fakeLister{pages: [][]*discordgo.Message{
		{msg(since.Add(2*time.Minute), 0, "b", false, "https://x/2"), msg(since.Add(time.Minute), 0, "a", false, "https://x/1")},
		{msg(since.Add(3*time.Minute), 0, "c", false, "https://x/3")},
	}}

	src := NewSource(lister, "chan", 2, nil)
	messages, err := src.Fetch(context.Background(), &since)
	require.NoError(t, err)

	require.Len(t, messages, 3)
	assert.Equal(t, "a", messages[0].Author)
	assert.Equal(t, "c", messages[2].Author)
	require.Len(t, lister.calls, 2)
	assert.Equal(t, snowflakeAt(since.Add(2*time.Minute), 0), lister.calls[1].after)
}

func TestSnowflakeAfterIsMonotonic(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
	edge, err := strconv.ParseUint(snowflakeAfter(at), 10, 64)
	require.NoError(t, err)
	sameMs, _ := strconv.ParseUint(snowflakeAt(at, 4095), 10, 64)
	nextMs, _ := strconv.ParseUint(snowflakeAt(at.Add(time.Millisecond), 0), 10, 64)

	assert.GreaterOrEqual(t, edge, sameMs)
	assert.Less(t, edge, nextMs)
	assert.Equal(t, "0", snowflakeAfter(time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)))
}

type fakeSender struct {
	channel string
	content string
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel, f.content = channelID, content
	return &discordgo.Message{}, nil
}

func TestNotifierPublishSummary(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	n := NewNotifier(sender, "report")
	require.NoError(t, n.PublishSummary(context.Background(), "processed: 1"))
	assert.Equal(t, "report", sender.channel)
	assert.Equal(t, "```\nprocessed: 1\n```", sender.content)

	require.NoError(t, n.PublishSummary(context.Background(), strings.Repeat("レシピ", 1000)))
	assert.LessOrEqual(t, len(sender.content), maxContentLen)

	assert.Error(t, NewNotifier(nil, "").PublishSummary(context.Background(), "x"))
}
