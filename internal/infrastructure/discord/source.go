package discord

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
)

const (
	maxPageSize = 100
	// discordEpochMillis is the first millisecond of 2015, the snowflake epoch.
	discordEpochMillis = 1420070400000
)

var linkExpr = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")

// messageLister is the part of *discordgo.Session the source depends on.
type messageLister interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Source reads a channel's history through the Discord REST API and returns
// every human-authored message that contains at least one link.
type Source struct {
	api       messageLister
	channelID string
	pageSize  int
	logger    *slog.Logger
}

var _ ports.MessageSource = (*Source)(nil)

// NewSource wires a discordgo session; pageSize is clamped to 1..100.
func NewSource(api messageLister, channelID string, pageSize int, log *slog.Logger) *Source {
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &Source{
		api:       api,
		channelID: channelID,
		pageSize:  pageSize,
		logger:    log,
	}
}

// Fetch pages through the channel history until it runs out and returns
// messages oldest first. A nil since walks the whole history backwards from
// the newest message.
func (s *Source) Fetch(ctx context.Context, since *time.Time) ([]domain.Message, error) {
	if s.api == nil || s.channelID == "" {
		return nil, fmt.Errorf("discord source misconfigured")
	}

	var (
		raw []*discordgo.Message
		err error
	)
	if since == nil {
		raw, err = s.fetchBackward(ctx)
	} else {
		raw, err = s.fetchForward(ctx, *since)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(raw, func(i, j int) bool {
		return snowflakeLess(raw[i].ID, raw[j].ID)
	})

	messages := make([]domain.Message, 0, len(raw))
	for _, m := range raw {
		if since != nil && !m.Timestamp.After(*since) {
			continue
		}
		msg, ok := toMessage(m)
		if !ok {
			continue
		}
		messages = append(messages, msg)
	}

	s.debug("discord fetch done", "raw", len(raw), "with_links", len(messages))
	return messages, nil
}

func (s *Source) fetchBackward(ctx context.Context) ([]*discordgo.Message, error) {
	var (
		all    []*discordgo.Message
		before string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := s.api.ChannelMessages(s.channelID, s.pageSize, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("channel %s history: %w", s.channelID, err)
		}
		all = append(all, page...)
		s.debug("discord page", "direction", "backward", "size", len(page), "before", before)

		if len(page) < s.pageSize {
			return all, nil
		}
		before = oldestID(page)
	}
}

func (s *Source) fetchForward(ctx context.Context, since time.Time) ([]*discordgo.Message, error) {
	var all []*discordgo.Message
	after := snowflakeAfter(since)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := s.api.ChannelMessages(s.channelID, s.pageSize, "", after, "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("channel %s history: %w", s.channelID, err)
		}
		all = append(all, page...)
		s.debug("discord page", "direction", "forward", "size", len(page), "after", after)

		if len(page) < s.pageSize {
			return all, nil
		}
		after = newestID(page)
	}
}

func (s *Source) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func toMessage(m *discordgo.Message) (domain.Message, bool) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return domain.Message{}, false
	}
	links := ExtractLinks(m.Content)
	if len(links) == 0 {
		return domain.Message{}, false
	}
	return domain.Message{
		ID:       m.ID,
		Author:   m.Author.Username,
		PostedAt: m.Timestamp.UTC(),
		Links:    links,
	}, true
}

// ExtractLinks returns the distinct http(s) URLs in text, first occurrence wins.
func ExtractLinks(text string) []string {
	matches := linkExpr.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		links = append(links, m)
	}
	return links
}

// snowflakeAfter returns the largest snowflake that can belong to the
// millisecond of t, so "after" it means strictly later than t.
func snowflakeAfter(t time.Time) string {
	ms := t.UnixMilli() - discordEpochMillis
	if ms < 0 {
		return "0"
	}
	id := uint64(ms)<<22 | (1<<22 - 1)
	return strconv.FormatUint(id, 10)
}

func snowflakeLess(a, b string) bool {
	ai, errA := strconv.ParseUint(a, 10, 64)
	bi, errB := strconv.ParseUint(b, 10, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return ai < bi
}

func oldestID(page []*discordgo.Message) string {
	id := page[0].ID
	for _, m := range page[1:] {
		if snowflakeLess(m.ID, id) {
			id = m.ID
		}
	}
	return id
}

func newestID(page []*discordgo.Message) string {
	id := page[0].ID
	for _, m := range page[1:] {
		if snowflakeLess(id, m.ID) {
			id = m.ID
		}
	}
	return id
}
