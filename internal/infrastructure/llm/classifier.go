package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
)

const defaultTimeout = 60 * time.Second

const promptTemplate = `以下のレシピ情報から、素材・ジャンル・カテゴリを抽出してください。

【レシピ情報】
タイトル: %s
説明: %s
URL: %s

【抽出ルール】
1. 素材（ingredients）: レシピで使われている主要な食材を配列で返す（最大%dつ）
   例: ["鶏肉", "トマト", "玉ねぎ", "にんにく", "バジル"]

2. ジャンル（cuisine_type）: 料理のジャンルを1つ選択
   選択肢: %s

3. カテゴリ（category）: 料理の種類を1つ選択
   選択肢: %s

【出力形式】
必ずJSON形式で返してください。他の説明文は不要です。

{
  "ingredients": ["素材1", "素材2", "素材3"],
  "cuisine_type": "ジャンル",
  "category": "カテゴリ"
}`

// Completer sends a prompt to a language model and returns its raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Classifier turns recipe text into tags. It never fails: backend errors,
// timeouts and unparsable replies all yield domain.DefaultClassification.
type Classifier struct {
	backend Completer
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier wraps a completion backend; timeout <= 0 uses 60s.
func NewClassifier(backend Completer, timeout time.Duration, limiter *rate.Limiter, log *slog.Logger) *Classifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Classifier{backend: backend, timeout: timeout, limiter: limiter, logger: log}
}

// Classify asks the backend for tags within the configured timeout.
func (c *Classifier) Classify(ctx context.Context, in domain.ClassifyInput) domain.Classification {
	if c == nil || c.backend == nil {
		return domain.DefaultClassification()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				done <- reply{err: fmt.Errorf("rate limit: %w", err)}
				return
			}
		}
		text, err := c.backend.Complete(ctx, BuildPrompt(in))
		done <- reply{text: text, err: err}
	}()

	// The select keeps the bound even if a backend ignores ctx.
	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		r = reply{err: ctx.Err()}
	}

	if r.err != nil {
		c.warn("classification failed, using default", "title", in.Title, "error", r.err)
		return domain.DefaultClassification()
	}

	cls, err := ParseResponse(r.text)
	if err != nil {
		c.warn("classification reply unusable, using default", "title", in.Title, "error", err)
		return domain.DefaultClassification()
	}

	c.debug("classified", "title", in.Title, "cuisine", cls.CuisineType, "category", cls.Category)
	return cls
}

// BuildPrompt renders the tagging prompt; empty description or link are spelled out.
func BuildPrompt(in domain.ClassifyInput) string {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = "説明なし"
	}
	link := strings.TrimSpace(in.Link)
	if link == "" {
		link = "URLなし"
	}
	return fmt.Sprintf(promptTemplate,
		in.Title,
		description,
		link,
		domain.MaxIngredients,
		quoteAll(domain.Cuisines),
		quoteAll(domain.Categories))
}

type rawClassification struct {
	Ingredients []string `json:"ingredients"`
	CuisineType string   `json:"cuisine_type"`
	Category    string   `json:"category"`
}

// ParseResponse extracts the JSON object from a model reply, tolerating
// ```json fences, and normalises it into a Classification.
func ParseResponse(text string) (domain.Classification, error) {
	payload := stripFences(text)
	if payload == "" {
		return domain.Classification{}, errors.New("empty reply")
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return domain.Classification{}, fmt.Errorf("decode reply: %w", err)
	}

	return normalize(raw), nil
}

func normalize(raw rawClassification) domain.Classification {
	ingredients := make([]string, 0, domain.MaxIngredients)
	for _, item := range raw.Ingredients {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		ingredients = append(ingredients, item)
		if len(ingredients) == domain.MaxIngredients {
			break
		}
	}

	return domain.Classification{
		Ingredients: ingredients,
		CuisineType: oneOf(raw.CuisineType, domain.Cuisines, domain.CuisineOther),
		Category:    oneOf(raw.Category, domain.Categories, domain.CategoryOther),
	}
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if _, after, ok := strings.Cut(text, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	if _, after, ok := strings.Cut(text, "```"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	return text
}

func oneOf(value string, allowed []string, fallback string) string {
	value = strings.TrimSpace(value)
	if slices.Contains(allowed, value) {
		return value
	}
	return fallback
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + v + `"`
	}
	return strings.Join(quoted, ", ")
}

func (c *Classifier) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Classifier) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
