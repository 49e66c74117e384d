package domain

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateRecipe is returned by repositories when the link is already stored.
	ErrDuplicateRecipe = errors.New("recipe already exists")
	// ErrRecipeNotFound is returned when a lookup by ID yields nothing.
	ErrRecipeNotFound = errors.New("recipe not found")
)

// Message is a chat message that carries at least one link.
type Message struct {
	ID       string
	Author   string
	PostedAt time.Time
	Links    []string
}

// ScrapedMetadata is what the extractor pulls out of a recipe page.
// Empty ImageURL or Description means the page did not provide one.
type ScrapedMetadata struct {
	Title       string
	ImageURL    string
	Description string
}

// ClassifyInput is the text handed to the classifier. Description and Link may be empty.
type ClassifyInput struct {
	Title       string
	Description string
	Link        string
}

// Cuisine types understood by the classifier prompt.
const (
	CuisineJapanese = "和食"
	CuisineWestern  = "洋食"
	CuisineChinese  = "中華"
	CuisineItalian  = "イタリアン"
	CuisineFrench   = "フレンチ"
	CuisineEthnic   = "エスニック"
	CuisineOther    = "その他"
)

// Dish categories understood by the classifier prompt.
const (
	CategoryMain    = "主菜"
	CategorySide    = "副菜"
	CategorySoup    = "汁物"
	CategoryStaple  = "ご飯・麺"
	CategoryDessert = "デザート"
	CategoryOther   = "その他"
)

// MaxIngredients caps the ingredient list stored per recipe.
const MaxIngredients = 5

// Cuisines lists accepted cuisine values in prompt order.
var Cuisines = []string{
	CuisineJapanese, CuisineWestern, CuisineChinese, CuisineItalian,
	CuisineFrench, CuisineEthnic, CuisineOther,
}

// Categories lists accepted category values in prompt order.
var Categories = []string{
	CategoryMain, CategorySide, CategorySoup, CategoryStaple, CategoryDessert, CategoryOther,
}

// Classification holds the tags assigned to a recipe.
type Classification struct {
	Ingredients []string
	CuisineType string
	Category    string
}

// DefaultClassification is used whenever tagging cannot produce an answer.
func DefaultClassification() Classification {
	return Classification{
		Ingredients: []string{},
		CuisineType: CuisineOther,
		Category:    CategoryOther,
	}
}

// Recipe is the record persisted per link.
type Recipe struct {
	ID          string
	URL         string
	Title       string
	ImageURL    string
	Description string
	Ingredients []string
	CuisineType string
	Category    string
	PostedBy    string
	PostedAt    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecipeFilter narrows listings; empty fields match everything.
type RecipeFilter struct {
	CuisineType string
	Category    string
}

// NewRecipe assembles a record from the pieces gathered for one link.
func NewRecipe(link string, msg Message, meta ScrapedMetadata, cls Classification) Recipe {
	return Recipe{
		URL:         link,
		Title:       meta.Title,
		ImageURL:    meta.ImageURL,
		Description: meta.Description,
		Ingredients: cls.Ingredients,
		CuisineType: cls.CuisineType,
		Category:    cls.Category,
		PostedBy:    msg.Author,
		PostedAt:    msg.PostedAt,
	}
}
