package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"RecipeCollector/internal/domain"
	"RecipeCollector/internal/ports"
)

const (
	recipesTable = "recipes"

	uniqueViolation = "23505"
)

var recipeColumns = []string{
	"id", "url", "title", "image_url", "description", "ingredients",
	"cuisine_type", "category", "posted_by", "posted_at", "created_at", "updated_at",
}

// PostgresRepository persists recipes into Postgres. Writes are insert-only.
type PostgresRepository struct {
	db    *sql.DB
	psql  sq.StatementBuilderType
	newID func() string
}

var (
	_ ports.RecipeRepository = (*PostgresRepository)(nil)
	_ ports.RecipeReader     = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:    db,
		psql:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		newID: func() string { return uuid.NewString() },
	}
}

// Exists reports whether a recipe with exactly this URL is stored.
func (r *PostgresRepository) Exists(ctx context.Context, link string) (bool, error) {
	query, args, err := r.psql.Select("1").From(recipesTable).Where(sq.Eq{"url": link}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query recipe url: %w", err)
	}
	return true, nil
}

// Create inserts a new recipe. A URL that is already stored yields domain.ErrDuplicateRecipe.
func (r *PostgresRepository) Create(ctx context.Context, recipe domain.Recipe) error {
	if recipe.ID == "" {
		recipe.ID = r.newID()
	}
	ingredients := recipe.Ingredients
	if ingredients == nil {
		ingredients = []string{}
	}

	query, args, err := r.psql.Insert(recipesTable).
		Columns("id", "url", "title", "image_url", "description", "ingredients",
			"cuisine_type", "category", "posted_by", "posted_at").
		Values(
			recipe.ID,
			recipe.URL,
			recipe.Title,
			nullString(recipe.ImageURL),
			nullString(recipe.Description),
			pq.Array(ingredients),
			recipe.CuisineType,
			recipe.Category,
			nullString(recipe.PostedBy),
			nullTime(recipe.PostedAt),
		).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("insert %s: %w", recipe.URL, domain.ErrDuplicateRecipe)
		}
		return fmt.Errorf("insert recipe: %w", err)
	}
	return nil
}

// FindAll returns recipes matching filter, newest post first.
func (r *PostgresRepository) FindAll(ctx context.Context, filter domain.RecipeFilter) ([]domain.Recipe, error) {
	builder := r.psql.Select(recipeColumns...).From(recipesTable)
	if filter.CuisineType != "" {
		builder = builder.Where(sq.Eq{"cuisine_type": filter.CuisineType})
	}
	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"category": filter.Category})
	}

	query, args, err := builder.OrderBy("posted_at DESC NULLS LAST").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recipes: %w", err)
	}
	defer rows.Close()

	recipes := make([]domain.Recipe, 0)
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return recipes, nil
}

// FindByID returns domain.ErrRecipeNotFound for unknown or malformed IDs.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (domain.Recipe, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Recipe{}, domain.ErrRecipeNotFound
	}

	query, args, err := r.psql.Select(recipeColumns...).From(recipesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("build get query: %w", err)
	}

	recipe, err := scanRecipe(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Recipe{}, domain.ErrRecipeNotFound
	}
	return recipe, err
}

// Count returns the number of stored recipes.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	query, args, err := r.psql.Select("COUNT(*)").From(recipesTable).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recipes: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipe(row rowScanner) (domain.Recipe, error) {
	var (
		recipe                          domain.Recipe
		imageURL, description, postedBy sql.NullString
		postedAt                        sql.NullTime
		ingredients                     []string
	)
	err := row.Scan(
		&recipe.ID,
		&recipe.URL,
		&recipe.Title,
		&imageURL,
		&description,
		pq.Array(&ingredients),
		&recipe.CuisineType,
		&recipe.Category,
		&postedBy,
		&postedAt,
		&recipe.CreatedAt,
		&recipe.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Recipe{}, err
		}
		return domain.Recipe{}, fmt.Errorf("scan recipe: %w", err)
	}

	recipe.ImageURL = imageURL.String
	recipe.Description = description.String
	recipe.PostedBy = postedBy.String
	recipe.PostedAt = postedAt.Time
	recipe.Ingredients = ingredients
	if recipe.Ingredients == nil {
		recipe.Ingredients = []string{}
	}
	return recipe, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
