package library

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/go-faker/faker/v4"

	"webinyframework/src/entity"
)

var countries = []string{"US", "GB", "BR", "DE", "FR", "JP", "NG", "IN"}

type SeedOptions struct {
	Authors        int
	BooksPerAuthor int
	Tags           int
	ReviewsPerBook int
}

type SeedResult struct {
	Authors int
	Books   int
	Tags    int
	Reviews int
}

// Seed fills the catalogue with generated data through the entity manager.
func Seed(ctx context.Context, manager *entity.Manager, opts SeedOptions) (SeedResult, error) {
	var result SeedResult

	tags := make([]*entity.Entity, 0, opts.Tags)
	for i := range opts.Tags {
		tag, err := create(ctx, manager, TagClass, map[string]any{
			"name": fmt.Sprintf("%s-%d", faker.Word(), i),
		})
		if err != nil {
			return result, err
		}
		tags = append(tags, tag)
		result.Tags++
	}

	for range opts.Authors {
		author, err := create(ctx, manager, AuthorClass, map[string]any{
			"name":    faker.Name(),
			"email":   faker.Email(),
			"born":    faker.Date(),
			"country": countries[rand.IntN(len(countries))],
		})
		if err != nil {
			return result, err
		}
		result.Authors++

		for range opts.BooksPerAuthor {
			reviews := make([]any, 0, opts.ReviewsPerBook)
			for range opts.ReviewsPerBook {
				reviews = append(reviews, map[string]any{
					"reviewer": faker.FirstName(),
					"rating":   int64(rand.IntN(5) + 1),
					"text":     faker.Sentence(),
				})
			}

			if _, err := create(ctx, manager, BookClass, map[string]any{
				"title":       faker.Sentence(),
				"pages":       int64(rand.IntN(850) + 50),
				"price":       float64(rand.IntN(7000)+500) / 100,
				"genre":       Genres[rand.IntN(len(Genres))],
				"publishedOn": faker.Date(),
				"author":      author,
				"tags":        pick(tags, 3),
				"reviews":     reviews,
			}); err != nil {
				return result, err
			}
			result.Books++
			result.Reviews += len(reviews)
		}
	}

	return result, nil
}

func create(ctx context.Context, manager *entity.Manager, class string, data map[string]any) (*entity.Entity, error) {
	e, err := manager.New(class)
	if err != nil {
		return nil, err
	}
	if err := e.Populate(data); err != nil {
		return nil, fmt.Errorf("library.Seed - %s: %w", class, err)
	}
	if err := e.Save(ctx); err != nil {
		return nil, fmt.Errorf("library.Seed - %s: %w", class, err)
	}
	return e, nil
}

// pick returns up to n distinct entities.
func pick(entities []*entity.Entity, n int) []any {
	picked := make([]any, 0, n)
	for _, i := range rand.Perm(len(entities)) {
		if len(picked) == n {
			break
		}
		picked = append(picked, entities[i])
	}
	return picked
}
