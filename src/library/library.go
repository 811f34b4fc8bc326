// Package library is the sample catalogue served by the API: authors write books,
// books carry tags and collect reviews.
package library

import (
	"strings"
	"unicode"

	"webinyframework/src/entity"
)

const (
	AuthorClass = "Author"
	BookClass   = "Book"
	TagClass    = "Tag"
	ReviewClass = "Review"
)

var Genres = []string{"fiction", "fantasy", "science", "history", "biography", "poetry"}

func Classes() []entity.Class {
	return []entity.Class{
		{
			Name:       AuthorClass,
			Collection: "authors",
			Timestamps: true,
			Structure: func(s *entity.Structure) {
				s.Attr("name").Char().SetRequired(true).SetValidators("min=2,max=128")
				s.Attr("email").Char().SetValidators("omitempty,email")
				s.Attr("born").Date()
				s.Attr("country").Char().SetValidators("omitempty,iso3166_1_alpha2")
				s.Attr("books").One2Many("author").SetEntity(BookClass).SetSort("-publishedOn")
			},
		},
		{
			Name:       BookClass,
			Collection: "books",
			Timestamps: true,
			Structure: func(s *entity.Structure) {
				s.Attr("title").Char().SetRequired(true).SetValidators("max=256")
				s.Attr("isbn").Char().SetOnce(true).SetValidators("omitempty,isbn")
				s.Attr("pages").Integer().SetValidators("gte=0")
				s.Attr("price").Float().SetValidators("gte=0")
				s.Attr("genre").Select(Genres...)
				s.Attr("publishedOn").Date()
				s.Attr("available").Boolean().SetDefaultValue(true)
				s.Attr("author").Many2One().SetEntity(AuthorClass)
				s.Attr("tags").Many2Many("books2tags").SetEntity(TagClass)
				s.Attr("reviews").One2Many("book").SetEntity(ReviewClass)
				s.Attr("slug").Dynamic(func(e *entity.Entity) any {
					title, _ := e.Get("title").(string)
					return Slug(title)
				})
			},
		},
		{
			Name:       TagClass,
			Collection: "tags",
			Structure: func(s *entity.Structure) {
				s.Attr("name").Char().SetRequired(true).SetValidators("min=1,max=64")
				s.Attr("books").Many2Many("books2tags").SetEntity(BookClass)
			},
		},
		{
			Name:       ReviewClass,
			Collection: "reviews",
			Timestamps: true,
			Structure: func(s *entity.Structure) {
				s.Attr("reviewer").Char().SetRequired(true)
				s.Attr("rating").Integer().SetRequired(true).SetValidators("min=1,max=5")
				s.Attr("text").Char().SetValidators("max=4096")
				s.Attr("book").Many2One().SetEntity(BookClass)
			},
		},
	}
}

// Register adds the catalogue classes to the manager.
func Register(manager *entity.Manager) error {
	return manager.Register(Classes()...)
}

// Slug lowercases the title and joins its words with dashes.
func Slug(title string) string {
	words := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, "-")
}
