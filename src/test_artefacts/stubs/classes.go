package stubs

import (
	"fmt"

	"webinyframework/src/entity"
)

const (
	AuthorClass    = "Author"
	BookClass      = "Book"
	TagClass       = "Tag"
	ReviewClass    = "Review"
	NoteClass      = "Note"
	ShelfClass     = "Shelf"
	ShelfItemClass = "ShelfItem"
)

// Classes is a small catalogue exercising every attribute variant and delete policy.
// Note links tags without a reciprocal attribute on Tag.
func Classes() []entity.Class {
	return []entity.Class{
		{
			Name:       AuthorClass,
			Collection: "authors",
			Structure: func(s *entity.Structure) {
				s.Attr("name").Char().SetRequired(true).SetValidators("min=2,max=64")
				s.Attr("email").Char().SetValidators("omitempty,email")
				s.Attr("born").Date()
				s.Attr("books").One2Many("author").SetEntity(BookClass).SetSort("title")
			},
		},
		{
			Name:       BookClass,
			Collection: "books",
			Timestamps: true,
			Structure: func(s *entity.Structure) {
				s.Attr("title").Char().SetRequired(true)
				s.Attr("isbn").Char().SetOnce(true)
				s.Attr("pages").Integer().SetValidators("gte=0")
				s.Attr("price").Float()
				s.Attr("published").Boolean().SetDefaultValue(false)
				s.Attr("genre").Select("fiction", "science", "history")
				s.Attr("keywords").Array()
				s.Attr("meta").Object()
				s.Attr("releasedOn").DateTime()
				s.Attr("location").GeoPoint()
				s.Attr("author").Many2One().SetEntity(AuthorClass)
				s.Attr("tags").Many2Many("books2tags").SetEntity(TagClass)
				s.Attr("reviews").One2Many("book").SetEntity(ReviewClass).SetOnDelete(entity.OnDeleteRestrict)
				s.Attr("summary").Dynamic(func(e *entity.Entity) any {
					return fmt.Sprintf("%v (%v pages)", e.Get("title"), e.Get("pages"))
				})
			},
		},
		{
			Name:       TagClass,
			Collection: "tags",
			Structure: func(s *entity.Structure) {
				s.Attr("name").Char().SetRequired(true)
				s.Attr("books").Many2Many("books2tags").SetEntity(BookClass)
			},
		},
		{
			Name:       ReviewClass,
			Collection: "reviews",
			Structure: func(s *entity.Structure) {
				s.Attr("text").Char()
				s.Attr("rating").Integer().SetValidators("min=1,max=5")
				s.Attr("book").Many2One().SetEntity(BookClass)
			},
		},
		{
			Name:       NoteClass,
			Collection: "notes",
			Structure: func(s *entity.Structure) {
				s.Attr("text").Char()
				s.Attr("tags").Many2Many("notes2tags").SetEntity(TagClass)
			},
		},
		{
			Name:       ShelfClass,
			Collection: "shelves",
			Structure: func(s *entity.Structure) {
				s.Attr("label").Char()
				s.Attr("items").One2Many("shelf").SetEntity(ShelfItemClass).SetOnDelete(entity.OnDeleteIgnore)
			},
		},
		{
			Name:       ShelfItemClass,
			Collection: "shelf_items",
			Structure: func(s *entity.Structure) {
				s.Attr("label").Char()
				s.Attr("shelf").Many2One().SetEntity(ShelfClass)
			},
		},
	}
}
