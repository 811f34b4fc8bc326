package stubs

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// BookStub builds a Book payload as it arrives from a decoded request body.
type BookStub struct {
	data map[string]any
}

func NewBookStub() BookStub {
	return BookStub{data: map[string]any{
		"title":    gofakeit.Sentence(3),
		"pages":    int64(gofakeit.Number(50, 900)),
		"price":    gofakeit.Price(5, 80),
		"genre":    gofakeit.RandomString([]string{"fiction", "science", "history"}),
		"keywords": []any{gofakeit.Word(), gofakeit.Word()},
	}}
}

func (bs BookStub) With(attribute string, value any) BookStub {
	data := make(map[string]any, len(bs.data)+1)
	for key, v := range bs.data {
		data[key] = v
	}
	data[attribute] = value
	return BookStub{data: data}
}

func (bs BookStub) WithTitle(title string) BookStub {
	return bs.With("title", title)
}

func (bs BookStub) WithAuthor(author any) BookStub {
	return bs.With("author", author)
}

func (bs BookStub) Without(attribute string) BookStub {
	data := make(map[string]any, len(bs.data))
	for key, v := range bs.data {
		if key != attribute {
			data[key] = v
		}
	}
	return BookStub{data: data}
}

func (bs BookStub) Get() map[string]any {
	return bs.data
}

type AuthorStub struct {
	data map[string]any
}

func NewAuthorStub() AuthorStub {
	return AuthorStub{data: map[string]any{
		"name":  gofakeit.Name(),
		"email": gofakeit.Email(),
		"born":  gofakeit.DateRange(mustDate("1900-01-01"), mustDate("2000-12-31")).Format("2006-01-02"),
	}}
}

func (as AuthorStub) WithName(name string) AuthorStub {
	data := make(map[string]any, len(as.data))
	for key, v := range as.data {
		data[key] = v
	}
	data["name"] = name
	return AuthorStub{data: data}
}

func (as AuthorStub) Get() map[string]any {
	return as.data
}

func NewTagStub() map[string]any {
	return map[string]any{"name": gofakeit.HipsterWord() + "-" + gofakeit.LetterN(4)}
}

func mustDate(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}
