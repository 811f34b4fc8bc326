package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"webinyframework/src/entity"
	"webinyframework/src/helper/env"
	infraMongo "webinyframework/src/infra/mongo"
	"webinyframework/src/library"
)

func main() {
	authors := flag.Int("authors", 20, "Number of authors to generate")
	booksPerAuthor := flag.Int("books-per-author", 5, "Number of books per author")
	tags := flag.Int("tags", 15, "Number of tags to generate")
	reviewsPerBook := flag.Int("reviews-per-book", 3, "Number of reviews per book")
	mongoURI := flag.String("mongo-uri", env.GetString("MONGO_URI"), "MongoDB connection string")
	database := flag.String("database", env.GetString("MONGO_DATABASE", "webiny"), "MongoDB database name")
	drop := flag.Bool("drop", false, "Drop the database before seeding")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if *mongoURI == "" {
		logger.Error("-mongo-uri or MONGO_URI is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := infraMongo.NewMongoClient(ctx, *mongoURI, 10, 10*time.Second)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	db := infraMongo.NewDatabase(client, *database)
	defer db.Close(context.Background())

	if *drop {
		if err := db.Drop(ctx); err != nil {
			logger.Error("Failed to drop database", "error", err)
			os.Exit(1)
		}
	}

	manager := entity.NewManager(logger, db)
	if err := library.Register(manager); err != nil {
		logger.Error("Failed to register classes", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	result, err := library.Seed(ctx, manager, library.SeedOptions{
		Authors:        *authors,
		BooksPerAuthor: *booksPerAuthor,
		Tags:           *tags,
		ReviewsPerBook: *reviewsPerBook,
	})
	if err != nil {
		logger.Error("Seeding failed", "error", err, "partial", result)
		os.Exit(1)
	}

	logger.Info("Catalogue seeded",
		"authors", result.Authors,
		"books", result.Books,
		"tags", result.Tags,
		"reviews", result.Reviews,
		"duration", time.Since(start).String())
}
