package mongo_test

import (
	"context"
	"fmt"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"webinyframework/src/entity"
	"webinyframework/src/infra/mongo"
)

var _ = Describe("Database", Ordered, func() {
	var (
		ctx      context.Context
		database *mongo.Database
	)

	BeforeAll(func() {
		uri := os.Getenv("TEST_MONGO_URI")
		if uri == "" {
			Skip("TEST_MONGO_URI is not set")
		}

		ctx = context.Background()
		client, err := mongo.NewMongoClient(ctx, uri, 10, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		database = mongo.NewDatabase(client, fmt.Sprintf("webiny_test_%d", time.Now().UnixNano()))
		DeferCleanup(func() {
			Expect(database.Drop(ctx)).To(Succeed())
			Expect(database.Close(ctx)).To(Succeed())
		})
	})

	It("stores, queries and removes documents", func() {
		// ARRANGE
		first := primitive.NewObjectID()
		second := primitive.NewObjectID()
		Expect(database.Insert(ctx, "books", bson.M{"_id": first, "title": "Emma", "meta": bson.M{"lang": "en"}})).To(Succeed())
		Expect(database.Insert(ctx, "books", bson.M{"_id": second, "title": "Dune"})).To(Succeed())

		// ACT
		documents, err := database.Find(ctx, "books", bson.M{}, entity.FindOptions{Sort: entity.ParseSort("title"), Limit: 1})

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(documents).To(HaveLen(1))
		Expect(documents[0]["title"]).To(Equal("Dune"))

		count, err := database.Count(ctx, "books", bson.M{})
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(int64(2)))

		Expect(database.Update(ctx, "books", bson.M{"_id": first}, bson.M{"title": "Persuasion"})).To(Succeed())
		document, err := database.FindOne(ctx, "books", bson.M{"_id": first})
		Expect(err).NotTo(HaveOccurred())
		Expect(document["title"]).To(Equal("Persuasion"))
		Expect(document["meta"]).To(Equal(bson.M{"lang": "en"}))

		deleted, err := database.Delete(ctx, "books", bson.M{"_id": bson.M{"$in": []primitive.ObjectID{first, second}}})
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted).To(Equal(int64(2)))
	})

	It("returns no document and no error when nothing matches", func() {
		document, err := database.FindOne(ctx, "books", bson.M{"_id": primitive.NewObjectID()})

		Expect(err).NotTo(HaveOccurred())
		Expect(document).To(BeNil())
	})

	It("works as entity storage", func() {
		manager := entity.NewManager(newLogger(), database)
		Expect(manager.Register(entity.Class{
			Name:       "Note",
			Collection: "notes",
			Structure: func(s *entity.Structure) {
				s.Attr("text").Char().SetRequired(true)
			},
		})).To(Succeed())

		note, err := manager.New("Note")
		Expect(err).NotTo(HaveOccurred())
		Expect(note.Populate(map[string]any{"text": "hello"})).To(Succeed())
		Expect(note.Save(ctx)).To(Succeed())

		loaded, err := manager.Session().FindByID(ctx, "Note", note.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Get("text")).To(Equal("hello"))
	})
})
