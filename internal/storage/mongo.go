package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qrchat/internal/apperr"
	"qrchat/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const defaultMongoDatabase = "ai-chatbot"

// MongoConn dials the document database on first use and shares the client
// afterwards. A failed dial is not remembered, so the next call retries.
type MongoConn struct {
	uri string

	mu     sync.Mutex
	client *mongo.Client
}

func NewMongoConn(uri string) *MongoConn {
	return &MongoConn{uri: uri}
}

// Client returns the connected client, connecting and pinging if needed.
func (c *MongoConn) Client(ctx context.Context) (*mongo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(c.uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	c.client = client
	return client, nil
}

// Close disconnects the client if one was established.
func (c *MongoConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Disconnect(ctx)
	c.client = nil
	return err
}

// databaseName returns the database named in the connection string path.
func (c *MongoConn) databaseName() string {
	cs, err := connstring.ParseAndValidate(c.uri)
	if err != nil || cs.Database == "" {
		return defaultMongoDatabase
	}
	return cs.Database
}

type mongoMessage struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Content   string             `bson:"content"`
	Sender    string             `bson:"sender"`
	Timestamp time.Time          `bson:"timestamp"`
}

func (m mongoMessage) toModel() *models.Message {
	return &models.Message{
		ID:        m.ID.Hex(),
		Content:   m.Content,
		Sender:    models.Sender(m.Sender),
		Timestamp: m.Timestamp.UTC(),
	}
}

// MongoStore stores one document per message; ids are ObjectIDs.
type MongoStore struct {
	conn       *MongoConn
	database   string
	collection string
	clock      stampClock
}

func NewMongoStore(conn *MongoConn, database, collection string) *MongoStore {
	if database == "" {
		database = conn.databaseName()
	}
	if collection == "" {
		collection = "messages"
	}
	return &MongoStore{conn: conn, database: database, collection: collection}
}

func (s *MongoStore) coll(ctx context.Context) (*mongo.Collection, error) {
	client, err := s.conn.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(s.database).Collection(s.collection), nil
}

func (s *MongoStore) Append(ctx context.Context, content string, sender models.Sender) (*models.Message, error) {
	if err := models.ValidateNew(content, sender); err != nil {
		return nil, err
	}
	coll, err := s.coll(ctx)
	if err != nil {
		return nil, apperr.Storage("failed to save message", err)
	}

	doc := mongoMessage{
		ID:        primitive.NewObjectID(),
		Content:   content,
		Sender:    string(sender),
		Timestamp: s.clock.next(),
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return nil, apperr.Storage("failed to save message", fmt.Errorf("mongo insert: %w", err))
	}
	return doc.toModel(), nil
}

func (s *MongoStore) List(ctx context.Context) ([]*models.Message, error) {
	coll, err := s.coll(ctx)
	if err != nil {
		return nil, apperr.Storage("failed to fetch messages", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, apperr.Storage("failed to fetch messages", fmt.Errorf("mongo find: %w", err))
	}
	var docs []mongoMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperr.Storage("failed to fetch messages", fmt.Errorf("mongo decode: %w", err))
	}

	messages := make([]*models.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, doc.toModel())
	}
	return messages, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}
