package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gatilho_backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB archive configuration
const (
	MongoDatabaseName      = "gatilho"
	MongoTriggerCollection = "trigger_events"
	mongoOpTimeout         = 5 * time.Second
)

// TriggerRecord is the long-term history document written for every trigger.
// Relational rows are hard-deleted by retention cleanup after 30 days; the
// archive keeps the full history.
type TriggerRecord struct {
	AlertID      uint             `bson:"alert_id" json:"alert_id"`
	UserID       uint             `bson:"user_id" json:"user_id"`
	Ticker       string           `bson:"ticker" json:"ticker"`
	AlertType    models.AlertType `bson:"alert_type" json:"alert_type"`
	Condition    models.Condition `bson:"condition" json:"condition"`
	TargetValue  float64          `bson:"target_value" json:"target_value"`
	CurrentValue float64          `bson:"current_value" json:"current_value"`
	Synthetic    bool             `bson:"synthetic" json:"synthetic"`
	TriggeredAt  time.Time        `bson:"triggered_at" json:"triggered_at"`
}

// MongoArchive persists trigger history to MongoDB Atlas. It is optional:
// without MONGODB_URI every operation is a silent no-op.
type MongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
	enabled    bool
}

// NewMongoArchive connects to MongoDB when uri is set; an empty uri returns
// a disabled archive.
func NewMongoArchive(uri string) (*MongoArchive, error) {
	if uri == "" {
		log.Println("MONGODB_URI not set, trigger archive disabled")
		return &MongoArchive{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("MongoDB ping failed: %w", err)
	}

	log.Println("Trigger archive connected to MongoDB")
	return &MongoArchive{
		client:     client,
		collection: client.Database(MongoDatabaseName).Collection(MongoTriggerCollection),
		enabled:    true,
	}, nil
}

// Enabled reports whether the archive is connected
func (m *MongoArchive) Enabled() bool {
	return m != nil && m.enabled
}

// SaveTrigger records one trigger event
func (m *MongoArchive) SaveTrigger(record TriggerRecord) error {
	if !m.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	if _, err := m.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to archive trigger for alert %d: %w", record.AlertID, err)
	}
	return nil
}

// RecentTriggers returns the latest archived triggers, newest first
func (m *MongoArchive) RecentTriggers(limit int64) ([]TriggerRecord, error) {
	if !m.Enabled() {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "triggered_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := m.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load archived triggers: %w", err)
	}
	defer cursor.Close(ctx)

	var records []TriggerRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode archived triggers: %w", err)
	}
	return records, nil
}

// Close disconnects from MongoDB
func (m *MongoArchive) Close() {
	if !m.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	if err := m.client.Disconnect(ctx); err != nil {
		log.Printf("Error closing MongoDB connection: %v", err)
	}
}
