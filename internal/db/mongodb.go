package db

import (
	"context"
	"fmt"
	"time"

	"github.com/abkawan/banking-accounts/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	HistoryCollection = "account_histories"
	EventCollection   = "account_events"
)

// for handling MongoDB audit storage: account histories and the event journal
type MongoDB struct {
	client    *mongo.Client
	histories *mongo.Collection
	events    *mongo.Collection
}

// historyDocument is the stored shape of an AccountHistory
type historyDocument struct {
	ID              string    `bson:"_id"`
	AccountID       string    `bson:"account_id"`
	Document        string    `bson:"document"`
	Action          string    `bson:"action"`
	ResponsibleUser string    `bson:"responsible_user"`
	ActionDate      time.Time `bson:"action_date"`
}

// creates a new MongoDB instance
func NewMongoDB(uri, dbName string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Mongodb: %w", err)
	}

	// pinging the database
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping Mongodb: %w", err)
	}

	database := client.Database(dbName)
	histories := database.Collection(HistoryCollection)
	events := database.Collection(EventCollection)

	historyIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "action_date", Value: -1}},
			Options: options.Index().SetBackground(true),
		},
		{
			Keys:    bson.D{{Key: "document", Value: 1}},
			Options: options.Index().SetBackground(true),
		},
	}
	if _, err := histories.Indexes().CreateMany(ctx, historyIndexes); err != nil {
		return nil, fmt.Errorf("failed to create history indexes: %w", err)
	}

	eventIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options: options.Index().SetBackground(true),
		},
	}
	if _, err := events.Indexes().CreateMany(ctx, eventIndexes); err != nil {
		return nil, fmt.Errorf("failed to create event indexes: %w", err)
	}

	return &MongoDB{
		client:    client,
		histories: histories,
		events:    events,
	}, nil
}

// closes the mongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// stores an audit record; invalid records are refused
func (m *MongoDB) Create(ctx context.Context, history *models.AccountHistory) error {
	if !history.IsValid() {
		return models.ErrInvalidHistory
	}

	doc := historyDocument{
		ID:              history.ID().String(),
		AccountID:       history.AccountID().String(),
		Document:        history.Document(),
		Action:          history.Action(),
		ResponsibleUser: history.ResponsibleUser(),
		ActionDate:      history.ActionDate(),
	}
	if _, err := m.histories.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert account history: %w", err)
	}
	return nil
}

// retrieves the audit trail for an account, newest first
func (m *MongoDB) GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.AccountHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "action_date", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	cursor, err := m.histories.Find(ctx, bson.M{"account_id": accountID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find account histories: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []historyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode account histories: %w", err)
	}

	out := make([]*models.AccountHistory, 0, len(docs))
	for _, d := range docs {
		h, err := d.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (d historyDocument) toModel() (*models.AccountHistory, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("corrupt history id %q: %w", d.ID, err)
	}
	accountID, err := uuid.Parse(d.AccountID)
	if err != nil {
		return nil, fmt.Errorf("corrupt history account id %q: %w", d.AccountID, err)
	}
	return models.RestoreAccountHistory(id, accountID, d.Document, d.Action, d.ResponsibleUser, d.ActionDate), nil
}

// appends an event to the journal; returns false when the event id was already journaled
func (m *MongoDB) AppendEvent(ctx context.Context, event models.AccountEvent) (bool, error) {
	if _, err := m.events.InsertOne(ctx, event); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to journal event: %w", err)
	}
	return true, nil
}
