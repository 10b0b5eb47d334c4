package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"dm-service/internal/models"
)

// MongoMessageRepo stores messages in a MongoDB collection.
type MongoMessageRepo struct {
	coll *mongo.Collection
	seq  atomic.Int64
}

// NewMongoMessageRepo constructs a MongoMessageRepo over the "messages" collection.
func NewMongoMessageRepo(db *mongo.Database) *MongoMessageRepo {
	r := &MongoMessageRepo{coll: db.Collection("messages")}
	// seq breaks created_at ties in insertion order within this process.
	r.seq.Store(time.Now().UnixNano())
	return r
}

func (r *MongoMessageRepo) Append(ctx context.Context, senderID, receiverID string, payload models.Payload) (models.Message, error) {
	if err := payload.Validate(); err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       payload.Text,
		Image:      payload.Image,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
		Seq:        r.seq.Add(1),
	}
	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (r *MongoMessageRepo) Conversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"senderId": userA, "receiverId": userB},
		bson.M{"senderId": userB, "receiverId": userA},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "seq", Value: 1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	defer cursor.Close(ctx)

	msgs := []models.Message{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return msgs, nil
}

func (r *MongoMessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

func (r *MongoMessageRepo) MarkSeen(ctx context.Context, receiverID, senderID string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"receiverId": receiverID, "senderId": senderID, "seen": false},
		bson.M{"$set": bson.M{"seen": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark seen: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *MongoMessageRepo) MarkSeenByID(ctx context.Context, messageID, receiverID string) error {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ReceiverID != receiverID {
		return ErrNotReceiver
	}
	_, err = r.coll.UpdateOne(ctx, bson.M{"_id": messageID, "seen": false}, bson.M{"$set": bson.M{"seen": true}})
	return err
}

func (r *MongoMessageRepo) MarkDeleted(ctx context.Context, messageID, requesterID string) (models.Message, error) {
	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if msg.SenderID != requesterID {
		return models.Message{}, ErrNotSender
	}
	if msg.Deleted {
		return msg, nil
	}
	if _, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": messageID, "senderId": requesterID},
		bson.M{"$set": bson.M{"deleted": true}},
	); err != nil {
		return models.Message{}, fmt.Errorf("mark deleted: %w", err)
	}
	msg.Deleted = true
	return msg, nil
}

func (r *MongoMessageRepo) UnseenCounts(ctx context.Context, viewerID string) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "receiverId", Value: viewerID},
			{Key: "seen", Value: false},
			{Key: "deleted", Value: false},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$senderId"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("unseen counts: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		SenderID string `bson:"_id"`
		Count    int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.SenderID] = row.Count
	}
	return counts, nil
}

// MongoParticipantRepo reads participant profiles from the "participants" collection.
type MongoParticipantRepo struct {
	coll *mongo.Collection
}

// NewMongoParticipantRepo constructs a MongoParticipantRepo.
func NewMongoParticipantRepo(db *mongo.Database) *MongoParticipantRepo {
	return &MongoParticipantRepo{coll: db.Collection("participants")}
}

func (r *MongoParticipantRepo) ListOthers(ctx context.Context, userID string) ([]models.Participant, error) {
	opts := options.Find().SetSort(bson.D{{Key: "fullName", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$ne": userID}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	list := []models.Participant{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *MongoParticipantRepo) GetParticipant(ctx context.Context, participantID string) (models.Participant, error) {
	var p models.Participant
	err := r.coll.FindOne(ctx, bson.M{"_id": participantID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Participant{}, ErrParticipantNotFound
	}
	return p, err
}

var (
	_ MessageRepository     = (*MongoMessageRepo)(nil)
	_ ParticipantRepository = (*MongoParticipantRepo)(nil)
)
