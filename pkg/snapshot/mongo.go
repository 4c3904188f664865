package snapshot

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
)

// Mongo defaults.
const (
	DefaultMongoDatabase   = "workgraph"
	DefaultMongoCollection = "snapshots"
)

// MongoStore keeps one document per snapshot. The workflow itself is stored
// as its JSON text so it round-trips byte for byte.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type mongoRecord struct {
	ID         string    `bson:"_id"`
	WorkflowID string    `bson:"workflow_id"`
	Title      string    `bson:"title"`
	CreatedAt  time.Time `bson:"created_at"`
	Document   string    `bson:"document,omitempty"`
}

func (r mongoRecord) info() Info {
	return Info{ID: r.ID, WorkflowID: r.WorkflowID, Title: r.Title, CreatedAt: r.CreatedAt.UTC()}
}

// OpenMongo connects to uri, checks the connection and ensures the listing
// index exists.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	if database == "" {
		database = DefaultMongoDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, wgerrors.Wrap(wgerrors.ErrCodeNetwork, err, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, wgerrors.Wrap(wgerrors.ErrCodeNetwork, err, "ping mongo")
	}
	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(DefaultMongoCollection),
	}
	_, err = s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "workflow_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, backendErr(err, "create snapshot index")
	}
	return s, nil
}

func (s *MongoStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := checkSnapshot(snap); err != nil {
		return err
	}
	rec := mongoRecord{
		ID:         snap.ID,
		WorkflowID: snap.WorkflowID,
		Title:      snap.Title,
		CreatedAt:  snap.CreatedAt,
		Document:   string(snap.Document),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": snap.ID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return backendErr(err, "save snapshot")
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var rec mongoRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, backendErr(err, "load snapshot")
	}
	return &Snapshot{Info: rec.info(), Document: []byte(rec.Document)}, nil
}

func (s *MongoStore) List(ctx context.Context, workflowID string) ([]Info, error) {
	filter := bson.M{}
	if workflowID != "" {
		filter["workflow_id"] = workflowID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"document": 0})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, backendErr(err, "list snapshots")
	}
	var recs []mongoRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, backendErr(err, "list snapshots")
	}
	out := make([]Info, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.info())
	}
	return out, nil
}

func (s *MongoStore) Rename(ctx context.Context, id, title string) error {
	if err := checkID(id); err != nil {
		return err
	}
	title, err := wgerrors.ValidateTitle(title)
	if err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"title": title}})
	if err != nil {
		return backendErr(err, "rename snapshot")
	}
	if res.MatchedCount == 0 {
		return notFound(id)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return backendErr(err, "delete snapshot")
	}
	if res.DeletedCount == 0 {
		return notFound(id)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
