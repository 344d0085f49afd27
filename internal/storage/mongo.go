package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"canvas/internal/domain"
)

// MongoStore implements domain.Store on MongoDB. Every document carries a
// canvasId field; live snapshots come from change streams, or from
// polling when the deployment does not support them (standalone servers).
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	poll   time.Duration
	log    *slog.Logger
}

var _ domain.Store = (*MongoStore)(nil)

type previewDoc struct {
	CanvasID       string `bson:"canvasId"`
	domain.Preview `bson:",inline"`
}

type containerDoc struct {
	CanvasID         string `bson:"canvasId"`
	domain.Container `bson:",inline"`
}

type participantDoc struct {
	Key        string    `bson:"_id"`
	CanvasID   string    `bson:"canvasId"`
	ID         string    `bson:"participantId"`
	Name       string    `bson:"name"`
	Avatar     string    `bson:"avatar"`
	DaemonID   string    `bson:"daemonId,omitempty"`
	CreatedAt  time.Time `bson:"createdAt"`
	LastSeenAt time.Time `bson:"lastSeenAt"`
}

// OpenMongo connects to uri and uses the given database.
func OpenMongo(ctx context.Context, uri, database string, poll time.Duration, logger *slog.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("mongo connected", "database", database)
	return &MongoStore{client: client, db: client.Database(database), poll: poll, log: logger}, nil
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

func mongoNotFound(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ── Canvases ───────────────────────────────────────────────

func (s *MongoStore) CreateCanvas(ctx context.Context, c *domain.Canvas) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.ShortCode == "" {
		c.ShortCode = domain.NewShortCode()
	}
	if _, err := s.db.Collection("canvases").InsertOne(ctx, c); err != nil {
		return fmt.Errorf("create canvas: %w", err)
	}
	return nil
}

func (s *MongoStore) GetCanvas(ctx context.Context, id string) (*domain.Canvas, error) {
	var c domain.Canvas
	if err := s.db.Collection("canvases").FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, mongoNotFound("get canvas", err)
	}
	return &c, nil
}

// ── Previews ───────────────────────────────────────────────

func (s *MongoStore) CreatePreview(ctx context.Context, canvasID string, p *domain.Preview) error {
	if err := domain.ValidateInstances(p.Instances); err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Instances == nil {
		p.Instances = []domain.Instance{}
	}
	if _, err := s.db.Collection("previews").InsertOne(ctx, previewDoc{CanvasID: canvasID, Preview: *p}); err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	return nil
}

func (s *MongoStore) GetPreview(ctx context.Context, canvasID, previewID string) (*domain.Preview, error) {
	var doc previewDoc
	err := s.db.Collection("previews").FindOne(ctx, bson.M{"_id": previewID, "canvasId": canvasID}).Decode(&doc)
	if err != nil {
		return nil, mongoNotFound("get preview", err)
	}
	return &doc.Preview, nil
}

func (s *MongoStore) ListPreviews(ctx context.Context, canvasID string) ([]domain.Preview, error) {
	var docs []previewDoc
	if err := s.findAll(ctx, "previews", canvasID, &docs); err != nil {
		return nil, fmt.Errorf("list previews: %w", err)
	}
	out := make([]domain.Preview, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Preview)
	}
	return out, nil
}

func (s *MongoStore) SetPreviewInstances(ctx context.Context, canvasID, previewID string, list []domain.Instance) error {
	if err := domain.ValidateInstances(list); err != nil {
		return fmt.Errorf("set preview instances: %w", err)
	}
	return s.setInstances(ctx, "previews", canvasID, previewID, list)
}

func (s *MongoStore) DeletePreview(ctx context.Context, canvasID, previewID string) error {
	if _, err := s.db.Collection("previews").DeleteOne(ctx, bson.M{"_id": previewID, "canvasId": canvasID}); err != nil {
		return fmt.Errorf("delete preview: %w", err)
	}
	return nil
}

// ── Containers ─────────────────────────────────────────────

func (s *MongoStore) CreateContainer(ctx context.Context, canvasID string, c *domain.Container) error {
	if err := domain.ValidateInstances(c.Instances); err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Instances == nil {
		c.Instances = []domain.Instance{}
	}
	if _, err := s.db.Collection("containers").InsertOne(ctx, containerDoc{CanvasID: canvasID, Container: *c}); err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	return nil
}

func (s *MongoStore) GetContainer(ctx context.Context, canvasID, containerID string) (*domain.Container, error) {
	var doc containerDoc
	err := s.db.Collection("containers").FindOne(ctx, bson.M{"_id": containerID, "canvasId": canvasID}).Decode(&doc)
	if err != nil {
		return nil, mongoNotFound("get container", err)
	}
	return &doc.Container, nil
}

func (s *MongoStore) ListContainers(ctx context.Context, canvasID string) ([]domain.Container, error) {
	var docs []containerDoc
	if err := s.findAll(ctx, "containers", canvasID, &docs); err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	out := make([]domain.Container, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Container)
	}
	return out, nil
}

func (s *MongoStore) SetContainerInstances(ctx context.Context, canvasID, containerID string, list []domain.Instance) error {
	if err := domain.ValidateInstances(list); err != nil {
		return fmt.Errorf("set container instances: %w", err)
	}
	return s.setInstances(ctx, "containers", canvasID, containerID, list)
}

// ── Participants ───────────────────────────────────────────

func (s *MongoStore) Heartbeat(ctx context.Context, canvasID string, p *domain.Participant) error {
	now := time.Now()
	if p.LastSeenAt.IsZero() {
		p.LastSeenAt = now
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	doc := participantDoc{
		Key:        canvasID + ":" + p.ID,
		CanvasID:   canvasID,
		ID:         p.ID,
		Name:       p.Name,
		Avatar:     p.Avatar,
		DaemonID:   p.DaemonID,
		CreatedAt:  p.CreatedAt,
		LastSeenAt: p.LastSeenAt,
	}
	_, err := s.db.Collection("participants").ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

func (s *MongoStore) ListParticipants(ctx context.Context, canvasID string) ([]domain.Participant, error) {
	var docs []participantDoc
	if err := s.findAll(ctx, "participants", canvasID, &docs); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]domain.Participant, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Participant{
			ID: d.ID, Name: d.Name, Avatar: d.Avatar, DaemonID: d.DaemonID,
			CreatedAt: d.CreatedAt, LastSeenAt: d.LastSeenAt,
		})
	}
	return out, nil
}

// ── Shared helpers ─────────────────────────────────────────

func (s *MongoStore) findAll(ctx context.Context, coll, canvasID string, out any) error {
	cursor, err := s.db.Collection(coll).Find(ctx, bson.M{"canvasId": canvasID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func (s *MongoStore) setInstances(ctx context.Context, coll, canvasID, id string, list []domain.Instance) error {
	if list == nil {
		list = []domain.Instance{}
	}
	res, err := s.db.Collection(coll).UpdateOne(ctx,
		bson.M{"_id": id, "canvasId": canvasID},
		bson.M{"$set": bson.M{"instances": list, "updatedAt": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("set instances: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("set instances %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ── Live snapshots ─────────────────────────────────────────

func (s *MongoStore) WatchPreviews(ctx context.Context, canvasID string, fn func([]domain.Preview)) (func(), error) {
	return s.watch(ctx, "previews", canvasID, func(ctx context.Context) (any, error) {
		return s.ListPreviews(ctx, canvasID)
	}, func(v any) { fn(v.([]domain.Preview)) })
}

func (s *MongoStore) WatchContainers(ctx context.Context, canvasID string, fn func([]domain.Container)) (func(), error) {
	return s.watch(ctx, "containers", canvasID, func(ctx context.Context) (any, error) {
		return s.ListContainers(ctx, canvasID)
	}, func(v any) { fn(v.([]domain.Container)) })
}

func (s *MongoStore) WatchParticipants(ctx context.Context, canvasID string, fn func([]domain.Participant)) (func(), error) {
	return s.watch(ctx, "participants", canvasID, func(ctx context.Context) (any, error) {
		return s.ListParticipants(ctx, canvasID)
	}, func(v any) { fn(v.([]domain.Participant)) })
}

// watch delivers the collection now and after every change event that
// may concern canvasID. Deletes carry no document, so every delete in the
// collection triggers a reload.
func (s *MongoStore) watch(ctx context.Context, coll, canvasID string, list func(context.Context) (any, error), deliver func(any)) (func(), error) {
	initial, err := list(ctx)
	if err != nil {
		return nil, err
	}
	deliver(initial)
	last, _ := json.Marshal(initial)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	reload := func() {
		v, err := list(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("mongo reload failed", "collection", coll, "err", err)
			}
			return
		}
		b, _ := json.Marshal(v)
		if bytes.Equal(b, last) {
			return
		}
		last = b
		deliver(v)
	}

	go func() {
		defer close(done)
		pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"fullDocument.canvasId": canvasID},
			bson.M{"operationType": "delete"},
		}}}}}
		stream, err := s.db.Collection(coll).Watch(ctx, pipeline,
			options.ChangeStream().SetFullDocument(options.UpdateLookup))
		if err != nil {
			s.log.Warn("change streams unavailable, polling", "collection", coll, "err", err)
			s.pollLoop(ctx, reload)
			return
		}
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			reload()
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			s.log.Warn("change stream ended, polling", "collection", coll, "err", err)
			s.pollLoop(ctx, reload)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

func (s *MongoStore) pollLoop(ctx context.Context, reload func()) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reload()
		}
	}
}
