package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"price-floor-alerts/internal/category"
	"price-floor-alerts/internal/config"
	"price-floor-alerts/internal/history"
)

const defaultFirestoreCollection = "history_records"

type firestoreRecord struct {
	Date           string    `firestore:"date"`
	SourceName     string    `firestore:"sourceName"`
	Category       string    `firestore:"category"`
	Label          string    `firestore:"label"`
	Price          int64     `firestore:"price"`
	Floor          int64     `firestore:"floor"`
	Deficit        int64     `firestore:"deficit"`
	SuggestedPrice int64     `firestore:"suggestedPrice"`
	SourceLocator  string    `firestore:"sourceLocator"`
	State          string    `firestore:"state"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func firestoreFromRecord(r history.Record, now time.Time) firestoreRecord {
	return firestoreRecord{
		Date:           r.Date,
		SourceName:     r.Source,
		Category:       string(r.Category),
		Label:          r.Label,
		Price:          r.Price,
		Floor:          r.Floor,
		Deficit:        r.Deficit,
		SuggestedPrice: r.SuggestedPrice,
		SourceLocator:  r.Locator,
		State:          string(r.State),
		UpdatedAt:      now,
	}
}

func (f firestoreRecord) record() (history.Record, error) {
	state, err := history.ParseState(f.State)
	if err != nil {
		return history.Record{}, err
	}
	return history.Record{
		Date:           f.Date,
		Source:         f.SourceName,
		Category:       category.Normalize(f.Category),
		Label:          f.Label,
		Price:          f.Price,
		Floor:          f.Floor,
		Deficit:        f.Deficit,
		SuggestedPrice: f.SuggestedPrice,
		Locator:        f.SourceLocator,
		State:          state,
	}, nil
}

// DocumentID derives a stable Firestore document ID from a record key, so the
// same alert always maps to the same document.
func DocumentID(key history.Key) string {
	sum := sha256.Sum256([]byte(key.String()))
	return hex.EncodeToString(sum[:])
}

// FirestoreStore keeps one document per history record.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreStore opens a Firestore client for cfg.
func NewFirestoreStore(ctx context.Context, cfg config.FirestoreConfig, logger zerolog.Logger) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = defaultFirestoreCollection
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
		logger:     logger.With().Str("component", "storage_firestore").Logger(),
	}, nil
}

// Close releases the client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// Load implements history.Store.
func (s *FirestoreStore) Load(ctx context.Context) ([]history.Record, error) {
	iter := s.client.Collection(s.collection).
		OrderBy("date", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	records := make([]history.Record, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate history documents: %w", err)
		}

		var data firestoreRecord
		if err := doc.DataTo(&data); err != nil {
			s.logger.Warn().Err(err).Str("doc", doc.Ref.ID).Msg("skip undecodable history document")
			continue
		}
		rec, err := data.record()
		if err != nil {
			s.logger.Warn().Err(err).Str("doc", doc.Ref.ID).Msg("skip unreadable history document")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Save writes every record and deletes documents that are no longer part of
// the set.
func (s *FirestoreStore) Save(ctx context.Context, records []history.Record) error {
	col := s.client.Collection(s.collection)

	stale := make(map[string]*firestore.DocumentRef)
	iter := col.Select().Documents(ctx)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			iter.Stop()
			return fmt.Errorf("list history documents: %w", err)
		}
		stale[doc.Ref.ID] = doc.Ref
	}
	iter.Stop()

	now := time.Now().UTC()
	writer := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(records)+len(stale))
	for _, r := range records {
		id := DocumentID(r.Key())
		delete(stale, id)
		job, err := writer.Set(col.Doc(id), firestoreFromRecord(r, now))
		if err != nil {
			writer.End()
			return fmt.Errorf("queue history write: %w", err)
		}
		jobs = append(jobs, job)
	}
	for id, ref := range stale {
		job, err := writer.Delete(ref)
		if err != nil {
			writer.End()
			return fmt.Errorf("queue history delete %s: %w", id, err)
		}
		jobs = append(jobs, job)
	}
	writer.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			if status.Code(err) == codes.NotFound {
				continue
			}
			return fmt.Errorf("write history document: %w", err)
		}
	}
	return nil
}

var _ history.Store = (*FirestoreStore)(nil)
