// Package mongo provides a MongoDB implementation of search.Index.
//
// Each kind is stored in its own collection keyed by entity id. Documents
// carry the searchable fields, a lowercased "text" field covered by a text
// index, and the entity JSON returned with hits.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rbaliyan/blog/search"
	"github.com/rbaliyan/blog/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Server error codes reported for unusable queries.
const (
	codeBadValue        = 2
	codeIndexNotFound   = 27
	codeInvalidRegex    = 51091
	codeQueryPlanKilled = 175
)

// regexMetaChars matches regex metacharacters that need escaping.
var regexMetaChars = regexp.MustCompile(`[\\^$.|?*+()[\]{}]`)

// escapeRegex escapes regex metacharacters in a string to prevent regex injection.
func escapeRegex(s string) string {
	return regexMetaChars.ReplaceAllString(s, `\$0`)
}

// nonWord matches the separators between tokens.
const nonWord = `[^\p{L}\p{N}]`

// indexDoc is the stored form of a search.Document.
type indexDoc struct {
	ID     int64             `bson:"_id"`
	Fields map[string]string `bson:"fields"`
	Text   string            `bson:"text"`
	Source string            `bson:"source"`
	Score  float64           `bson:"score,omitempty"`
}

// Index implements search.Index using MongoDB.
type Index struct {
	client    *mongo.Client
	db        *mongo.Database
	opts      *options
	connected int32
	logger    *slog.Logger
}

// Compile-time check.
var _ search.Index = (*Index)(nil)

// New creates a new MongoDB index with the provided client.
// Call Connect() to create the collections and text indexes.
func New(client *mongo.Client, opts ...Option) *Index {
	o := newOptions(opts...)
	return &Index{
		client: client,
		opts:   o,
		logger: o.logger,
	}
}

// Connect verifies the connection and creates indexes for every kind.
func (x *Index) Connect(ctx context.Context) error {
	if atomic.LoadInt32(&x.connected) == 1 {
		return search.ErrAlreadyConnected
	}
	if x.client == nil {
		return fmt.Errorf("mongo: client is required")
	}

	ctx, cancel := context.WithTimeout(ctx, x.opts.timeout)
	defer cancel()

	if err := x.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	x.db = x.client.Database(x.opts.database)

	for _, kind := range store.IndexedKinds {
		if err := x.ensureIndexes(ctx, x.collection(kind)); err != nil {
			return fmt.Errorf("ensure indexes for %s: %w", kind, err)
		}
	}

	if !atomic.CompareAndSwapInt32(&x.connected, 0, 1) {
		return search.ErrAlreadyConnected
	}
	x.logger.Info("connected to MongoDB search index", "database", x.opts.database, "prefix", x.opts.prefix)
	return nil
}

// Close marks the index as disconnected.
// The caller is responsible for closing the MongoDB client.
func (x *Index) Close(ctx context.Context) error {
	atomic.StoreInt32(&x.connected, 0)
	return nil
}

func (x *Index) checkConnected() error {
	if atomic.LoadInt32(&x.connected) == 0 {
		return search.ErrNotConnected
	}
	return nil
}

func (x *Index) collection(kind store.Kind) *mongo.Collection {
	return x.db.Collection(x.opts.prefix + "_" + string(kind))
}

func (x *Index) ensureIndexes(ctx context.Context, coll *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{bson.E{Key: "text", Value: "text"}},
			Options: mongoopts.Index().SetName("text_search").SetDefaultLanguage("none"),
		},
		{Keys: bson.D{bson.E{Key: "fields.id", Value: 1}}},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

func (x *Index) Index(ctx context.Context, doc search.Document) error {
	if err := x.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, x.opts.timeout)
	defer cancel()

	d := indexDoc{
		ID:     doc.ID,
		Fields: doc.Fields,
		Text:   searchText(doc.Fields),
		Source: string(doc.Source),
	}
	if d.Fields == nil {
		d.Fields = map[string]string{}
	}
	_, err := x.collection(doc.Kind).ReplaceOne(ctx,
		bson.M{"_id": doc.ID}, d, mongoopts.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("index %s %d: %w", doc.Kind, doc.ID, err)
	}
	return nil
}

func (x *Index) Delete(ctx context.Context, kind store.Kind, id int64) error {
	if err := x.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, x.opts.timeout)
	defer cancel()

	if _, err := x.collection(kind).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s %d: %w", kind, id, err)
	}
	return nil
}

func (x *Index) Count(ctx context.Context, kind store.Kind) (int64, error) {
	if err := x.checkConnected(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, x.opts.timeout)
	defer cancel()

	n, err := x.collection(kind).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

func (x *Index) Clear(ctx context.Context, kind store.Kind) error {
	if err := x.checkConnected(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, x.opts.timeout)
	defer cancel()

	if _, err := x.collection(kind).DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}
	return nil
}

// Search runs a $text query when the query holds only bare terms, and a
// regex $or otherwise.
func (x *Index) Search(ctx context.Context, kind store.Kind, q search.Query, req store.PageRequest) (*search.Result, error) {
	if err := x.checkConnected(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, x.opts.timeout)
	defer cancel()

	filter, textSearch := buildFilter(q)
	findOpts := mongoopts.Find()
	if textSearch {
		score := bson.D{bson.E{Key: "$meta", Value: "textScore"}}
		findOpts.SetProjection(bson.D{bson.E{Key: "score", Value: score}})
		findOpts.SetSort(bson.D{
			bson.E{Key: "score", Value: score},
			bson.E{Key: "_id", Value: 1},
		})
	} else {
		findOpts.SetSort(bson.D{bson.E{Key: "_id", Value: 1}})
	}
	if !req.IsUnpaged() {
		findOpts.SetSkip(int64(req.Offset()))
		findOpts.SetLimit(int64(req.Size))
	}

	coll := x.collection(kind)
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, translateError(q, err)
	}

	cursor, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, translateError(q, err)
	}
	var docs []indexDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translateError(q, err)
	}

	hits := make([]search.Hit, 0, len(docs))
	for _, d := range docs {
		score := d.Score
		if !textSearch {
			score = 1
		}
		hits = append(hits, search.Hit{ID: d.ID, Score: score, Source: []byte(d.Source)})
	}
	return &search.Result{Hits: hits, Total: total}, nil
}

// buildFilter translates q. The boolean reports whether the filter is a
// $text search.
func buildFilter(q search.Query) (bson.M, bool) {
	if q.MatchAll() {
		return bson.M{}, false
	}

	if !q.HasFieldClauses() && !hasPhrase(q) {
		terms := make([]string, 0, len(q.Clauses))
		for _, c := range q.Clauses {
			terms = append(terms, c.Terms()...)
		}
		return bson.M{"$text": bson.M{"$search": strings.Join(terms, " ")}}, true
	}

	or := make(bson.A, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		switch {
		case c.Field == "":
			or = append(or, bson.M{"text": wordRegex(c.Terms())})
		case c.IsWildcard():
			or = append(or, bson.M{"fields." + c.Field: bson.M{"$exists": true, "$ne": ""}})
		case c.Field == "id":
			or = append(or, bson.M{"fields.id": c.Value})
		default:
			or = append(or, bson.M{"fields." + c.Field: wordRegex(c.Terms())})
		}
	}
	return bson.M{"$or": or}, false
}

func hasPhrase(q search.Query) bool {
	for _, c := range q.Clauses {
		if c.Phrase || len(c.Terms()) > 1 {
			return true
		}
	}
	return false
}

// wordRegex matches the tokens as a contiguous sequence of whole words.
func wordRegex(tokens []string) bson.M {
	escaped := make([]string, len(tokens))
	for i, t := range tokens {
		escaped[i] = escapeRegex(t)
	}
	pattern := `(?:^|` + nonWord + `)` + strings.Join(escaped, nonWord+`+`) + `(?:$|` + nonWord + `)`
	return bson.M{"$regex": pattern, "$options": "i"}
}

// searchText joins field values in a stable order for the text index.
func searchText(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, strings.ToLower(fields[k]))
	}
	return strings.Join(parts, " ")
}

// translateError maps server rejections of the query to search.ErrQuerySyntax.
func translateError(q search.Query, err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) {
		for _, code := range []int{codeBadValue, codeIndexNotFound, codeInvalidRegex, codeQueryPlanKilled} {
			if se.HasErrorCode(code) {
				return &search.QueryError{Query: q.Raw, Reason: se.Error()}
			}
		}
	}
	return fmt.Errorf("search: %w", err)
}
