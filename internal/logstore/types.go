package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound       = errors.New("log document not found")
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Document is one persisted conversation log.
type Document struct {
	ID           DocumentID `bson:"_id,omitempty" json:"_id,omitempty"`
	Conversation string     `bson:"conversation" json:"conversation"`
	Date         Timestamp  `bson:"date" json:"date"`
	Logs         []Turn     `bson:"logs" json:"logs"`
}

// Turn is one entry of a conversation. Fields other than inputText are kept
// as-is so listings round-trip whatever the logging process wrote.
type Turn struct {
	InputText string         `bson:"inputText"`
	Extra     map[string]any `bson:",inline"`
}

func (t Turn) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.Extra)+1)
	for k, v := range t.Extra {
		out[k] = v
	}
	out["inputText"] = t.InputText
	return json.Marshal(out)
}

func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.fromMap(raw)
	return nil
}

// UnmarshalBSON accepts turns whose inputText was stored as a number or any
// other non-string value, as the JSON path does.
func (t *Turn) UnmarshalBSON(data []byte) error {
	var raw bson.M
	if err := bson.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.fromMap(raw)
	return nil
}

func (t *Turn) fromMap(raw map[string]any) {
	t.InputText = ""
	if v, ok := raw["inputText"]; ok && v != nil {
		if s, ok := v.(string); ok {
			t.InputText = s
		} else {
			t.InputText = fmt.Sprint(v)
		}
	}
	delete(raw, "inputText")
	t.Extra = nil
	if len(raw) > 0 {
		t.Extra = raw
	}
}

// DocumentID is the store-assigned identifier. Mongo ObjectIDs are carried as
// their hex form.
type DocumentID string

func (id DocumentID) IsZero() bool { return id == "" }

func (id DocumentID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if oid, err := primitive.ObjectIDFromHex(string(id)); err == nil {
		return bson.MarshalValue(oid)
	}
	return bson.MarshalValue(string(id))
}

func (id *DocumentID) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.ObjectID:
		*id = DocumentID(rv.ObjectID().Hex())
	case bsontype.String:
		*id = DocumentID(rv.StringValue())
	case bsontype.Null, bsontype.Undefined:
		*id = ""
	default:
		*id = DocumentID(rv.String())
	}
	return nil
}

// Timestamp is the document date. Stores written by other processes hold it
// either as a native datetime or as a string, so both decode.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t.UTC()} }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Time.UTC().Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		ts.Time = time.Time{}
	case string:
		ts.Time = ParseTimestamp(v)
	case float64:
		ts.Time = time.UnixMilli(int64(v)).UTC()
	default:
		return fmt.Errorf("unsupported date value %s", string(data))
	}
	return nil
}

func (ts Timestamp) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if ts.IsZero() {
		return bson.MarshalValue(nil)
	}
	return bson.MarshalValue(ts.Time)
}

func (ts *Timestamp) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.DateTime:
		ts.Time = rv.Time().UTC()
	case bsontype.String:
		ts.Time = ParseTimestamp(rv.StringValue())
	case bsontype.Int64:
		ts.Time = time.UnixMilli(rv.Int64()).UTC()
	case bsontype.Double:
		ts.Time = time.UnixMilli(int64(rv.Double())).UTC()
	case bsontype.Null, bsontype.Undefined:
		ts.Time = time.Time{}
	default:
		return fmt.Errorf("unsupported date type %s", t)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// ParseTimestamp parses the date formats seen in stored logs. Unparsable input
// yields the zero time, which sorts after every real date.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	// Date.toString() appends a zone name in parentheses.
	if i := strings.Index(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// SortNewestFirst orders documents by date, most recent first.
func SortNewestFirst(docs []Document) {
	slices.SortStableFunc(docs, func(a, b Document) int {
		return b.Date.Compare(a.Date.Time)
	})
}

// Store is one open handle on the log collection.
type Store interface {
	FindAll(ctx context.Context) ([]Document, error)
	DeleteAll(ctx context.Context) (int64, error)
	// FindOne returns the first document for the conversation or ErrNotFound.
	FindOne(ctx context.Context, conversationID string) (Document, error)
	Insert(ctx context.Context, doc Document) (Document, error)
	Close() error
}

// Opener opens a store handle.
type Opener func(ctx context.Context) (Store, error)
