package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Namespace identifies the source database and collection of a change.
type Namespace struct {
	DB   string `bson:"db"`
	Coll string `bson:"coll"`
}

// DocumentKey uniquely identifies the affected document. Always present.
type DocumentKey struct {
	ID primitive.ObjectID `bson:"_id" json:"_id"`
}

// UpdateDescription lists the fields touched by an update operation.
type UpdateDescription struct {
	UpdatedFields bson.M   `bson:"updatedFields,omitempty" json:"updatedFields,omitempty"`
	RemovedFields []string `bson:"removedFields,omitempty" json:"removedFields,omitempty"`
}

// ChangeEvent is a single event decoded off the change stream.
type ChangeEvent struct {
	OperationType     Operation           `bson:"operationType"`
	NS                Namespace           `bson:"ns"`
	DocumentKey       DocumentKey         `bson:"documentKey"`
	FullDocument      bson.Raw            `bson:"fullDocument,omitempty"`
	UpdateDescription *UpdateDescription  `bson:"updateDescription,omitempty"`
	ClusterTime       primitive.Timestamp `bson:"clusterTime,omitempty"`
	WallTime          primitive.DateTime  `bson:"wallTime,omitempty"`
}

// Envelope is the wire-level shape published on the database-changes topic.
// Document payloads are carried as MongoDB extended JSON so type information
// (object ids, dates) survives the round trip.
type Envelope struct {
	OperationType     Operation       `json:"operationType"`
	Database          string          `json:"database"`
	Collection        string          `json:"collection"`
	DocumentKey       json.RawMessage `json:"documentKey"`
	Timestamp         time.Time       `json:"timestamp"`
	FullDocument      json.RawMessage `json:"fullDocument,omitempty"`
	UpdateDescription json.RawMessage `json:"updateDescription,omitempty"`
}

// NewEnvelope converts a decoded change event into its wire shape.
func NewEnvelope(ev ChangeEvent, now time.Time) (Envelope, error) {
	key, err := bson.MarshalExtJSON(ev.DocumentKey, false, false)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode document key: %w", err)
	}
	env := Envelope{
		OperationType: ev.OperationType,
		Database:      ev.NS.DB,
		Collection:    ev.NS.Coll,
		DocumentKey:   key,
		Timestamp:     now.UTC(),
	}
	if len(ev.FullDocument) > 0 {
		doc, err := bson.MarshalExtJSON(ev.FullDocument, false, false)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode full document: %w", err)
		}
		env.FullDocument = doc
	}
	if ev.UpdateDescription != nil {
		upd, err := bson.MarshalExtJSON(ev.UpdateDescription, false, false)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode update description: %w", err)
		}
		env.UpdateDescription = upd
	}
	return env, nil
}

// Key returns the partition key for the envelope: database, collection and
// document id joined, so all events for one entity land on one partition.
func (e Envelope) Key() (string, error) {
	key, err := e.DecodeKey()
	if err != nil {
		return "", err
	}
	return e.Database + "." + e.Collection + "." + key.Hex(), nil
}

// DecodeKey extracts the document id from the envelope.
func (e Envelope) DecodeKey() (primitive.ObjectID, error) {
	var key DocumentKey
	if err := bson.UnmarshalExtJSON(e.DocumentKey, false, &key); err != nil {
		return primitive.NilObjectID, fmt.Errorf("decode document key: %w", err)
	}
	return key.ID, nil
}

// Change is the validated payload forwarded to a reconciliation handler:
// a full document for insert/update/replace, a bare document id for delete.
type Change struct {
	Op  Operation
	Doc json.RawMessage
	Key primitive.ObjectID
}

// DecodeDoc unmarshals the carried full document into v.
func (c Change) DecodeDoc(v any) error {
	if len(c.Doc) == 0 {
		return fmt.Errorf("change has no document payload")
	}
	return bson.UnmarshalExtJSON(c.Doc, false, v)
}
