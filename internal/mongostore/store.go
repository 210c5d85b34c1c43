// Package mongostore reads report-card data from the legacy MongoDB
// collections so existing deployments can export without migrating.
// It is read-only; editing goes through the relational store.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/gilkh/livret/internal/database"
	"github.com/gilkh/livret/internal/layout"
	"github.com/gilkh/livret/internal/logging"
)

// Collection names used by the legacy application.
const (
	CollTemplates   = "templates"
	CollStudents    = "students"
	CollClasses     = "classes"
	CollAssignments = "templateassignments"
	CollSignatures  = "templatesignatures"
	CollUsers       = "users"
)

// Store implements export.Source over a MongoDB database.
type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect opens a client, checks connectivity and returns the store with a
// function that disconnects it.
func Connect(ctx context.Context, uri, dbName string) (*Store, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetAppName("livret"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to reach mongodb: %w", err)
	}

	logging.InfoWithComponent(logging.ComponentDatabase, "Connected to MongoDB", "database", dbName)
	return New(client.Database(dbName)), client.Disconnect, nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, database.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *Store) Template(ctx context.Context, id string) (*database.Template, error) {
	var doc templateDoc
	if err := s.db.Collection(CollTemplates).FindOne(ctx, idFilter("_id", id)).Decode(&doc); err != nil {
		return nil, notFound(err, "template "+id)
	}
	return doc.model()
}

// TemplateLayout resolves the version pin against the embedded history.
func (s *Store) TemplateLayout(ctx context.Context, tpl *database.Template, version int) (*layout.Layout, error) {
	return database.ResolveLayout(tpl, version, func(_ string, v int) (*database.TemplateVersion, error) {
		for i := range tpl.Versions {
			if tpl.Versions[i].Version == v {
				return &tpl.Versions[i], nil
			}
		}
		return nil, nil
	})
}

// Student loads the student and, when referenced, the class.
func (s *Store) Student(ctx context.Context, id string) (*database.Student, error) {
	var doc studentDoc
	if err := s.db.Collection(CollStudents).FindOne(ctx, idFilter("_id", id)).Decode(&doc); err != nil {
		return nil, notFound(err, "student "+id)
	}

	var class *classDoc
	if classID := idString(doc.ClassID); classID != "" {
		var c classDoc
		err := s.db.Collection(CollClasses).FindOne(ctx, idFilter("_id", classID)).Decode(&c)
		switch {
		case err == nil:
			class = &c
		case errors.Is(err, mongo.ErrNoDocuments):
			logging.WarnWithComponent(logging.ComponentDatabase, "Student references a missing class", "student_id", id, "class_id", classID)
		default:
			return nil, fmt.Errorf("class %s: %w", classID, err)
		}
	}
	return doc.model(class), nil
}

func (s *Store) Assignment(ctx context.Context, id string) (*database.TemplateAssignment, error) {
	var doc assignmentDoc
	if err := s.db.Collection(CollAssignments).FindOne(ctx, idFilter("_id", id)).Decode(&doc); err != nil {
		return nil, notFound(err, "assignment "+id)
	}
	return doc.model()
}

// AssignmentForStudent returns the most recent assignment of templateID to studentID.
func (s *Store) AssignmentForStudent(ctx context.Context, studentID, templateID string) (*database.TemplateAssignment, error) {
	filter := bson.M{
		"studentId":  bson.M{"$in": idValues(studentID)},
		"templateId": bson.M{"$in": idValues(templateID)},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var doc assignmentDoc
	if err := s.db.Collection(CollAssignments).FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		return nil, notFound(err, "assignment for student "+studentID)
	}
	return doc.model()
}

// Signatures returns the assignment's signatures, oldest first.
func (s *Store) Signatures(ctx context.Context, assignmentID string) ([]database.TemplateSignature, error) {
	opts := options.Find().SetSort(bson.D{{Key: "signedAt", Value: 1}})
	cur, err := s.db.Collection(CollSignatures).Find(ctx, idFilter("templateAssignmentId", assignmentID), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures: %w", err)
	}
	var docs []signatureDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode signatures: %w", err)
	}

	out := make([]database.TemplateSignature, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].model())
	}
	return out, nil
}

// Users returns the users with the given ids keyed by id. Unknown ids are
// simply absent.
func (s *Store) Users(ctx context.Context, ids []string) (map[string]database.User, error) {
	out := make(map[string]database.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var values bson.A
	for _, id := range ids {
		values = append(values, idValues(id)...)
	}

	cur, err := s.db.Collection(CollUsers).Find(ctx, bson.M{"_id": bson.M{"$in": values}})
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for i := range docs {
		u := docs[i].model()
		out[u.ID] = u
	}
	return out, nil
}
