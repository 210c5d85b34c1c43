package mongostore

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/datatypes"

	"github.com/gilkh/livret/internal/database"
)

// Legacy documents use ObjectIDs for _id and references, though some
// imported records carry plain strings. Both are accepted everywhere.

type versionDoc struct {
	Version   int           `bson:"version"`
	Pages     bson.RawValue `bson:"pages"`
	Variables bson.RawValue `bson:"variables"`
	Watermark string        `bson:"watermark"`
	CreatedAt time.Time     `bson:"createdAt"`
}

type templateDoc struct {
	ID             any           `bson:"_id"`
	Name           string        `bson:"name"`
	Pages          bson.RawValue `bson:"pages"`
	Variables      bson.RawValue `bson:"variables"`
	Watermark      string        `bson:"watermark"`
	CurrentVersion int           `bson:"currentVersion"`
	VersionHistory []versionDoc  `bson:"versionHistory"`
	ExportPassword string        `bson:"exportPassword"`
	CreatedAt      time.Time     `bson:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt"`
}

type classDoc struct {
	ID    any    `bson:"_id"`
	Name  string `bson:"name"`
	Level string `bson:"level"`
}

type studentDoc struct {
	ID          any       `bson:"_id"`
	FirstName   string    `bson:"firstName"`
	LastName    string    `bson:"lastName"`
	DateOfBirth time.Time `bson:"dateOfBirth"`
	Level       string    `bson:"level"`
	ClassID     any       `bson:"classId"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

type assignmentDoc struct {
	ID              any           `bson:"_id"`
	TemplateID      any           `bson:"templateId"`
	StudentID       any           `bson:"studentId"`
	TemplateVersion int           `bson:"templateVersion"`
	Data            bson.RawValue `bson:"data"`
	IsCompleted     bool          `bson:"isCompleted"`
	IsCompletedSem1 bool          `bson:"isCompletedSem1"`
	IsCompletedSem2 bool          `bson:"isCompletedSem2"`
	CreatedAt       time.Time     `bson:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt"`
}

type signatureDoc struct {
	ID                   any       `bson:"_id"`
	TemplateAssignmentID any       `bson:"templateAssignmentId"`
	SubAdminID           any       `bson:"subAdminId"`
	Type                 string    `bson:"type"`
	SignedAt             time.Time `bson:"signedAt"`
	SignatureURL         string    `bson:"signatureUrl"`
	SignatureData        string    `bson:"signatureData"`
	Level                string    `bson:"level"`
	SchoolYearName       string    `bson:"schoolYearName"`
	SignaturePeriodID    any       `bson:"signaturePeriodId"`
}

type userDoc struct {
	ID           any    `bson:"_id"`
	DisplayName  string `bson:"displayName"`
	Email        string `bson:"email"`
	Role         string `bson:"role"`
	SignatureURL string `bson:"signatureUrl"`
}

// idString renders an _id or reference as the string form used by the API.
func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// idValues returns the values an id may be stored as.
func idValues(id string) bson.A {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.A{oid, id}
	}
	return bson.A{id}
}

func idFilter(field, id string) bson.M {
	return bson.M{field: bson.M{"$in": idValues(id)}}
}

// plainJSON converts a BSON value to ordinary JSON: dates become RFC 3339
// strings and ObjectIDs hex strings, so stored layouts and answers decode
// exactly like their relational counterparts. Missing and null values
// yield nil.
func plainJSON(v bson.RawValue) (datatypes.JSON, error) {
	if v.Type == 0 || v.Type == bson.TypeNull || v.Type == bson.TypeUndefined {
		return nil, nil
	}
	var decoded any
	if err := v.Unmarshal(&decoded); err != nil {
		return nil, err
	}
	data, err := json.Marshal(plain(decoded))
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func plain(v any) any {
	switch x := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = plain(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = plain(val)
		}
		return m
	case primitive.A:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = plain(val)
		}
		return out
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.ObjectID:
		return x.Hex()
	case primitive.Decimal128:
		return x.String()
	case primitive.Binary:
		return x.Data
	default:
		return x
	}
}

func (d *templateDoc) model() (*database.Template, error) {
	pages, err := plainJSON(d.Pages)
	if err != nil {
		return nil, fmt.Errorf("template %s pages: %w", idString(d.ID), err)
	}
	vars, err := plainJSON(d.Variables)
	if err != nil {
		return nil, fmt.Errorf("template %s variables: %w", idString(d.ID), err)
	}

	tpl := &database.Template{
		ID:                 idString(d.ID),
		Name:               d.Name,
		Pages:              pages,
		Variables:          vars,
		Watermark:          d.Watermark,
		CurrentVersion:     d.CurrentVersion,
		ExportPasswordHash: d.ExportPassword,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	if tpl.CurrentVersion == 0 {
		tpl.CurrentVersion = 1
	}

	for _, v := range d.VersionHistory {
		vp, err := plainJSON(v.Pages)
		if err != nil {
			return nil, fmt.Errorf("template %s version %d: %w", tpl.ID, v.Version, err)
		}
		vv, err := plainJSON(v.Variables)
		if err != nil {
			return nil, fmt.Errorf("template %s version %d: %w", tpl.ID, v.Version, err)
		}
		tpl.Versions = append(tpl.Versions, database.TemplateVersion{
			TemplateID: tpl.ID,
			Version:    v.Version,
			Pages:      vp,
			Variables:  vv,
			Watermark:  v.Watermark,
			CreatedAt:  v.CreatedAt,
		})
	}
	return tpl, nil
}

func (d *studentDoc) model(class *classDoc) *database.Student {
	s := &database.Student{
		ID:          idString(d.ID),
		FirstName:   d.FirstName,
		LastName:    d.LastName,
		DateOfBirth: d.DateOfBirth,
		Level:       d.Level,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if class != nil {
		c := &database.Class{ID: idString(class.ID), Name: class.Name, Level: class.Level}
		s.ClassID = &c.ID
		s.Class = c
	}
	return s
}

func (d *assignmentDoc) model() (*database.TemplateAssignment, error) {
	data, err := plainJSON(d.Data)
	if err != nil {
		return nil, fmt.Errorf("assignment %s data: %w", idString(d.ID), err)
	}
	return &database.TemplateAssignment{
		ID:              idString(d.ID),
		StudentID:       idString(d.StudentID),
		TemplateID:      idString(d.TemplateID),
		TemplateVersion: d.TemplateVersion,
		Data:            data,
		IsCompleted:     d.IsCompleted,
		IsCompletedSem1: d.IsCompletedSem1,
		IsCompletedSem2: d.IsCompletedSem2,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

func (d *signatureDoc) model() database.TemplateSignature {
	sigType := d.Type
	if sigType == "" {
		sigType = database.SignatureStandard
	}
	return database.TemplateSignature{
		ID:                   idString(d.ID),
		TemplateAssignmentID: idString(d.TemplateAssignmentID),
		SubAdminID:           idString(d.SubAdminID),
		Type:                 sigType,
		SignedAt:             d.SignedAt,
		SignatureURL:         d.SignatureURL,
		SignatureData:        d.SignatureData,
		Level:                d.Level,
		SchoolYearName:       d.SchoolYearName,
		SignaturePeriodID:    idString(d.SignaturePeriodID),
	}
}

func (d *userDoc) model() database.User {
	return database.User{
		ID:           idString(d.ID),
		DisplayName:  d.DisplayName,
		Email:        d.Email,
		Role:         d.Role,
		SignatureURL: d.SignatureURL,
	}
}
