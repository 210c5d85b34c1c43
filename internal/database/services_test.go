package database

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := OpenMemory(name)
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	class      *Class
	student    *Student
	signer     *User
	template   *Template
	assignment *TemplateAssignment
}

func seedFixture(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	students := NewStudentService(db)
	class := &Class{Name: "PS A", Level: "PS"}
	if err := students.CreateClass(class); err != nil {
		t.Fatal(err)
	}
	student := &Student{FirstName: "Lina", LastName: "Haddad", DateOfBirth: time.Date(2020, 3, 9, 0, 0, 0, 0, time.UTC), ClassID: &class.ID}
	if err := students.CreateStudent(student); err != nil {
		t.Fatal(err)
	}
	signer := &User{DisplayName: "Mme Khoury", Email: "khoury@example.com", SignatureURL: "data:image/png;base64,AAAA"}
	if err := students.CreateUser(signer); err != nil {
		t.Fatal(err)
	}
	tpl, err := NewTemplateService(db).Create(TemplateInput{
		Name:  "Livret PS",
		Pages: json.RawMessage(`[{"blocks":[{"type":"text","props":{"x":10,"y":10,"text":"v1"}}]}]`),
	})
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewAssignmentService(db).Create(student.ID, tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	return fixture{class, student, signer, tpl, a}
}

func TestTemplateUpdateKeepsPinnedVersion(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	templates := NewTemplateService(db)

	updated, err := templates.Update(f.template.ID, TemplateInput{
		Name:  "Livret PS",
		Pages: json.RawMessage(`[{"blocks":[{"type":"text","props":{"x":10,"y":10,"text":"v2"}}]}]`),
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.CurrentVersion != 2 {
		t.Fatalf("CurrentVersion = %d, want 2", updated.CurrentVersion)
	}

	tests := []struct {
		name    string
		version int
		want    string
	}{
		{"pinned to first version", f.assignment.TemplateVersion, "v1"},
		{"current version", 2, "v2"},
		{"unpinned", 0, "v2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := templates.LayoutFor(updated, tt.version)
			if err != nil {
				t.Fatal(err)
			}
			data, _ := json.Marshal(l.Pages[0].Blocks[0])
			if !strings.Contains(string(data), `"`+tt.want+`"`) {
				t.Errorf("layout for version %d = %s, want text %s", tt.version, data, tt.want)
			}
		})
	}

	history, err := templates.GetWithHistory(f.template.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history.Versions) != 1 || history.Versions[0].Version != 1 {
		t.Errorf("version history = %+v", history.Versions)
	}
}

func TestTemplateRejectsInvalidPages(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewTemplateService(db).Create(TemplateInput{Name: "x", Pages: json.RawMessage(`{"not":"an array"}`)})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Create() error = %v, want ErrInvalidPayload", err)
	}
}

func TestExportPassword(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	templates := NewTemplateService(db)

	if !CheckExportPassword(f.template, "") {
		t.Error("template without password should be open")
	}
	if err := templates.SetExportPassword(f.template.ID, "carnet2025"); err != nil {
		t.Fatal(err)
	}
	tpl, _ := templates.Get(f.template.ID)
	if CheckExportPassword(tpl, "wrong") {
		t.Error("wrong password accepted")
	}
	if !CheckExportPassword(tpl, "carnet2025") {
		t.Error("correct password rejected")
	}
}

func TestSignUniquenessAndImmutability(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	ctx := context.Background()
	signatures := NewSignatureService(db, nil)

	sig, err := signatures.Sign(ctx, SignRequest{AssignmentID: f.assignment.ID, SignerID: f.signer.ID, Level: "PS", SignaturePeriodID: "2024_sem1"})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if sig.SignatureData != "data:image/png;base64,AAAA" {
		t.Errorf("inline snapshot = %q", sig.SignatureData)
	}

	if _, err := signatures.Sign(ctx, SignRequest{AssignmentID: f.assignment.ID, SignerID: f.signer.ID}); !errors.Is(err, ErrAlreadySigned) {
		t.Errorf("second Sign() error = %v, want ErrAlreadySigned", err)
	}
	if _, err := signatures.Sign(ctx, SignRequest{AssignmentID: f.assignment.ID, SignerID: f.signer.ID, Type: SignatureEndOfYear}); err != nil {
		t.Errorf("end of year Sign() error = %v", err)
	}

	if err := NewStudentService(db).UpdateUserSignature(f.signer.ID, "data:image/png;base64,BBBB"); err != nil {
		t.Fatal(err)
	}
	list, err := signatures.ListForAssignment(ctx, f.assignment.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("signatures = %d, want 2", len(list))
	}
	for _, s := range list {
		if s.SignatureData != "data:image/png;base64,AAAA" {
			t.Errorf("signature %s changed after profile update: %q", s.Type, s.SignatureData)
		}
	}

	a, _ := NewAssignmentService(db).Get(f.assignment.ID)
	data, _ := a.DecodeData()
	if len(data.Signatures) != 2 {
		t.Errorf("data.signatures = %+v", data.Signatures)
	}

	if err := signatures.Unsign(ctx, f.assignment.ID, SignatureStandard); err != nil {
		t.Fatalf("Unsign() error = %v", err)
	}
	if err := signatures.Unsign(ctx, f.assignment.ID, SignatureStandard); !errors.Is(err, ErrNotSigned) {
		t.Errorf("second Unsign() error = %v, want ErrNotSigned", err)
	}
	a, _ = NewAssignmentService(db).Get(f.assignment.ID)
	data, _ = a.DecodeData()
	if len(data.Signatures) != 1 || data.Signatures[0].Type != SignatureEndOfYear {
		t.Errorf("data.signatures after unsign = %+v", data.Signatures)
	}
}

type stubSnapshot struct {
	uri string
	err error
}

func (s stubSnapshot) DataURI(ctx context.Context, ref string) (string, error) {
	return s.uri, s.err
}

func TestSignSnapshotsRemoteSignature(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	if err := NewStudentService(db).UpdateUserSignature(f.signer.ID, "/uploads/signatures/khoury.png"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		snapshot stubSnapshot
		want     string
	}{
		{"fetched", stubSnapshot{uri: "data:image/png;base64,CCCC"}, "data:image/png;base64,CCCC"},
		{"fetch failure keeps url only", stubSnapshot{err: errors.New("unreachable")}, ""},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sigType := []string{SignatureStandard, SignatureEndOfYear}[i]
			sig, err := NewSignatureService(db, tt.snapshot).Sign(context.Background(), SignRequest{
				AssignmentID: f.assignment.ID, SignerID: f.signer.ID, Type: sigType,
			})
			if err != nil {
				t.Fatal(err)
			}
			if sig.SignatureData != tt.want {
				t.Errorf("SignatureData = %q, want %q", sig.SignatureData, tt.want)
			}
			if sig.SignatureURL != "/uploads/signatures/khoury.png" {
				t.Errorf("SignatureURL = %q", sig.SignatureURL)
			}
		})
	}
}

func TestPromoteRecordsOnAssignments(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	students := NewStudentService(db)
	next := &Class{Name: "MS B", Level: "MS"}
	if err := students.CreateClass(next); err != nil {
		t.Fatal(err)
	}

	rec, err := NewPromotionService(db).Promote(context.Background(), PromoteRequest{
		StudentID: f.student.ID, ToLevel: "MS", Year: "2024/2025", ClassID: next.ID,
	})
	if err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	if rec.From != "PS" || rec.To != "MS" || rec.Class != "PS A" {
		t.Errorf("record = %+v", rec)
	}

	student, _ := students.GetStudent(f.student.ID)
	if student.EffectiveLevel() != "MS" {
		t.Errorf("student level = %q, want MS", student.EffectiveLevel())
	}
	a, _ := NewAssignmentService(db).Get(f.assignment.ID)
	data, _ := a.DecodeData()
	if len(data.Promotions) != 1 || data.Promotions[0].Year != "2024/2025" {
		t.Errorf("promotions = %+v", data.Promotions)
	}
}

func TestPromoteRollsBackOnMissingClass(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)

	_, err := NewPromotionService(db).Promote(context.Background(), PromoteRequest{
		StudentID: f.student.ID, ToLevel: "MS", Year: "2024/2025", ClassID: "missing",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Promote() error = %v, want ErrNotFound", err)
	}

	student, _ := NewStudentService(db).GetStudent(f.student.ID)
	if student.Level != "" {
		t.Errorf("student level changed despite rollback: %q", student.Level)
	}
}

func TestDeleteStudentCascades(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	if _, err := NewSignatureService(db, nil).Sign(context.Background(), SignRequest{AssignmentID: f.assignment.ID, SignerID: f.signer.ID}); err != nil {
		t.Fatal(err)
	}

	if err := NewStudentService(db).DeleteStudent(f.student.ID); err != nil {
		t.Fatalf("DeleteStudent() error = %v", err)
	}
	if _, err := NewAssignmentService(db).Get(f.assignment.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("assignment still present: %v", err)
	}
	var count int64
	db.Model(&TemplateSignature{}).Count(&count)
	if count != 0 {
		t.Errorf("signatures left = %d", count)
	}
}

func TestPatchDataRejectsSignatures(t *testing.T) {
	db := setupTestDB(t)
	f := seedFixture(t, db)
	assignments := NewAssignmentService(db)

	if _, err := assignments.PatchData(f.assignment.ID, map[string]json.RawMessage{"signatures": json.RawMessage(`[]`)}); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("PatchData(signatures) error = %v", err)
	}
	a, err := assignments.PatchData(f.assignment.ID, map[string]json.RawMessage{"dropdown_b1": json.RawMessage(`"Acquis"`)})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := a.DecodeData()
	if v, _ := data.Value("dropdown_b1"); v != "Acquis" {
		t.Errorf("dropdown_b1 = %q", v)
	}
}
