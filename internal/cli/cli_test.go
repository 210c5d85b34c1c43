package cli

import (
	"bytes"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gilkh/livret/internal/auth"
	"github.com/gilkh/livret/internal/config"
	"github.com/gilkh/livret/internal/database"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	want := []string{"serve", "render", "batch", "migrate", "seed", "hash-password", "token", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "name:") || !strings.Contains(out, "livret") {
		t.Errorf("output = %q", out)
	}
}

func TestRelationalOnlyCommands(t *testing.T) {
	t.Setenv("DB_TYPE", "mongodb")
	for _, args := range [][]string{{"migrate"}, {"seed", "--file", "missing.yaml"}} {
		t.Run(args[0], func(t *testing.T) {
			if _, err := execute(t, args...); !errors.Is(err, errMongoReadOnly) {
				t.Errorf("error = %v, want %v", err, errMongoReadOnly)
			}
		})
	}
}

func TestRenderFlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no target", []string{"render"}},
		{"both targets", []string{"render", "--assignment", "a1", "--student", "s1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := execute(t, "batch"); err == nil || !strings.Contains(err.Error(), "no assignment ids") {
		t.Errorf("batch without ids error = %v", err)
	}
}

func TestHashPasswordCommand(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader("s3cret\n"))
	root.SetArgs([]string{"hash-password"})
	if err := root.Execute(); err != nil {
		t.Fatalf("hash-password error = %v", err)
	}

	hash := strings.TrimSpace(out.String())
	tpl := &database.Template{ExportPasswordHash: hash}
	if !database.CheckExportPassword(tpl, "s3cret") {
		t.Errorf("hash %q does not match the password", hash)
	}
	if database.CheckExportPassword(tpl, "other") {
		t.Error("hash matches a different password")
	}
}

func TestReadPassword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pw\n", "pw"},
		{"pw\r\nrest", "pw"},
		{"no-newline", "no-newline"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := readPassword(strings.NewReader(tt.in), &bytes.Buffer{})
		if err != nil || got != tt.want {
			t.Errorf("readPassword(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	out, err := execute(t, "token", "--subject", "u1", "--role", "SUBADMIN")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	claims, err := auth.NewTokens("cli-secret", time.Minute).Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "u1" || claims.Role != "SUBADMIN" {
		t.Errorf("claims = %+v", claims)
	}

	t.Setenv("JWT_SECRET", "")
	if _, err := execute(t, "token"); err == nil {
		t.Error("expected an error without JWT_SECRET")
	}
}

func TestReadIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	if err := os.WriteFile(path, []byte("a1\n\n# skipped\n  a2  \r\na3"), 0o644); err != nil {
		t.Fatal(err)
	}
	ids, err := readIDFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(ids, ",") != "a1,a2,a3" {
		t.Errorf("ids = %v", ids)
	}
}

func TestPageURL(t *testing.T) {
	a := &app{
		tokens: auth.NewTokens("page-secret", time.Minute),
		render: config.RenderSettings{PublicBaseURL: "http://livret.local"},
	}
	raw, err := a.pageURL("a 1")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "livret.local" || u.Path != "/render/assignments/a 1" {
		t.Errorf("url = %s", raw)
	}
	if err := a.tokens.VerifyRender(u.Query().Get("token"), "a 1"); err != nil {
		t.Errorf("VerifyRender() error = %v", err)
	}
}

const fixtureYAML = `
classes:
  - name: GS A
    level: GS
    schoolYear: 2025-2026
users:
  - displayName: Mme Nour
    email: nour@example.com
students:
  - firstName: Lina
    lastName: Haddad
    dateOfBirth: "2019-03-02"
    class: GS A
  - firstName: Karim
    lastName: Saad
    level: MS
templates:
  - name: Carnet GS
    file: gs.json
    exportPassword: secret
  - name: Carnet MS
    variables:
      ecole: Saint Joseph
    pages:
      - blocks:
          - type: text
            props: {x: 10, y: 10, text: "Bonjour {student.firstName}"}
assignments:
  - student: Lina Haddad
    template: Carnet GS
    completed: true
    data:
      dropdown_1: Acquis
  - student: Karim Saad
    template: Carnet MS
`

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	layoutJSON := `[{"blocks":[{"type":"text","props":{"x":40,"y":40,"text":"Carnet de {student.firstName}"}}]}]`
	if err := os.WriteFile(filepath.Join(dir, "gs.json"), []byte(layoutJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	fixturePath := filepath.Join(dir, "fixtures.yaml")
	if err := os.WriteFile(fixturePath, []byte(fixtureYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := database.OpenMemory("cli_seed")
	if err != nil {
		t.Fatal(err)
	}
	fixtures, err := LoadFixtures(fixturePath)
	if err != nil {
		t.Fatalf("LoadFixtures() error = %v", err)
	}
	res, err := Seed(db, dir, fixtures)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	want := SeedResult{Classes: 1, Users: 1, Students: 2, Templates: 2, Assignments: 2}
	if *res != want {
		t.Errorf("result = %+v, want %+v", *res, want)
	}

	var lina database.Student
	if err := db.Preload("Class").First(&lina, "first_name = ?", "Lina").Error; err != nil {
		t.Fatal(err)
	}
	if lina.Class == nil || lina.Class.Name != "GS A" || lina.DateOfBirth.Year() != 2019 {
		t.Errorf("student = %+v", lina)
	}

	var gs database.Template
	if err := db.First(&gs, "name = ?", "Carnet GS").Error; err != nil {
		t.Fatal(err)
	}
	if !database.CheckExportPassword(&gs, "secret") || database.CheckExportPassword(&gs, "nope") {
		t.Error("export password not applied")
	}

	var a database.TemplateAssignment
	if err := db.First(&a, "student_id = ? AND template_id = ?", lina.ID, gs.ID).Error; err != nil {
		t.Fatal(err)
	}
	data, err := a.DecodeData()
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := data.Value("dropdown_1"); v != "Acquis" || !a.IsCompleted {
		t.Errorf("assignment = %+v, dropdown_1 = %q", a, v)
	}

	// Classes are reused by name on a second run.
	res, err = Seed(db, dir, &Fixtures{Classes: fixtures.Classes})
	if err != nil || res.Classes != 0 {
		t.Errorf("second seed = %+v, %v", res, err)
	}
}

func TestSeedUnknownReferences(t *testing.T) {
	db, err := database.OpenMemory("cli_seed_refs")
	if err != nil {
		t.Fatal(err)
	}
	f := &Fixtures{Assignments: []AssignmentFixture{{Student: "Nobody", Template: "None"}}}
	if _, err := Seed(db, t.TempDir(), f); err == nil || !strings.Contains(err.Error(), "unknown student") {
		t.Errorf("error = %v", err)
	}
}
