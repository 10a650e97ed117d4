package cmd

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"alterego/core"
	"alterego/credits"
	"alterego/db"
	"alterego/history"
	"alterego/logging"
	"alterego/models"
	"alterego/webui/auth"
)

// testEnv points every storage variable at a fresh directory.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, k := range []string{
		"TRANSFORM_PROVIDER", "GEMINI_API_KEY", "OPENAI_API_KEY", "TRANSFORM_URL",
		"STYLES_FILE", "STARTING_CREDITS", "LOG_LEVEL", "LOG_FILE", "DEV_MODE", "PORT",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("DATA_DIR", dir)
	t.Setenv("DB_PATH", filepath.Join(dir, "alterego.db"))
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStylesCommand(t *testing.T) {
	testEnv(t)

	out, err := run(t, "", "styles", "--pool")
	if err != nil {
		t.Fatalf("styles: %v", err)
	}
	for _, want := range []string{"Default styles (6)", "1950s", "Surprise Me!", "Shuffle pool", "picks from"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCreditsCommands(t *testing.T) {
	testEnv(t)

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"credits", "show"}, "Balance: 18"},
		{[]string{"credits", "add", "credits_30"}, "Balance: 48"},
		{[]string{"credits", "show"}, "Balance: 48"},
		{[]string{"credits", "pro", "on"}, "Pro: unlimited"},
		{[]string{"credits", "pro", "off"}, "Balance: 48"},
	}
	for _, s := range steps {
		out, err := run(t, "", s.args...)
		if err != nil {
			t.Fatalf("%v: %v", s.args, err)
		}
		if !strings.Contains(out, s.want) {
			t.Errorf("%v: output %q, want %q", s.args, out, s.want)
		}
	}

	if _, err := run(t, "", "credits", "add", "credits_7"); !errors.Is(err, credits.ErrUnknownPack) {
		t.Errorf("unknown pack: err = %v", err)
	}
	if _, err := run(t, "", "credits", "pro", "maybe"); err == nil {
		t.Error("pro maybe: expected an error")
	}
}

func TestHistoryCommands(t *testing.T) {
	testEnv(t)

	out, err := run(t, "", "history", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No archived sessions.") {
		t.Errorf("empty list: %q", out)
	}

	// seed one archived session straight into the database
	st, err := openStorage(core.ReadConfig(), false, false, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	h := history.New(context.Background(), st.store, logging.NewNop())
	const ts = int64(1718000000000)
	_, err = h.Append(context.Background(), models.HistorySession{
		SourceImage: models.NewDataURL("image/png", []byte("src")),
		Timestamp:   ts,
		Images: map[string]models.GeneratedImage{
			"1950s":     models.DoneImage("1950s", models.NewDataURL("image/png", []byte("fifties"))),
			"Victorian": models.DoneImage("Victorian", models.NewDataURL("image/png", []byte("victorian"))),
			"Future":    models.FailedImage("Future", "boom"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	st.Close()

	out, err = run(t, "", "history", "list")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"History (1)", "1718000000000", "2 done", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q:\n%s", want, out)
		}
	}

	archive := filepath.Join(t.TempDir(), "out.zip")
	out, err = run(t, "", "history", "export", "1718000000000", "-o", archive)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "Wrote 2 images") {
		t.Errorf("export output: %q", out)
	}
	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	zr.Close()
	if strings.Join(names, ",") != "alterego-1950s.png,alterego-victorian.png" {
		t.Errorf("entries = %v", names)
	}

	if _, err := run(t, "", "history", "export", "42"); err == nil {
		t.Error("export of unknown timestamp: expected an error")
	}

	out, err = run(t, "", "history", "clear")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Cleared 1 sessions.") {
		t.Errorf("clear output: %q", out)
	}
}

func TestActivityCommand(t *testing.T) {
	dir := testEnv(t)

	out, err := run(t, "", "activity")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No activity recorded.") {
		t.Errorf("empty log: %q", out)
	}

	d, err := db.Open(filepath.Join(dir, "alterego.db"))
	if err != nil {
		t.Fatal(err)
	}
	repo := db.NewRepository(d, nil)
	events := []models.TransformEvent{
		{RunID: "run-aaaaaaaaaa", Kind: models.RunBatch, Style: "Surprise Me!", Target: "Anime", Provider: "gemini", Status: "success", DurationMS: 1500, CreatedAt: time.Now()},
		{RunID: "run-bbbbbbbbbb", Kind: models.RunRegenerate, Style: "1950s", Target: "1950s", Provider: "gemini", Status: "error", ErrorMessage: "quota", DurationMS: 20, CreatedAt: time.Now()},
	}
	for _, ev := range events {
		if _, err := repo.InsertTransformEvent(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	d.Close()

	out, err = run(t, "", "activity", "--limit", "10")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"TARGET", "Anime", "error: quota", "1.5s", "run-aaaa"} {
		if !strings.Contains(out, want) {
			t.Errorf("activity missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "", "activity", "--run", "run-bbbbbbbbbb")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "Anime") || !strings.Contains(out, "quota") {
		t.Errorf("filtered by run:\n%s", out)
	}
}

func TestTokenHash(t *testing.T) {
	testEnv(t)

	out, err := run(t, "", "token", "hash", "--cost", "10", "s3cret")
	if err != nil {
		t.Fatal(err)
	}
	hash := strings.TrimSpace(out)
	if err := auth.VerifyToken("s3cret", hash); err != nil {
		t.Errorf("hash from argument does not verify: %v", err)
	}

	out, err = run(t, "s3cret\n", "token", "hash", "--cost", "10")
	if err != nil {
		t.Fatal(err)
	}
	if err := auth.VerifyToken("s3cret", strings.TrimSpace(out)); err != nil {
		t.Errorf("hash from stdin does not verify: %v", err)
	}

	if _, err := run(t, "", "token", "hash"); err == nil {
		t.Error("empty stdin: expected an error")
	}
}

func TestDoctorCommand(t *testing.T) {
	testEnv(t)

	_, err := run(t, "", "doctor")
	if err == nil {
		t.Fatal("doctor without credentials passed")
	}
	if code := core.ExitCodeFor(err); code != core.ExitCodeConfig {
		t.Errorf("exit code = %d (%v), want %d", code, err, core.ExitCodeConfig)
	}

	t.Setenv("GEMINI_API_KEY", "key")
	out, err := run(t, "", "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	for _, want := range []string{"Configuration", "Database", "Ready"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
