package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ALT-F4-LLC/revmigrate/internal/render"
)

func TestWriterSuccessJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	w := &Writer{JSONMode: true, Stdout: &stdout, Stderr: &stderr}
	w.Success(map[string]string{"key": "val"}, "it worked")

	var env successEnvelope
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !env.OK {
		t.Error("ok = false, want true")
	}
	if env.Message != "it worked" {
		t.Errorf("message = %q, want %q", env.Message, "it worked")
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data type = %T, want map", env.Data)
	}
	if data["key"] != "val" {
		t.Errorf("data.key = %v, want %q", data["key"], "val")
	}
}

func TestWriterSuccessOmitsEmptyFields(t *testing.T) {
	var stdout bytes.Buffer
	w := &Writer{JSONMode: true, Stdout: &stdout}
	w.Success("data", "")

	var raw map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"message", "warnings"} {
		if _, exists := raw[key]; exists {
			t.Errorf("expected %s to be omitted when empty", key)
		}
	}
}

func TestWriterWarningsJoinEnvelope(t *testing.T) {
	var stdout, stderr bytes.Buffer
	w := &Writer{JSONMode: true, Stdout: &stdout, Stderr: &stderr}

	w.Warn("uploads URL not set, %d placeholders kept", 3)
	w.Success("done", "")
	if stderr.Len() != 0 {
		t.Errorf("warning went to stderr in JSON mode: %q", stderr.String())
	}

	var env successEnvelope
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(env.Warnings) != 1 || env.Warnings[0] != "uploads URL not set, 3 placeholders kept" {
		t.Errorf("warnings = %q", env.Warnings)
	}
	if len(w.warnings) != 0 {
		t.Error("warnings were not drained by the envelope")
	}
}

func TestWriterWarnHuman(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var stdout, stderr bytes.Buffer
	w := &Writer{QuietMode: true, Stdout: &stdout, Stderr: &stderr}

	w.Warn("resume with --skip %d", 12)
	if stderr.String() != "Warning: resume with --skip 12\n" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestWriterErrorJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	w := &Writer{JSONMode: true, Stdout: &stdout, Stderr: &stderr}

	w.Warn("load stopped")
	code := w.Error(errors.New("fail"), ErrValidation, map[string]int{"resume": 7})
	if code != ExitValidation {
		t.Errorf("exit code = %d, want %d", code, ExitValidation)
	}
	var env errorEnvelope
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.OK {
		t.Error("ok = true, want false")
	}
	if env.Error != "fail" || env.Code != ErrValidation {
		t.Errorf("envelope = %+v", env)
	}
	data, _ := env.Data.(map[string]any)
	if data["resume"] != float64(7) {
		t.Errorf("data = %v, want resume 7", env.Data)
	}
	if len(env.Warnings) != 1 {
		t.Errorf("warnings = %q, want one", env.Warnings)
	}
}

func TestWriterErrorOmitsNilData(t *testing.T) {
	var stdout bytes.Buffer
	w := &Writer{JSONMode: true, Stdout: &stdout}
	w.Error(errors.New("missing"), ErrNotFound, nil)

	var raw map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, exists := raw["data"]; exists {
		t.Error("expected data to be omitted when nil")
	}
}

func TestWriterErrorHuman(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var stdout, stderr bytes.Buffer
	w := &Writer{JSONMode: false, Stdout: &stdout, Stderr: &stderr}

	code := w.Error(errors.New("fail"), ErrGeneral, nil)
	if code != ExitGeneral {
		t.Errorf("exit code = %d, want %d", code, ExitGeneral)
	}
	if stderr.String() != "Error: fail\n" {
		t.Errorf("stderr = %q, want %q", stderr.String(), "Error: fail\n")
	}
}

func TestWriterReportHuman(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var stdout bytes.Buffer
	w := &Writer{Stdout: &stdout}

	err := w.Report(struct{}{}, render.Summary{
		Title:  "Load complete",
		Counts: []render.Count{{Label: "reviews", N: 2}},
	})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	for _, want := range []string{"# Load complete", "| reviews | 2 |"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout.String())
		}
	}
}

func TestWriterReportJSON(t *testing.T) {
	var stdout bytes.Buffer
	w := &Writer{JSONMode: true, Stdout: &stdout}

	if err := w.Report(map[string]int{"applied": 3}, render.Summary{Title: "ignored"}); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if strings.Contains(stdout.String(), "ignored") {
		t.Errorf("summary leaked into JSON output: %s", stdout.String())
	}
	var env successEnvelope
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !env.OK {
		t.Error("ok = false, want true")
	}
}

func TestWriterInfoSuppressedInJSONMode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	w := &Writer{JSONMode: true, Stdout: &stdout, Stderr: &stderr}

	w.Info("should not appear")
	if stderr.Len() != 0 {
		t.Errorf("expected no stderr output in JSON mode, got %q", stderr.String())
	}
}

func TestWriterInfoSuppressedInQuietMode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	w := &Writer{QuietMode: true, Stdout: &stdout, Stderr: &stderr}

	w.Info("should not appear")
	if stderr.Len() != 0 {
		t.Errorf("expected no stderr output in quiet mode, got %q", stderr.String())
	}
}

func TestWriterInfoEmitsInDefaultMode(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var stdout, stderr bytes.Buffer
	w := &Writer{Stdout: &stdout, Stderr: &stderr}

	w.Info("hello %s", "world")
	if stderr.String() != "hello world\n" {
		t.Errorf("stderr = %q, want %q", stderr.String(), "hello world\n")
	}
}

func TestExitCodeForErrorMapping(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrGeneral, ExitGeneral},
		{ErrNotFound, ExitNotFound},
		{ErrValidation, ExitValidation},
		{ErrMapping, ExitMapping},
		{ErrorCode("unknown"), ExitGeneral},
	}

	for _, tt := range tests {
		if got := ExitCodeForError(tt.code); got != tt.want {
			t.Errorf("ExitCodeForError(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestProgressCountsWithoutTerminal(t *testing.T) {
	var stdout, stderr bytes.Buffer
	w := &Writer{Stdout: &stdout, Stderr: &stderr}

	p := w.Progress("reviews", 2)
	p.Increment()
	p.AddTotal(3)
	p.Increment()
	p.Finish()

	if p.Done() != 2 {
		t.Errorf("Done() = %d, want 2", p.Done())
	}
	if p.Total() != 5 {
		t.Errorf("Total() = %d, want 5", p.Total())
	}
	if stderr.Len() != 0 {
		t.Errorf("progress drew on a non-terminal: %q", stderr.String())
	}
}

func TestNilProgress(t *testing.T) {
	var p *Progress
	p.Increment()
	p.AddTotal(1)
	p.Finish()
	if p.Done() != 0 || p.Total() != 0 {
		t.Error("nil Progress should count nothing")
	}
}
