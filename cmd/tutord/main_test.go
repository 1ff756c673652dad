package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tutord/internal/postprocess"
	"github.com/fyrsmithlabs/tutord/internal/tutor"
)

func TestCommandTree(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{args: []string{"ingest", "file"}, want: "file"},
		{args: []string{"ingest", "url"}, want: "url"},
		{args: []string{"ingest", "syllabus"}, want: "syllabus"},
		{args: []string{"ask"}, want: "ask"},
		{args: []string{"chat"}, want: "chat"},
		{args: []string{"status"}, want: "status"},
		{args: []string{"index", "drop"}, want: "drop"},
		{args: []string{"index", "list"}, want: "list"},
		{args: []string{"version"}, want: "version"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd, _, err := rootCmd.Find(tt.args)
			if err != nil {
				t.Fatalf("Find(%v) error = %v", tt.args, err)
			}
			if cmd.Name() != tt.want {
				t.Errorf("Find(%v) = %q, want %q", tt.args, cmd.Name(), tt.want)
			}
		})
	}
}

func TestCourseMetadata(t *testing.T) {
	if got := courseMetadata(""); got != nil {
		t.Errorf("courseMetadata(\"\") = %v, want nil", got)
	}
	got := courseMetadata("jp101")
	if got[tutor.MetaCourseID] != "jp101" {
		t.Errorf("courseMetadata(jp101) = %v", got)
	}
}

func TestBuildRequest(t *testing.T) {
	askLevel, askRole, askCourse, askUser = "N5", "student", "jp101", "learner-1"
	t.Cleanup(func() { askLevel, askRole, askCourse, askUser = "", "", "", "" })

	req := buildRequest("What is は?", "s1")
	want := tutor.Request{
		Query:     "What is は?",
		User:      postprocess.UserContext{Level: "N5", Role: "student"},
		CourseID:  "jp101",
		SessionID: "s1",
		UserID:    "learner-1",
	}
	if req.Query != want.Query || req.User != want.User || req.CourseID != want.CourseID ||
		req.SessionID != want.SessionID || req.UserID != want.UserID {
		t.Errorf("buildRequest() = %+v, want %+v", req, want)
	}
}

func TestWriteAnswer(t *testing.T) {
	var buf bytes.Buffer
	writeAnswer(&buf, &tutor.Response{
		Response:        "は marks the topic.",
		Sources:         []postprocess.Source{{Title: "Lesson 1", Section: "Particles", Score: 0.91}},
		Confidence:      0.85,
		Recommendations: []string{"Practice particle usage with example sentences"},
	})

	out := buf.String()
	for _, want := range []string{"は marks the topic.", "Lesson 1 Particles (0.91)", "Practice particle usage", "confidence 0.85"} {
		if !strings.Contains(out, want) {
			t.Errorf("writeAnswer() output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)
	if !strings.Contains(buf.String(), "Version:    "+version) {
		t.Errorf("printVersion() = %q", buf.String())
	}
}

func TestSessionHelpNamesRedisBackend(t *testing.T) {
	for _, cmd := range []*cobra.Command{askCmd, chatCmd} {
		if !strings.Contains(cmd.Long, "requires session.backend: redis") {
			t.Errorf("%s help does not say --session needs session.backend: redis", cmd.Name())
		}
	}
}
