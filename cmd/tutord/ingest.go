package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/tutor"
)

var (
	ingestType      string
	ingestCourse    string
	ingestLimit     int
	ingestNamespace string
)

func init() {
	ingestFileCmd.Flags().StringVar(&ingestType, "type", "", "document type (markdown, html, text); inferred from the extension when empty")
	ingestFileCmd.Flags().StringVar(&ingestCourse, "course", "", "course id; documents go to the course_<id> namespace")
	ingestURLCmd.Flags().StringVar(&ingestCourse, "course", "", "course id; documents go to the course_<id> namespace")
	ingestSyllabusCmd.Flags().IntVar(&ingestLimit, "limit", 0, "maximum lessons to ingest (default from config)")
	ingestSyllabusCmd.Flags().StringVar(&ingestNamespace, "namespace", "", "target namespace (default japanese_grammar)")

	ingestCmd.AddCommand(ingestFileCmd)
	ingestCmd.AddCommand(ingestURLCmd)
	ingestCmd.AddCommand(ingestSyllabusCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest grammar material into the index",
	Long: `Ingest grammar material from files, single lesson pages, or a whole
syllabus index page.

Examples:
  # Ingest a markdown lesson
  tutord ingest file lessons/particles.md

  # Ingest an HTML export into a course namespace
  tutord ingest file export.html --course jp101

  # Ingest one lesson page
  tutord ingest url https://example.com/grammar/lesson-1

  # Ingest the first 10 lessons of a syllabus
  tutord ingest syllabus https://example.com/grammar/ --limit 10`,
}

var ingestFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Ingest a local document",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestFile,
}

var ingestURLCmd = &cobra.Command{
	Use:   "url <url>",
	Short: "Fetch and ingest a lesson page",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestURL,
}

var ingestSyllabusCmd = &cobra.Command{
	Use:   "syllabus <index-url>",
	Short: "Ingest every lesson linked from a syllabus page",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestSyllabus,
}

func courseMetadata(course string) map[string]string {
	if course == "" {
		return nil
	}
	return map[string]string{tutor.MetaCourseID: course}
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	rt, err := loadService(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	res := rt.svc.ProcessDocument(cmd.Context(), tutor.DocumentRequest{
		Content:      string(content),
		Filename:     filepath.Base(path),
		DocumentType: ingestType,
		Metadata:     courseMetadata(ingestCourse),
	})
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Status != tutor.DocumentProcessed {
		return fmt.Errorf("ingestion failed: %s", res.Error)
	}
	return nil
}

func runIngestURL(cmd *cobra.Command, args []string) error {
	rt, err := loadService(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.svc.IngestURL(cmd.Context(), args[0], courseMetadata(ingestCourse))
	if err != nil {
		return err
	}
	printResult(cmd, res)
	return nil
}

func runIngestSyllabus(cmd *cobra.Command, args []string) error {
	rt, err := loadService(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	results, err := rt.svc.IngestSyllabus(cmd.Context(), ingestNamespace, args[0], ingestLimit)
	if err != nil {
		return err
	}

	failed := 0
	for _, lr := range results {
		if lr.Err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %s (%s): %v\n", lr.Lesson.Title, lr.Lesson.URL, lr.Err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK    %s: %d chunks\n", lr.Lesson.Title, lr.Result.Chunks)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d lessons, %d failed\n", len(results), failed)
	if failed == len(results) && failed > 0 {
		return fmt.Errorf("no lessons ingested")
	}
	return nil
}

func printResult(cmd *cobra.Command, res ingest.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Document:  %s\n", res.DocumentID)
	fmt.Fprintf(out, "Origin:    %s\n", res.Origin)
	fmt.Fprintf(out, "Type:      %s\n", res.DocumentType)
	fmt.Fprintf(out, "Namespace: %s\n", res.Namespace)
	fmt.Fprintf(out, "Chunks:    %d\n", res.Chunks)
}
