package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tutord/internal/postprocess"
	"github.com/fyrsmithlabs/tutord/internal/tutor"
)

var (
	askSession string
	askLevel   string
	askRole    string
	askCourse  string
	askUser    string
)

func init() {
	for _, c := range []*cobra.Command{askCmd, chatCmd} {
		c.Flags().StringVar(&askSession, "session", "", "session id for conversation memory")
		c.Flags().StringVar(&askLevel, "level", "", "learner level (N5..N1, beginner, intermediate, advanced)")
		c.Flags().StringVar(&askRole, "role", "", "learner role (student or teacher)")
		c.Flags().StringVar(&askCourse, "course", "", "course id to answer from")
		c.Flags().StringVar(&askUser, "user", "", "user id for learning analytics")
	}
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a single grammar question",
	Long: `Ask a single grammar question and print the full response as JSON.

Session memory lives in the tutord process unless session.backend is redis,
so --session only carries turns from one ask run to the next with the redis
backend configured.

Examples:
  # Ask a question
  tutord ask "What is the difference between は and が?"

  # Continue a conversation (requires session.backend: redis)
  tutord ask "What about 食べる?" --session lesson-3

  # Answer from a course namespace for a beginner
  tutord ask "How do counters work?" --course jp101 --level N5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive tutoring session on stdin",
	Long: `Start an interactive session. Each line is a question; the tutor
remembers earlier turns of the session.

Commands inside the session:
  /clear  forget the conversation so far
  /quit   leave the session

Examples:
  # Start a new session
  tutord chat

  # Resume a named session (requires session.backend: redis)
  tutord chat --session lesson-3`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func buildRequest(query, sessionID string) tutor.Request {
	return tutor.Request{
		Query:     query,
		User:      postprocess.UserContext{Level: askLevel, Role: askRole},
		CourseID:  askCourse,
		SessionID: sessionID,
		UserID:    askUser,
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	rt, err := loadService(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	resp, err := rt.svc.GenerateResponse(cmd.Context(), buildRequest(strings.Join(args, " "), askSession))
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := loadService(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	sessionID := askSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return chatLoop(cmd, rt.svc, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatLoop reads one question per line until EOF, /quit or cancellation.
func chatLoop(cmd *cobra.Command, svc *tutor.Service, sessionID string, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	fmt.Fprintf(out, "session %s (/clear to reset, /quit to leave)\n", sessionID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := svc.ClearSession(ctx, sessionID); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			} else {
				fmt.Fprintln(out, "conversation cleared")
			}
			continue
		}

		resp, err := svc.GenerateResponse(ctx, buildRequest(line, sessionID))
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		writeAnswer(out, resp)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func writeAnswer(out io.Writer, resp *tutor.Response) {
	fmt.Fprintf(out, "\n%s\n", resp.Response)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, src := range resp.Sources {
			label := src.Title
			if src.Section != "" {
				label = strings.TrimSpace(label + " " + src.Section)
			}
			if label == "" {
				label = src.Origin
			}
			fmt.Fprintf(out, "  - %s (%.2f)\n", label, src.Score)
		}
	}
	if len(resp.Recommendations) > 0 {
		fmt.Fprintln(out, "\nNext:")
		for _, r := range resp.Recommendations {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	fmt.Fprintf(out, "\nconfidence %.2f\n\n", resp.Confidence)
}
