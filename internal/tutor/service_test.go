package tutor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tutord/internal/generation"
	"github.com/fyrsmithlabs/tutord/internal/postprocess"
	"github.com/fyrsmithlabs/tutord/internal/session"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

func TestGenerateResponse_RanksMatchingSection(t *testing.T) {
	f := newFixture(t)
	f.ingestLesson(t, nil)

	resp, err := f.svc.GenerateResponse(context.Background(), Request{
		Query: "Explain the particle は",
		User:  postprocess.UserContext{Level: "beginner", Role: "student"},
	})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "Particles", resp.Sources[0].Section)
	assert.Contains(t, resp.GrammarPoints, "particle")
	assert.InDelta(t, postprocess.DefaultConfidence.Grounded, resp.Confidence, 1e-9)
	assert.Equal(t, vectorstore.DefaultNamespace, resp.Namespace)
	assert.Equal(t, "explanation", resp.Context.QueryType)
	assert.Contains(t, resp.Response, "は marks the topic")

	resp, err = f.svc.GenerateResponse(context.Background(), Request{Query: "How do verbs like 食べる conjugate?"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "Verb Conjugation", resp.Sources[0].Section)
	assert.Contains(t, resp.GrammarPoints, "verb conjugation")
}

func TestGenerateResponse_TwoTurnReformulation(t *testing.T) {
	f := newFixture(t)
	f.ingestLesson(t, nil)
	ctx := context.Background()

	first, err := f.svc.GenerateResponse(ctx, Request{Query: "How do I conjugate verbs?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "How do I conjugate verbs?", first.RetrievalQuery, "no history, no reformulation")

	second, err := f.svc.GenerateResponse(ctx, Request{Query: "What about 食べる?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Contains(t, second.RetrievalQuery, "conjugate")
	assert.Contains(t, second.RetrievalQuery, "食べる")
	require.NotEmpty(t, second.Sources)
	assert.Equal(t, "Verb Conjugation", second.Sources[0].Section)

	turns, err := f.sessions.Snapshot(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "How do I conjugate verbs?", turns[0].Text)
	assert.Equal(t, session.RoleAssistant, turns[3].Role)
	assert.Equal(t, second.Response, turns[3].Text)
}

func TestGenerateResponse_SuppliedHistoryWins(t *testing.T) {
	f := newFixture(t)
	f.ingestLesson(t, nil)
	ctx := context.Background()

	require.NoError(t, f.sessions.Append(ctx, "s1",
		session.Turn{Role: session.RoleUser, Text: "Tell me about counters"}))

	resp, err := f.svc.GenerateResponse(ctx, Request{
		Query:     "What about 食べる?",
		SessionID: "s1",
		ConversationHistory: []Exchange{
			{Message: "How do I conjugate verbs?", Response: "Drop る for ichidan verbs."},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, resp.RetrievalQuery, "conjugate")

	var reformulate generation.Prompt
	for _, p := range f.gen.prompts {
		if p.Kind == generation.KindReformulate {
			reformulate = p
		}
	}
	assert.NotContains(t, reformulate.User, "counters")
	assert.Contains(t, reformulate.User, "Assistant: Drop る for ichidan verbs.")
}

func TestGenerateResponse_MockChains(t *testing.T) {
	f := newFixture(t, withMockChains())
	f.ingestLesson(t, nil)
	ctx := context.Background()

	resp, err := f.svc.GenerateResponse(ctx, Request{Query: "Explain the particle は"})
	require.NoError(t, err)
	assert.Zero(t, resp.Confidence)
	assert.NotEmpty(t, resp.Sources)
	assert.Equal(t, "mock", resp.Generator)

	st := f.svc.SystemStatus(ctx)
	assert.True(t, st.ModelsLoaded.EmbeddingModel)
	assert.True(t, st.Embeddings.Mock)
	assert.True(t, st.Generator.Mock)
	assert.Equal(t, StateDegraded, st.Status)
}

func TestGenerateResponse_GenerationTimeout(t *testing.T) {
	slow := &scriptedGenerator{reply: func(ctx context.Context, _ generation.Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	f := newFixture(t, withGenerator(slow, generation.EngineConfig{RequestTimeout: 20 * time.Millisecond}))
	f.ingestLesson(t, nil)
	ctx := context.Background()

	resp, err := f.svc.GenerateResponse(ctx, Request{Query: "Explain the particle は", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, generation.Apology, resp.Response)
	assert.Zero(t, resp.Confidence)

	turns, err := f.sessions.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns, "a failed generation must not touch session memory")
}

func TestGenerateResponse_CanceledBeforeGeneration(t *testing.T) {
	f := newFixture(t)
	f.ingestLesson(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := f.svc.GenerateResponse(ctx, Request{Query: "Explain the particle は", SessionID: "s1"})
	require.NoError(t, err)
	assert.Zero(t, resp.Confidence)
	assert.Equal(t, generation.Apology, resp.Response)

	turns, err := f.sessions.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestGenerateResponse_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  Request
	}{
		{name: "empty query", req: Request{}},
		{name: "blank query", req: Request{Query: "  \n "}},
		{name: "bad session id", req: Request{Query: "hi", SessionID: "a b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GenerateResponse(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestGenerateResponse_EmptyIndex(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.GenerateResponse(context.Background(), Request{Query: "Explain the particle は"})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.Confidence)
	assert.Equal(t, generation.NoAnswerMarker, resp.Response)
}

func TestGenerateResponse_CourseNamespace(t *testing.T) {
	f := newFixture(t)
	doc := f.ingestLesson(t, map[string]string{MetaCourseID: "JP101"})
	assert.Equal(t, "course_jp101", doc.Namespace)
	ctx := context.Background()

	resp, err := f.svc.GenerateResponse(ctx, Request{Query: "Explain the particle は", CourseID: "jp101"})
	require.NoError(t, err)
	assert.Equal(t, "course_jp101", resp.Namespace)
	assert.NotEmpty(t, resp.Sources)

	resp, err = f.svc.GenerateResponse(ctx, Request{Query: "Explain the particle は", CourseID: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, vectorstore.DefaultNamespace, resp.Namespace)
	assert.Empty(t, resp.Sources)
}

func TestGenerateResponse_NotifiesAnalytics(t *testing.T) {
	f := newFixture(t)
	f.ingestLesson(t, nil)

	_, err := f.svc.GenerateResponse(context.Background(), Request{
		Query:  "Explain the particle は",
		UserID: "learner-1",
	})
	require.NoError(t, err)
	_, err = f.svc.GenerateResponse(context.Background(), Request{Query: "anonymous question"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Close())

	events := f.notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, "learner-1", events[0].UserID)
	assert.Equal(t, "explanation", events[0].MessageType)
	assert.Contains(t, events[0].GrammarPoints, "particle")
	assert.Equal(t, vectorstore.DefaultNamespace, events[0].Namespace)
}

func TestGenerateResponse_ConcurrentSessions(t *testing.T) {
	f := newFixture(t)
	f.ingestLesson(t, nil)
	ctx := context.Background()

	const perSession = 5
	done := make(chan struct{})
	for _, id := range []string{"a", "b", "c"} {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < perSession; i++ {
				_, err := f.svc.GenerateResponse(ctx, Request{Query: "Explain the particle は", SessionID: id})
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	for _, id := range []string{"a", "b", "c"} {
		turns, err := f.sessions.Snapshot(ctx, id)
		require.NoError(t, err)
		require.Len(t, turns, 2*perSession)
		for i, turn := range turns {
			want := session.RoleUser
			if i%2 == 1 {
				want = session.RoleAssistant
			}
			assert.Equal(t, want, turn.Role)
		}
	}
}

func TestClearSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Text: "hi"}))

	require.NoError(t, f.svc.ClearSession(ctx, "s1"))
	turns, err := f.sessions.Snapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{}, Deps{})
	require.Error(t, err)

	f := newFixture(t)
	_, err = New(Options{DefaultNamespace: "Bad Name"}, Deps{
		Embedder: keywordEmbedder{},
		Engine:   f.svc.engine,
		Index:    f.index,
		Pipeline: f.svc.pipeline,
	})
	assert.ErrorIs(t, err, vectorstore.ErrInvalidNamespace)
}

func TestClose_Idempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Close())
	require.NoError(t, f.svc.Close())
}
