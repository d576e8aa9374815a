package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/deckhand/pkg/deck"
	"github.com/aretw0/deckhand/pkg/domain"
)

type fakeReader struct {
	overview    *deck.Overview
	overviewErr error
	details     []deck.SlideResult
	detailErr   error
	gotIndices  []int
}

func (f *fakeReader) ReadOverview(ctx context.Context, path string) (*deck.Overview, error) {
	if f.overviewErr != nil {
		return nil, f.overviewErr
	}
	return f.overview, nil
}

func (f *fakeReader) ReadDetail(ctx context.Context, path string, indices []int) ([]deck.SlideResult, error) {
	f.gotIndices = append([]int(nil), indices...)
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.details, nil
}

type panicReader struct{ fakeReader }

func (p *panicReader) ReadOverview(ctx context.Context, path string) (*deck.Overview, error) {
	panic("reader exploded")
}

type fakeExecutor struct {
	outcome domain.Outcome
	got     []domain.ExecRequest
}

func (f *fakeExecutor) Execute(ctx context.Context, req domain.ExecRequest) domain.Outcome {
	f.got = append(f.got, req)
	return f.outcome
}

func newRouter(t *testing.T, reader SnapshotReader, exec *fakeExecutor, opts ...Option) *Router {
	t.Helper()
	r, err := New(reader, exec, opts...)
	require.NoError(t, err)
	return r
}

func roadmapSlide() *deck.Slide {
	return &deck.Slide{
		SlideNumber: 2,
		Title:       "Roadmap",
		Elements: []deck.Element{
			{
				Anchor:  deck.AnchorInfo{Anchor: "slide2_title0_9f86d0", Type: "title", Path: "slide[2].title[0]"},
				Content: "Roadmap",
			},
		},
	}
}

func TestDispatchReadOverview(t *testing.T) {
	t.Run("Returns Structure JSON", func(t *testing.T) {
		reader := &fakeReader{overview: &deck.Overview{
			TotalSlides: 2,
			Slides: []deck.SlideOverview{
				{SlideNumber: 1, Title: "Intro", ElementCount: 1, Anchors: []string{"slide1_title0_aaaaaa"}},
				{SlideNumber: 2, Title: "Roadmap", ElementCount: 1, Anchors: []string{"slide2_title0_9f86d0"}},
			},
		}}
		r := newRouter(t, reader, &fakeExecutor{})

		call := domain.ToolCall{ID: "call-1", Action: domain.ActionReadOverview}
		result := r.Dispatch(context.Background(), call, "/decks/talk.pptx")

		assert.False(t, result.IsError)
		assert.Equal(t, "call-1", result.CallID)
		assert.Equal(t, domain.ActionReadOverview, result.Action)
		assert.Contains(t, result.Content, `"TotalSlides": 2`)
		assert.Contains(t, result.Content, "slide2_title0_9f86d0")
	})

	t.Run("Read Failure Becomes Tool Error", func(t *testing.T) {
		reader := &fakeReader{overviewErr: errors.New("Build failed: error CS1002")}
		r := newRouter(t, reader, &fakeExecutor{})

		result := r.Dispatch(context.Background(), domain.ToolCall{ID: "call-1", Action: domain.ActionReadOverview}, "/decks/talk.pptx")

		assert.True(t, result.IsError)
		assert.Equal(t, "Failed to read presentation structure: Build failed: error CS1002", result.Content)
	})
}

func TestDispatchReadDetail(t *testing.T) {
	t.Run("Preserves Request Order And Duplicates", func(t *testing.T) {
		reader := &fakeReader{details: []deck.SlideResult{
			{SlideNumber: 2, Slide: roadmapSlide()},
			{SlideNumber: 99, Err: "slide 99 not found (document has 3 slides)"},
			{SlideNumber: 2, Slide: roadmapSlide()},
		}}
		r := newRouter(t, reader, &fakeExecutor{})

		call := domain.ToolCall{
			ID:     "call-2",
			Action: domain.ActionReadDetail,
			Args:   map[string]any{"container_indices": []any{2, 99, 2}},
		}
		result := r.Dispatch(context.Background(), call, "/decks/talk.pptx")

		assert.False(t, result.IsError, "a missing slide must not fail the batch")
		assert.Equal(t, []int{2, 99, 2}, reader.gotIndices)
		assert.Contains(t, result.Content, "slide 99 not found (document has 3 slides)")
		assert.Contains(t, result.Content, `"Title": "Roadmap"`)
	})

	t.Run("Float Indices From JSON Decode Cleanly", func(t *testing.T) {
		reader := &fakeReader{details: []deck.SlideResult{{SlideNumber: 1, Slide: roadmapSlide()}}}
		r := newRouter(t, reader, &fakeExecutor{})

		call := domain.ToolCall{
			ID:     "call-3",
			Action: domain.ActionReadDetail,
			Args:   map[string]any{"container_indices": []any{float64(1)}},
		}
		result := r.Dispatch(context.Background(), call, "/decks/talk.pptx")

		assert.False(t, result.IsError)
		assert.Equal(t, []int{1}, reader.gotIndices)
	})

	t.Run("Missing Indices Rejected", func(t *testing.T) {
		reader := &fakeReader{}
		r := newRouter(t, reader, &fakeExecutor{})

		call := domain.ToolCall{ID: "call-4", Action: domain.ActionReadDetail}
		result := r.Dispatch(context.Background(), call, "/decks/talk.pptx")

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "invalid arguments for read_detail")
		assert.Nil(t, reader.gotIndices, "rejected calls must not reach the reader")
	})

	t.Run("Read Failure Becomes Tool Error", func(t *testing.T) {
		reader := &fakeReader{detailErr: errors.New("Code execution timed out after 30 seconds")}
		r := newRouter(t, reader, &fakeExecutor{})

		call := domain.ToolCall{
			ID:     "call-5",
			Action: domain.ActionReadDetail,
			Args:   map[string]any{"container_indices": []any{1}},
		}
		result := r.Dispatch(context.Background(), call, "/decks/talk.pptx")

		assert.True(t, result.IsError)
		assert.Equal(t, "Failed to read slide details: Code execution timed out after 30 seconds", result.Content)
	})
}

func TestDispatchExecuteEdit(t *testing.T) {
	call := func(code string) domain.ToolCall {
		return domain.ToolCall{
			ID:     "call-6",
			Action: domain.ActionExecuteEdit,
			Args:   map[string]any{"code": code},
		}
	}

	t.Run("Success Reports Output", func(t *testing.T) {
		exec := &fakeExecutor{outcome: domain.NewSuccess("Updated bullet 2\n")}
		r := newRouter(t, &fakeReader{}, exec)

		result := r.Dispatch(context.Background(), call("bullet.Text = \"Done\";"), "/decks/talk.pptx")

		assert.False(t, result.IsError)
		assert.Equal(t, "Code executed successfully. Output: Updated bullet 2\n", result.Content)

		require.Len(t, exec.got, 1)
		assert.Equal(t, "bullet.Text = \"Done\";", exec.got[0].Fragment)
		assert.Equal(t, "/decks/talk.pptx", exec.got[0].DocumentPath)
		assert.Equal(t, domain.ModeModify, exec.got[0].Mode)
	})

	t.Run("Validation Rejection Is Reported", func(t *testing.T) {
		exec := &fakeExecutor{outcome: domain.NewValidationRejected("[Sem_UniqueIdAttribute] Duplicate id.\n")}
		r := newRouter(t, &fakeReader{}, exec)

		result := r.Dispatch(context.Background(), call("bad edit"), "/decks/talk.pptx")

		assert.True(t, result.IsError)
		assert.Equal(t,
			"Execution failed: Validation failed - the modifications would corrupt the PowerPoint file:\n[Sem_UniqueIdAttribute] Duplicate id.\n",
			result.Content)
	})

	t.Run("Build Failure Includes Source Listing", func(t *testing.T) {
		exec := &fakeExecutor{outcome: domain.NewBuildFailed("error CS0103\n", "1: using System;")}
		r := newRouter(t, &fakeReader{}, exec)

		result := r.Dispatch(context.Background(), call("definitely not csharp"), "/decks/talk.pptx")

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "Execution failed: Build failed:\nerror CS0103")
		assert.Contains(t, result.Content, "Generated code (first 50 lines):\n1: using System;")
	})

	t.Run("Timeout Message Passes Through", func(t *testing.T) {
		exec := &fakeExecutor{outcome: domain.NewTimedOut("Code execution timed out after 60 seconds")}
		r := newRouter(t, &fakeReader{}, exec)

		result := r.Dispatch(context.Background(), call("while(true){}"), "/decks/talk.pptx")

		assert.True(t, result.IsError)
		assert.Equal(t, "Execution failed: Code execution timed out after 60 seconds", result.Content)
	})

	t.Run("Missing Code Rejected", func(t *testing.T) {
		exec := &fakeExecutor{outcome: domain.NewSuccess("unreachable")}
		r := newRouter(t, &fakeReader{}, exec)

		result := r.Dispatch(context.Background(), domain.ToolCall{ID: "call-7", Action: domain.ActionExecuteEdit}, "/decks/talk.pptx")

		assert.True(t, result.IsError)
		assert.Contains(t, result.Content, "invalid arguments for execute_edit")
		assert.Empty(t, exec.got, "rejected calls must not reach the sandbox")
	})
}

func TestDispatchWithoutDocumentPath(t *testing.T) {
	exec := &fakeExecutor{}
	reader := &fakeReader{}
	r := newRouter(t, reader, exec)

	for _, action := range domain.Actions() {
		t.Run(string(action), func(t *testing.T) {
			result := r.Dispatch(context.Background(), domain.ToolCall{ID: "call-8", Action: action}, "")

			assert.True(t, result.IsError)
			assert.Equal(t, "Error: No PowerPoint file path provided in state", result.Content)
		})
	}
	assert.Empty(t, exec.got)
	assert.Nil(t, reader.gotIndices)
}

func TestDispatchUnknownAction(t *testing.T) {
	r := newRouter(t, &fakeReader{}, &fakeExecutor{})

	result := r.Dispatch(context.Background(), domain.ToolCall{ID: "call-9", Action: "drop_slides"}, "/decks/talk.pptx")

	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, `unknown tool "drop_slides"`)
	assert.Contains(t, result.Content, "read_overview")
	assert.Contains(t, result.Content, "read_detail")
	assert.Contains(t, result.Content, "execute_edit")
}

func TestDispatchRecoversFromPanics(t *testing.T) {
	r := newRouter(t, &panicReader{}, &fakeExecutor{})

	result := r.Dispatch(context.Background(), domain.ToolCall{ID: "call-10", Action: domain.ActionReadOverview}, "/decks/talk.pptx")

	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "internal failure")
	assert.Contains(t, result.Content, "reader exploded")
	assert.Equal(t, "call-10", result.CallID)
}

func TestDispatchObserver(t *testing.T) {
	type seen struct {
		action  domain.ActionKind
		isError bool
	}
	var observed []seen

	exec := &fakeExecutor{outcome: domain.NewSuccess("done")}
	r := newRouter(t, &fakeReader{}, exec, WithObserver(func(action domain.ActionKind, isError bool, _ time.Duration) {
		observed = append(observed, seen{action, isError})
	}))

	r.Dispatch(context.Background(), domain.ToolCall{ID: "a", Action: domain.ActionExecuteEdit, Args: map[string]any{"code": "x"}}, "/d.pptx")
	r.Dispatch(context.Background(), domain.ToolCall{ID: "b", Action: "nope"}, "/d.pptx")

	require.Len(t, observed, 2)
	assert.Equal(t, seen{domain.ActionExecuteEdit, false}, observed[0])
	assert.Equal(t, seen{domain.ActionKind("nope"), true}, observed[1])
}
