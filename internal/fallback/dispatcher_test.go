package fallback

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/local/linerelay/internal/ai"
	"github.com/local/linerelay/internal/dispatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Success(t *testing.T) {
	d := New(DefaultTable(), 800)
	assert.Equal(t, "  exact text  ", d.Resolve(dispatcher.Success("  exact text  ")))
}

func TestResolve_EveryKindHasReply(t *testing.T) {
	table := DefaultTable()
	d := New(table, 800)
	for _, kind := range dispatcher.Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			got := d.Resolve(dispatcher.Fail(kind, "detail", nil))
			assert.NotEmpty(t, got)
			assert.Equal(t, table.Messages[kind], got)
			assert.NotContains(t, got, "detail")
		})
	}
}

func TestResolve_TotalOverIncompleteTable(t *testing.T) {
	table := Table{
		Messages: map[dispatcher.ErrorKind]string{dispatcher.KindTimeout: "too slow", dispatcher.KindUnknown: ""},
		Default:  "fallback of last resort",
	}
	d := New(table, 800)

	kinds := append(dispatcher.Kinds(), dispatcher.ErrorKind("SOMETHING_NEW"), dispatcher.ErrorKind(""))
	for _, kind := range kinds {
		got := d.Resolve(dispatcher.Fail(kind, "", nil))
		if kind == dispatcher.KindTimeout {
			assert.Equal(t, "too slow", got)
			continue
		}
		assert.Equal(t, "fallback of last resort", got, "kind %q", kind)
	}

	empty := New(Table{}, 800)
	for _, kind := range kinds {
		assert.Equal(t, DefaultMessage, empty.Resolve(dispatcher.Fail(kind, "", nil)))
	}
}

func TestTable_With(t *testing.T) {
	base := DefaultTable()
	custom := base.With(map[dispatcher.ErrorKind]string{
		dispatcher.KindQuotaExceeded: "custom quota",
		dispatcher.KindTimeout:       "",
	})

	assert.Equal(t, "custom quota", custom.Lookup(dispatcher.KindQuotaExceeded))
	assert.Equal(t, base.Lookup(dispatcher.KindTimeout), custom.Lookup(dispatcher.KindTimeout))
	assert.NotEqual(t, "custom quota", base.Lookup(dispatcher.KindQuotaExceeded))
}

func TestPrepareInput(t *testing.T) {
	d := New(DefaultTable(), 10)

	got, err := d.PrepareInput("  hello \n")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = d.PrepareInput(" \t\n ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	got, err = d.PrepareInput("0123456789")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", got)

	got, err = d.PrepareInput("0123456789abc")
	require.NoError(t, err)
	assert.Equal(t, "0123456789"+TruncationMarker, got)
}

func TestPrepareInput_CountsCharactersNotBytes(t *testing.T) {
	d := New(DefaultTable(), 3)

	got, err := d.PrepareInput("小天使")
	require.NoError(t, err)
	assert.Equal(t, "小天使", got)

	got, err = d.PrepareInput("小天使你好")
	require.NoError(t, err)
	assert.Equal(t, "小天使"+TruncationMarker, got)
	assert.True(t, utf8.ValidString(got))
}

func TestPrepareInput_IdempotentWithinLimit(t *testing.T) {
	d := New(DefaultTable(), 800)
	inputs := []string{"hi", "  padded  ", "line one\nline two", strings.Repeat("x", 800), " 你好 "}
	for _, in := range inputs {
		once, err := d.PrepareInput(in)
		require.NoError(t, err)
		twice, err := d.PrepareInput(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestNew_DefaultMaxLength(t *testing.T) {
	assert.Equal(t, DefaultMaxInputLength, New(DefaultTable(), 0).MaxInputLength())
}

type recordingClient struct {
	prompt string
	err    error
}

func (c *recordingClient) Name() string  { return "stub" }
func (c *recordingClient) Model() string { return "stub-model" }
func (c *recordingClient) Generate(ctx context.Context, req ai.Request) (ai.Response, error) {
	c.prompt = req.Prompt
	if c.err != nil {
		return ai.Response{}, c.err
	}
	return ai.Response{Text: "answer"}, nil
}
func (c *recordingClient) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

func newInvoker(t *testing.T, c ai.Client) *dispatcher.Invoker {
	t.Helper()
	pool := dispatcher.NewPool(dispatcher.Config{Concurrency: 1, QueueSize: 1})
	pool.Start()
	t.Cleanup(func() { _ = pool.Stop(context.Background()) })
	return dispatcher.NewInvoker(c, pool, ai.GenerationParams{})
}

func TestTruncatedInputReachesInvoker(t *testing.T) {
	client := &recordingClient{}
	iv := newInvoker(t, client)
	d := New(DefaultTable(), 800)

	text, err := d.PrepareInput(strings.Repeat("a", 1000))
	require.NoError(t, err)
	assert.Equal(t, 800+utf8.RuneCountInString(TruncationMarker), utf8.RuneCountInString(text))

	res := iv.Invoke(context.Background(), text, time.Second)
	require.True(t, res.OK())
	assert.Equal(t, text, client.prompt)
	assert.Equal(t, strings.Repeat("a", 800)+TruncationMarker, client.prompt)
	assert.Equal(t, "answer", d.Resolve(res))
}

func TestRateLimitResolvesToQuotaReply(t *testing.T) {
	client := &recordingClient{err: &ai.APIError{Provider: "stub", StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}}
	iv := newInvoker(t, client)
	table := DefaultTable()
	d := New(table, 800)

	res := iv.Invoke(context.Background(), "hello", time.Second)

	require.Equal(t, dispatcher.KindQuotaExceeded, res.Kind())
	assert.Equal(t, table.Messages[dispatcher.KindQuotaExceeded], d.Resolve(res))
}
