package transcript

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawggle-ai/internal/domain"
)

func msg(role domain.Role, text string) domain.Message {
	return domain.Message{Role: role, Text: text}
}

func TestTranscriptEmpty(t *testing.T) {
	var tr Transcript

	assert.Equal(t, 0, tr.Len())
	_, ok := tr.Last()
	assert.False(t, ok)
	_, ok = tr.First()
	assert.False(t, ok)
	assert.Empty(t, tr.Messages())

	_, err := tr.AmendLast(func(s string) string { return s + "x" })
	assert.True(t, errors.Is(err, domain.ErrNoLastMessage))
}

func TestTranscriptAppendOrder(t *testing.T) {
	tr := New(msg(domain.RoleAssistant, "a"), msg(domain.RoleUser, "b"))
	tr = tr.Append(msg(domain.RoleCode, "c"))

	require.Equal(t, 3, tr.Len())
	first, _ := tr.First()
	last, _ := tr.Last()
	assert.Equal(t, "a", first.Text)
	assert.Equal(t, "c", last.Text)
	assert.Equal(t, []domain.Message{
		msg(domain.RoleAssistant, "a"),
		msg(domain.RoleUser, "b"),
		msg(domain.RoleCode, "c"),
	}, tr.Messages())
}

func TestTranscriptAmendOnlyTouchesLast(t *testing.T) {
	tr := New(msg(domain.RoleUser, "q"), msg(domain.RoleAssistant, "a"))

	amended, err := tr.AmendLast(func(s string) string { return s + "bc" })
	require.NoError(t, err)

	assert.Equal(t, []domain.Message{msg(domain.RoleUser, "q"), msg(domain.RoleAssistant, "abc")}, amended.Messages())
	assert.Equal(t, []domain.Message{msg(domain.RoleUser, "q"), msg(domain.RoleAssistant, "a")}, tr.Messages())
}

func TestTranscriptSiblingAppendsAreIndependent(t *testing.T) {
	base := New(msg(domain.RoleUser, "1"), msg(domain.RoleUser, "2"))

	left := base.Append(msg(domain.RoleAssistant, "left"))
	right := base.Append(msg(domain.RoleCode, "right"))
	left = left.Append(msg(domain.RoleUser, "after-left"))

	assert.Equal(t, "1", left.Messages()[0].Text)
	assert.Equal(t, "left", left.Messages()[2].Text)
	assert.Equal(t, "right", right.Messages()[2].Text)
	assert.Equal(t, 2, base.Len())
}

func TestTranscriptMessagesIsCopy(t *testing.T) {
	tr := New(msg(domain.RoleUser, "x"))
	out := tr.Messages()
	out[0].Text = "changed"

	last, _ := tr.Last()
	assert.Equal(t, "x", last.Text)
}

func TestTranscriptAppendSharesOneLine(t *testing.T) {
	var tr Transcript
	for i := 0; i < 1000; i++ {
		tr = tr.Append(msg(domain.RoleUser, "m"))
	}
	require.Equal(t, 1000, tr.Len())
	require.NotNil(t, tr.sealed)
	// Geometric growth keeps the shared array within a small factor of the
	// sealed prefix instead of reallocating per message.
	assert.Less(t, cap(tr.sealed.msgs), 4*len(tr.head))

	line := tr.sealed
	tr = tr.Append(msg(domain.RoleAssistant, "next"))
	assert.Same(t, line, tr.sealed, "appending to the newest value extends the shared line")
}

func TestTranscriptStaleValueForksLine(t *testing.T) {
	base := New(msg(domain.RoleUser, "1"), msg(domain.RoleUser, "2"), msg(domain.RoleUser, "3"))
	amended, err := base.AmendLast(func(string) string { return "3!" })
	require.NoError(t, err)

	newer := base.Append(msg(domain.RoleAssistant, "a"))
	forked := amended.Append(msg(domain.RoleAssistant, "b"))

	assert.NotSame(t, newer.sealed, forked.sealed)
	assert.Equal(t, []string{"1", "2", "3", "a"}, texts(newer))
	assert.Equal(t, []string{"1", "2", "3!", "b"}, texts(forked))
	assert.Equal(t, []string{"1", "2", "3"}, texts(base))
}

func texts(tr Transcript) []string {
	var out []string
	for _, m := range tr.Messages() {
		out = append(out, m.Text)
	}
	return out
}
