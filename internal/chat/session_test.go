package chat

import (
	"strings"
	"testing"

	"github.com/samsaffron/chat-llm/internal/llm"
)

func TestSessionStartsWithSystemMessage(t *testing.T) {
	sess := newSession("DeepSeek", "You are a helpful assistant.")
	msgs := sess.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Fatalf("first role=%q, want system", msgs[0].Role)
	}

	sess.AppendUser("Hi")
	sess.AppendAssistant("Hello")
	sess.AppendUser("Bye")
	if got := sess.Messages()[0].Role; got != llm.RoleSystem {
		t.Fatalf("first role after appends=%q, want system", got)
	}
}

func TestTitleDerivation(t *testing.T) {
	tests := []struct {
		name  string
		first string
		want  string
	}{
		{name: "short message verbatim", first: "Tell me something", want: "Tell me something"},
		{
			name:  "long message truncated",
			first: strings.Repeat("a", 40),
			want:  strings.Repeat("a", 30) + "...",
		},
		{name: "exactly at limit", first: strings.Repeat("b", 30), want: strings.Repeat("b", 30)},
		{
			name:  "multibyte runes",
			first: strings.Repeat("日", 35),
			want:  strings.Repeat("日", 30) + "...",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess := newSession("DeepSeek", "system")
			sess.AppendUser(tc.first)
			if got := sess.Title(); got != tc.want {
				t.Fatalf("title=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestTitleDerivedOnlyOnce(t *testing.T) {
	sess := newSession("DeepSeek", "system")
	sess.AppendUser("first question")
	sess.AppendAssistant("answer")
	sess.AppendUser("second question")
	if got := sess.Title(); got != "first question" {
		t.Fatalf("title=%q, want %q", got, "first question")
	}
}

func TestTranscriptPairsMessages(t *testing.T) {
	sess := newSession("DeepSeek", "system")
	sess.AppendUser("Hi")
	sess.AppendAssistant("Hello, world!")
	sess.AppendUser("Bye")
	sess.AppendAssistant("Goodbye")

	got := sess.Transcript()
	want := []DisplayMessage{
		{Role: llm.RoleUser, Content: "Hi"},
		{Role: llm.RoleAssistant, Content: "Hello, world!"},
		{Role: llm.RoleUser, Content: "Bye"},
		{Role: llm.RoleAssistant, Content: "Goodbye"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry[%d]=%+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTranscriptDropsUnpairableMessages(t *testing.T) {
	sess := newSession("DeepSeek", "system")
	// An abandoned stream leaves a user turn with no assistant reply.
	sess.AppendUser("abandoned")
	sess.AppendUser("Hi")
	sess.AppendAssistant("Hello")
	sess.AppendUser("trailing")

	got := sess.Transcript()
	want := []DisplayMessage{
		{Role: llm.RoleUser, Content: "Hi"},
		{Role: llm.RoleAssistant, Content: "Hello"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries (%+v), want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry[%d]=%+v, want %+v", i, got[i], want[i])
		}
	}
}
