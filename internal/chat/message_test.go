package chat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/compresr/chat-recap/internal/chat"
)

var ingested = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// =============================================================================
// NORMALIZE TESTS
// =============================================================================

func TestNormalize_Defaults(t *testing.T) {
	got := chat.Message{AuthorID: "  ", ImageCount: -2}.Normalize(ingested)

	assert.Equal(t, ingested, got.Timestamp)
	assert.Equal(t, chat.UnknownAuthorID, got.AuthorID)
	assert.Equal(t, chat.UnknownAuthorName, got.AuthorName)
	assert.Equal(t, chat.KindText, got.Kind)
	assert.Zero(t, got.ImageCount)
}

func TestNormalize_Kinds(t *testing.T) {
	tests := []struct {
		in   chat.Kind
		want chat.Kind
	}{
		{"", chat.KindText},
		{"sticker", chat.KindText},
		{chat.KindImage, chat.KindImage},
		{chat.KindMixed, chat.KindMixed},
		{chat.KindRecalled, chat.KindRecalled},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got := chat.Message{Timestamp: ingested, Kind: tt.in}.Normalize(ingested)
			assert.Equal(t, tt.want, got.Kind)
		})
	}

	assert.False(t, chat.IsValidKind("sticker"))
	assert.True(t, chat.IsValidKind(chat.KindVideo))
}

func TestNormalize_DoesNotMutate(t *testing.T) {
	m := chat.Message{Kind: "sticker"}

	_ = m.Normalize(ingested)

	assert.Equal(t, chat.Kind("sticker"), m.Kind)
	assert.True(t, m.Timestamp.IsZero())
}
