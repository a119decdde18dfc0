package validation

import (
	"strings"
	"testing"

	"pulse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"trimmed", "  Hello  ", "Hello", false},
		{"too short", "ab", "", true},
		{"blank", "    ", "", true},
		{"max length", strings.Repeat("a", TitleMaxLen), strings.Repeat("a", TitleMaxLen), false},
		{"too long", strings.Repeat("a", TitleMaxLen+1), "", true},
		{"multibyte counts runes", "ééé", "ééé", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Title(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	_, err := Message("too short")
	assert.Error(t, err)

	got, err := Message("  long enough message  ")
	require.NoError(t, err)
	assert.Equal(t, "long enough message", got)

	_, err = Message(strings.Repeat("x", MessageMaxLen+1))
	assert.Error(t, err)
}

func TestComment(t *testing.T) {
	t.Parallel()

	_, err := Comment("   ")
	assert.Error(t, err)

	got, err := Comment(" ok ")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	_, err = Comment(strings.Repeat("c", CommentMaxLen+1))
	assert.Error(t, err)
}

func TestTopics(t *testing.T) {
	t.Parallel()

	got, err := Topics([]string{"Tech", "Sport", "Tech"})
	require.NoError(t, err)
	assert.Equal(t, []models.Topic{models.TopicTech, models.TopicSport}, got)

	_, err = Topics(nil)
	assert.Error(t, err)

	_, err = Topics([]string{"Tech", "Cooking"})
	assert.Error(t, err)

	_, err = Topic("tech")
	assert.Error(t, err, "topics are case sensitive")
}

func TestStatus(t *testing.T) {
	t.Parallel()

	s, err := Status("Expired")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusExpired, s)

	_, err = Status("Dead")
	assert.Error(t, err)
}

func TestExpirationMinutes(t *testing.T) {
	t.Parallel()

	assert.Error(t, ExpirationMinutes(0))
	assert.Error(t, ExpirationMinutes(-5))
	assert.NoError(t, ExpirationMinutes(1))
	assert.Error(t, ExpirationMinutes(MaxExpirationMinutes+1))
}
