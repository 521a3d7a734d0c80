package composer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDraft(t *testing.T) {
	assert.Equal(t, "Subject: Hi\n\nHello there", EncodeDraft(Email{Subject: "Hi", Body: "Hello there"}))
	assert.Equal(t, "Subject: \n\n", EncodeDraft(Email{}))
}

func TestDecodeDraft(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Email
	}{
		{name: "subject and body", content: "Subject: A\n\nB", want: Email{Subject: "A", Body: "B"}},
		{name: "multiline body", content: "Subject: A\n\nB\nC\n\nD", want: Email{Subject: "A", Body: "B\nC\n\nD"}},
		{name: "empty body", content: "Subject: A\n\n", want: Email{Subject: "A"}},
		{name: "empty subject", content: "Subject: \n\nB", want: Email{Body: "B"}},
		{name: "subject only", content: "Subject: A", want: Email{Subject: "A"}},
		{name: "no prefix", content: "just a body\n\nmore", want: Email{Body: "just a body\n\nmore"}},
		{name: "lines before blank line", content: "Subject: A\nB\n\nC", want: Email{Subject: "A", Body: "B\n\nC"}},
		{name: "empty", content: "", want: Email{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeDraft(tt.content))
		})
	}
}

func TestDraftRoundTrip(t *testing.T) {
	emails := []Email{
		{Subject: "A", Body: "B\nC"},
		{Subject: "Quick question", Body: "Hi Ada,\n\nLoved your talk.\n\nBest"},
		{Subject: "Re: intro", Body: "Subject lines in the body are fine: Subject: x"},
	}

	for _, e := range emails {
		assert.Equal(t, e, DecodeDraft(EncodeDraft(e)))
		assert.Equal(t, EncodeDraft(e), EncodeDraft(DecodeDraft(EncodeDraft(e))))
	}
}

func TestEmailIsEmpty(t *testing.T) {
	assert.True(t, Email{}.IsEmpty())
	assert.True(t, Email{Subject: "  ", Body: "\n"}.IsEmpty())
	assert.False(t, Email{Body: "x"}.IsEmpty())
}
