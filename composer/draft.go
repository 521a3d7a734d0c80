package composer

import "strings"

const (
	subjectPrefix  = "Subject: "
	draftSeparator = "\n\n"
)

// Email is a subject and body pair as edited in the composer
type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// IsEmpty reports whether both subject and body are blank
func (e Email) IsEmpty() bool {
	return strings.TrimSpace(e.Subject) == "" && strings.TrimSpace(e.Body) == ""
}

// EncodeDraft renders the draft storage format "Subject: <s>\n\n<body>"
func EncodeDraft(e Email) string {
	return subjectPrefix + e.Subject + draftSeparator + e.Body
}

// DecodeDraft parses the draft storage format. The subject is the text
// after the "Subject: " prefix on the first line and the body is everything
// after the first blank line. Content without the prefix is all body.
func DecodeDraft(content string) Email {
	if !strings.HasPrefix(content, subjectPrefix) {
		return Email{Body: content}
	}

	rest := content[len(subjectPrefix):]
	head, body, found := strings.Cut(rest, draftSeparator)
	if !found {
		// Subject only, possibly with trailing lines and no blank separator
		subject, tail, _ := strings.Cut(rest, "\n")
		return Email{Subject: subject, Body: tail}
	}

	subject, extra, multi := strings.Cut(head, "\n")
	if multi {
		// Lines between the subject and the blank line belong to the body
		body = extra + draftSeparator + body
	}
	return Email{Subject: subject, Body: body}
}
