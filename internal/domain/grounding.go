package domain

import "strings"

// GroundingKind tags what a GroundingContext carries.
type GroundingKind string

const (
	// GroundingRetrieved holds passages retrieved for the current message.
	GroundingRetrieved GroundingKind = "retrieved"
	// GroundingImage passes raw image bytes to a multimodal model.
	GroundingImage GroundingKind = "image"
	// GroundingURL passes a link for the model to read itself.
	GroundingURL GroundingKind = "url"
	// GroundingError carries a chat-facing failure message.
	GroundingError GroundingKind = "error"
)

// Chat-facing prefixes for unusable content. The chat UI matches on these.
const (
	DocumentErrorPrefix = "I couldn't process this document: "
	VideoErrorPrefix    = "I couldn't process this YouTube video: "
)

// GroundingContext is the per-message context handed to the conversational model.
type GroundingContext struct {
	Kind     GroundingKind
	Text     string
	URL      string
	Image    []byte
	MimeType string
	Message  string
}

func RetrievedContext(text string) GroundingContext {
	return GroundingContext{Kind: GroundingRetrieved, Text: text}
}

func ImageContext(data []byte, mimeType string) GroundingContext {
	return GroundingContext{Kind: GroundingImage, Image: data, MimeType: mimeType}
}

func URLContext(url string) GroundingContext {
	return GroundingContext{Kind: GroundingURL, URL: url}
}

// ErrorContext builds the sentinel message for docType from a failure reason.
func ErrorContext(docType DocumentType, reason string) GroundingContext {
	prefix := DocumentErrorPrefix
	if docType == DocumentTypeYouTube {
		prefix = VideoErrorPrefix
	}
	return GroundingContext{Kind: GroundingError, Message: prefix + reason}
}

// IsError reports whether the context is a failure message.
func (g GroundingContext) IsError() bool {
	return g.Kind == GroundingError
}

// PromptText renders the textual part of the context for a prompt.
func (g GroundingContext) PromptText() string {
	switch g.Kind {
	case GroundingRetrieved:
		return g.Text
	case GroundingURL:
		return "Source URL: " + g.URL
	case GroundingError:
		return g.Message
	default:
		return ""
	}
}

// IsErrorSentinel reports whether s starts with one of the chat-facing prefixes.
func IsErrorSentinel(s string) bool {
	return strings.HasPrefix(s, DocumentErrorPrefix) || strings.HasPrefix(s, VideoErrorPrefix)
}
