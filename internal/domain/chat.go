package domain

// ChatRole is the author of a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one prior turn of a conversation.
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// ChatPrompt is everything the conversational model sees for one turn.
type ChatPrompt struct {
	History   []ChatMessage
	Message   string
	Grounding GroundingContext
}

// SystemPrompt instructs the model to stay within the supplied context.
const SystemPrompt = "You are a helpful assistant answering questions about a document the user shared. " +
	"Use the provided context to answer. If the context does not contain the answer, say so instead of guessing."
