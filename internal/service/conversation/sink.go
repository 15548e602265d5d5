package conversation

// Sink renders the conversation. Implementations live in internal/render.
type Sink interface {
	// OpenBubble appends a new, empty bubble for speaker and returns it.
	OpenBubble(speaker Speaker) Bubble
	// SetStatus replaces the status line.
	SetStatus(text string)
	// ScrollToBottom brings the most recent content into view.
	ScrollToBottom()
}

// Bubble is one speech bubble. User bubbles hold transcript fragments;
// bot bubbles accumulate streamed text.
type Bubble interface {
	// AddFragment appends an empty fragment.
	AddFragment()
	// SetLastFragment replaces the text of the last fragment. interim
	// marks it as provisional.
	SetLastFragment(text string, interim bool)
	// AppendText appends to the bubble's text.
	AppendText(text string)
}
