package bot

// Button is an inline button. Exactly one of Data and URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// InlineKeyboard is a grid of inline buttons attached to a message.
type InlineKeyboard [][]Button

// ReplyKeyboard is a grid of reply buttons shown below the input field.
type ReplyKeyboard [][]string

// Message is an outgoing text message.
type Message struct {
	Text     string
	Inline   InlineKeyboard
	Reply    ReplyKeyboard
	ThreadID int // forum topic, 0 for the main thread
}

// Photo is an outgoing photo. FileID re-sends an uploaded image; Bytes uploads a new one.
type Photo struct {
	FileID   string
	Name     string
	Bytes    []byte
	Caption  string
	Inline   InlineKeyboard
	ThreadID int
}

// Document is an outgoing file.
type Document struct {
	Name    string
	Bytes   []byte
	Caption string
}

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	Send(chatID int64, m Message) (int, error)
	SendPhoto(chatID int64, p Photo) (int, error)
	SendDocument(chatID int64, d Document) error
	EditText(chatID int64, messageID int, m Message) error
	// EditCaption replaces a photo caption and drops its inline keyboard.
	EditCaption(chatID int64, messageID int, caption string) error
	Delete(chatID int64, messageID int) error
	AnswerCallback(callbackID, text string, alert bool) error
	CreateForumTopic(chatID int64, name string) (int, error)
	FileURL(fileID string) (string, error)
}

// Sender identifies the user behind an inbound update.
type Sender struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// TextMessage is an inbound text.
type TextMessage struct {
	Sender
	ChatID int64
	Text   string
}

// Callback is an inbound inline button press.
type Callback struct {
	Sender
	QueryID   string
	ChatID    int64
	MessageID int
	Data      string
}

// PhotoMessage is an inbound photo; FileID refers to the largest size.
type PhotoMessage struct {
	Sender
	ChatID int64
	FileID string
}
