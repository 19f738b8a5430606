package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// Telegram implements Messenger on the Bot API.
type Telegram struct {
	api *tgbotapi.BotAPI
}

// NewTelegram authorizes the bot token.
func NewTelegram(token string, debug bool) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return &Telegram{api: api}, nil
}

// Username returns the bot's @name without the @.
func (t *Telegram) Username() string {
	return t.api.Self.UserName
}

// Updates starts long polling.
func (t *Telegram) Updates(timeout int) (tgbotapi.UpdatesChannel, error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout
	return t.api.GetUpdatesChan(u)
}

// Stop ends long polling; the updates channel is not closed.
func (t *Telegram) Stop() {
	t.api.StopReceivingUpdates()
}

func (t *Telegram) Send(chatID int64, m Message) (int, error) {
	if m.ThreadID != 0 {
		params := url.Values{}
		params.Set("chat_id", strconv.FormatInt(chatID, 10))
		params.Set("text", m.Text)
		return t.requestInThread("sendMessage", params, m.ThreadID, replyMarkup(m.Inline, m.Reply))
	}

	msg := tgbotapi.NewMessage(chatID, m.Text)
	if markup := replyMarkup(m.Inline, m.Reply); markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := t.api.Send(msg)
	return sent.MessageID, err
}

func (t *Telegram) SendPhoto(chatID int64, p Photo) (int, error) {
	if p.Bytes != nil {
		photo := tgbotapi.NewPhotoUpload(chatID, tgbotapi.FileBytes{Name: p.Name, Bytes: p.Bytes})
		photo.Caption = p.Caption
		if len(p.Inline) > 0 {
			photo.ReplyMarkup = inlineMarkup(p.Inline)
		}
		sent, err := t.api.Send(photo)
		return sent.MessageID, err
	}

	if p.ThreadID != 0 {
		params := url.Values{}
		params.Set("chat_id", strconv.FormatInt(chatID, 10))
		params.Set("photo", p.FileID)
		params.Set("caption", p.Caption)
		return t.requestInThread("sendPhoto", params, p.ThreadID, replyMarkup(p.Inline, nil))
	}

	photo := tgbotapi.NewPhotoShare(chatID, p.FileID)
	photo.Caption = p.Caption
	if len(p.Inline) > 0 {
		photo.ReplyMarkup = inlineMarkup(p.Inline)
	}
	sent, err := t.api.Send(photo)
	return sent.MessageID, err
}

// requestInThread posts into a forum topic. The v4 client predates topics, so
// the request is built by hand.
func (t *Telegram) requestInThread(endpoint string, params url.Values, threadID int, markup interface{}) (int, error) {
	params.Set("message_thread_id", strconv.Itoa(threadID))
	if markup != nil {
		data, err := json.Marshal(markup)
		if err != nil {
			return 0, err
		}
		params.Set("reply_markup", string(data))
	}
	resp, err := t.api.MakeRequest(endpoint, params)
	if err != nil {
		return 0, err
	}
	var sent tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return 0, fmt.Errorf("decode %s result: %w", endpoint, err)
	}
	return sent.MessageID, nil
}

func (t *Telegram) SendDocument(chatID int64, d Document) error {
	doc := tgbotapi.NewDocumentUpload(chatID, tgbotapi.FileBytes{Name: d.Name, Bytes: d.Bytes})
	doc.Caption = d.Caption
	_, err := t.api.Send(doc)
	return err
}

func (t *Telegram) EditText(chatID int64, messageID int, m Message) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, m.Text)
	if len(m.Inline) > 0 {
		markup := inlineMarkup(m.Inline)
		edit.ReplyMarkup = &markup
	}
	_, err := t.api.Send(edit)
	return err
}

func (t *Telegram) EditCaption(chatID int64, messageID int, caption string) error {
	_, err := t.api.Send(tgbotapi.NewEditMessageCaption(chatID, messageID, caption))
	return err
}

func (t *Telegram) Delete(chatID int64, messageID int) error {
	_, err := t.api.DeleteMessage(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func (t *Telegram) AnswerCallback(callbackID, text string, alert bool) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	if alert {
		callback = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	_, err := t.api.AnswerCallbackQuery(callback)
	return err
}

func (t *Telegram) CreateForumTopic(chatID int64, name string) (int, error) {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("name", name)
	resp, err := t.api.MakeRequest("createForumTopic", params)
	if err != nil {
		return 0, err
	}
	var topic struct {
		MessageThreadID int `json:"message_thread_id"`
	}
	if err := json.Unmarshal(resp.Result, &topic); err != nil {
		return 0, fmt.Errorf("decode createForumTopic result: %w", err)
	}
	return topic.MessageThreadID, nil
}

func (t *Telegram) FileURL(fileID string) (string, error) {
	return t.api.GetFileDirectURL(fileID)
}

func inlineMarkup(kb InlineKeyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, r := range kb {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			if b.URL != "" {
				row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func replyKeyboardMarkup(kb ReplyKeyboard) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb))
	for _, r := range kb {
		row := make([]tgbotapi.KeyboardButton, 0, len(r))
		for _, text := range r {
			row = append(row, tgbotapi.NewKeyboardButton(text))
		}
		rows = append(rows, row)
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	return markup
}

func replyMarkup(inline InlineKeyboard, reply ReplyKeyboard) interface{} {
	switch {
	case len(inline) > 0:
		return inlineMarkup(inline)
	case len(reply) > 0:
		return replyKeyboardMarkup(reply)
	}
	return nil
}

// HandleUpdate converts a Bot API update and routes it. Only private chats are
// served, except for button presses, which also arrive from the admin group.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cq := update.CallbackQuery; cq != nil && cq.Message != nil && cq.From != nil {
		b.HandleCallback(ctx, Callback{
			Sender:    senderOf(cq.From),
			QueryID:   cq.ID,
			ChatID:    cq.Message.Chat.ID,
			MessageID: cq.Message.MessageID,
			Data:      cq.Data,
		})
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	switch {
	case msg.Photo != nil && len(*msg.Photo) > 0:
		sizes := *msg.Photo
		b.HandlePhoto(ctx, PhotoMessage{
			Sender: senderOf(msg.From),
			ChatID: msg.Chat.ID,
			FileID: sizes[len(sizes)-1].FileID,
		})
	case msg.Text != "":
		b.HandleText(ctx, TextMessage{
			Sender: senderOf(msg.From),
			ChatID: msg.Chat.ID,
			Text:   msg.Text,
		})
	}
}

func senderOf(u *tgbotapi.User) Sender {
	return Sender{ID: int64(u.ID), FirstName: u.FirstName, LastName: u.LastName, Username: u.UserName}
}
