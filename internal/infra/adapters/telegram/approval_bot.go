package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
)

var _ adapter.ApprovalChannel = (*ApprovalBot)(nil)

// ApprovalBot posts job summaries with approve/reject buttons to a fixed
// operator chat and routes button presses back into the decision handler.
// Editing works by replying to the approval message with new proposal text.
type ApprovalBot struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	handler adapter.DecisionHandler
	workers int
	log     zerolog.Logger

	mu sync.Mutex
	// message id of each posted approval -> its correlation ref, so a
	// reply can be matched back to the job it edits
	posted map[int]string

	cancelPolling context.CancelFunc
}

func NewApprovalBot(token string, chatID int64, handler adapter.DecisionHandler, workers int, log zerolog.Logger) (*ApprovalBot, error) {
	if handler == nil {
		return nil, errors.New("decision handler is nil")
	}
	if chatID == 0 {
		return nil, errors.New("approval chat id is zero")
	}
	if workers <= 0 {
		workers = 2
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &ApprovalBot{
		bot:     bot,
		chatID:  chatID,
		handler: handler,
		workers: workers,
		log:     log,
		posted:  make(map[int]string),
	}, nil
}

func (a *ApprovalBot) RequestApproval(ctx context.Context, job *model.JobRecord) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	ref := uuid.NewString()
	msg := tgbotapi.NewMessage(a.chatID, formatApprovalSummary(job))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", "appr:approve:"+ref),
			tgbotapi.NewInlineKeyboardButtonData("❌ Reject", "appr:reject:"+ref),
		),
	)

	sent, err := a.bot.Send(msg)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.posted[sent.MessageID] = ref
	a.mu.Unlock()
	return ref, nil
}

// StartPolling consumes bot updates until ctx is cancelled. Updates fan out
// to a small worker pool so one slow decision does not stall the rest.
func (a *ApprovalBot) StartPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := a.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	a.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case up := <-updateChan:
					if err := a.handleUpdate(ctx, up); err != nil {
						a.log.Error().Err(err).Msg("approval update failed")
					}
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			close(updateChan)
			wg.Wait()
			return ctx.Err()
		case up := <-updates:
			updateChan <- up
		}
	}
}

func (a *ApprovalBot) StopPolling() {
	if a.cancelPolling != nil {
		a.cancelPolling()
	}
}

func (a *ApprovalBot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return a.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message != nil && update.Message.ReplyToMessage != nil {
		return a.handleEditReply(ctx, update.Message)
	}
	return nil
}

func (a *ApprovalBot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	decision, ref, ok := parseApprovalCallback(q.Data)
	if !ok {
		_, err := a.bot.Request(tgbotapi.NewCallback(q.ID, ""))
		return err
	}

	ack := "Recorded."
	err := a.handler.OnDecision(ctx, ref, decision, "")
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// stale button press on an already-decided job
		a.log.Warn().Str("ref", ref).Str("decision", string(decision)).Msg("stale approval decision")
		ack = "This job was already decided."
		err = nil
	case err != nil:
		ack = "Failed: " + err.Error()
	}

	if _, reqErr := a.bot.Request(tgbotapi.NewCallback(q.ID, ack)); reqErr != nil {
		return reqErr
	}
	return err
}

func (a *ApprovalBot) handleEditReply(ctx context.Context, msg *tgbotapi.Message) error {
	a.mu.Lock()
	ref, ok := a.posted[msg.ReplyToMessage.MessageID]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return a.reply(msg.Chat.ID, "Reply with the edited proposal text.")
	}
	if err := a.handler.OnDecision(ctx, ref, adapter.DecisionEdit, text); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return a.reply(msg.Chat.ID, "This job was already decided.")
		}
		return err
	}
	return a.reply(msg.Chat.ID, "Proposal updated. Approve when ready.")
}

func (a *ApprovalBot) reply(chatID int64, text string) error {
	_, err := a.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func parseApprovalCallback(data string) (adapter.Decision, string, bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 || parts[0] != "appr" || parts[2] == "" {
		return "", "", false
	}
	switch parts[1] {
	case "approve":
		return adapter.DecisionApprove, parts[2], true
	case "reject":
		return adapter.DecisionReject, parts[2], true
	default:
		return "", "", false
	}
}

func formatApprovalSummary(job *model.JobRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s\n", job.Title)
	if job.FitScore != nil {
		fmt.Fprintf(&b, "Fit score: %d\n", *job.FitScore)
	}
	if job.PricingProposed != nil {
		fmt.Fprintf(&b, "Proposed price: $%.0f\n", *job.PricingProposed)
	}
	if job.URL != "" {
		fmt.Fprintf(&b, "Posting: %s\n", job.URL)
	}
	if job.ProposalDocURL != "" {
		fmt.Fprintf(&b, "Proposal doc: %s\n", job.ProposalDocURL)
	}
	if job.VideoURL != "" {
		fmt.Fprintf(&b, "Video: %s\n", job.VideoURL)
	}
	if job.PDFURL != "" {
		fmt.Fprintf(&b, "PDF: %s\n", job.PDFURL)
	}
	if job.BoostDecision != nil && *job.BoostDecision {
		b.WriteString("Boost: recommended\n")
	}
	if job.ProposalText != "" {
		text := job.ProposalText
		if len(text) > 1500 {
			text = text[:1500] + "…"
		}
		b.WriteString("\n")
		b.WriteString(text)
	}
	b.WriteString("\n\nReply to this message to edit the proposal.")
	return b.String()
}
