package notify

import (
	"context"
	"fmt"
	"strings"

	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/records"
	"interview-insights-go/internal/types"
)

const helpText = `<b>면담 봇 명령어</b>
/질문 이름 - 다음 면담 추천 질문
/요약 이름 - 최근 면담 요약
/목록 - 활성 대상자 목록
/최근 - 최근 면담 기록`

// Directory is the read side of the record store the bot answers from.
type Directory interface {
	ListSubjects(ctx context.Context, f records.SubjectFilter) ([]types.Subject, error)
	ListSessions(ctx context.Context, f records.SessionFilter) ([]types.Session, error)
}

// Update is the subset of a Telegram webhook update the bot reads.
type Update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Bot answers slash commands sent to the webhook.
type Bot struct {
	sender      *Client
	dir         Directory
	recentLimit int
	log         *logger.Logger
}

func NewBot(sender *Client, dir Directory, recentLimit int, log *logger.Logger) *Bot {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &Bot{sender: sender, dir: dir, recentLimit: recentLimit, log: log.Component("telegram-bot")}
}

// Handle replies to one update. Updates without a text message are ignored.
func (b *Bot) Handle(ctx context.Context, u Update) error {
	if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
		return nil
	}
	reply := b.Reply(ctx, u.Message.Text)
	return b.sender.Send(ctx, fmt.Sprint(u.Message.Chat.ID), reply)
}

// Reply computes the answer to a command line.
func (b *Bot) Reply(ctx context.Context, text string) string {
	cmd, arg := parseCommand(text)
	switch cmd {
	case "/start", "/help":
		return helpText
	case "/질문":
		return b.nextQuestions(ctx, arg)
	case "/요약":
		return b.latestSummary(ctx, arg)
	case "/목록":
		return b.activeSubjects(ctx)
	case "/최근":
		return b.recentSessions(ctx)
	default:
		return "알 수 없는 명령어입니다.\n\n" + helpText
	}
}

// parseCommand splits "/cmd@bot arg..." into "/cmd" and the trimmed argument.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	cmd, arg, _ := strings.Cut(text, " ")
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return cmd, strings.TrimSpace(arg)
}

func (b *Bot) findSubject(ctx context.Context, name string) (types.Subject, string) {
	if name == "" {
		return types.Subject{}, "이름을 함께 입력해 주세요. 예: /질문 홍길동"
	}
	subjects, err := b.dir.ListSubjects(ctx, records.SubjectFilter{})
	if err != nil {
		b.log.WithError(err).Warn("subject lookup failed")
		return types.Subject{}, "대상자 목록을 불러오지 못했습니다."
	}
	for _, s := range subjects {
		if s.Name == name {
			return s, ""
		}
	}
	for _, s := range subjects {
		if strings.Contains(s.Name, name) {
			return s, ""
		}
	}
	return types.Subject{}, fmt.Sprintf("'%s' 대상자를 찾을 수 없습니다.", esc(name))
}

func (b *Bot) nextQuestions(ctx context.Context, name string) string {
	s, msg := b.findSubject(ctx, name)
	if msg != "" {
		return msg
	}
	if strings.TrimSpace(s.NextQuestions) == "" {
		return fmt.Sprintf("<b>%s</b>님에게 저장된 다음 질문이 없습니다.", esc(s.Name))
	}
	return fmt.Sprintf("<b>%s</b> 다음 면담 추천 질문\n\n%s", esc(s.Name), esc(s.NextQuestions))
}

func (b *Bot) latestSummary(ctx context.Context, name string) string {
	s, msg := b.findSubject(ctx, name)
	if msg != "" {
		return msg
	}
	sessions, err := b.dir.ListSessions(ctx, records.SessionFilter{SubjectID: s.ID, Limit: 1})
	if err != nil {
		b.log.WithError(err).Warn("session lookup failed")
		return "면담 기록을 불러오지 못했습니다."
	}
	if len(sessions) == 0 {
		return fmt.Sprintf("<b>%s</b>님의 면담 기록이 없습니다.", esc(s.Name))
	}
	last := sessions[0]
	return fmt.Sprintf("<b>%s</b> 최근 면담 (%s)\n\n%s", esc(s.Name), esc(last.Date), esc(clip(last.Summary, 1500)))
}

func (b *Bot) activeSubjects(ctx context.Context) string {
	subjects, err := b.dir.ListSubjects(ctx, records.SubjectFilter{ActiveOnly: true})
	if err != nil {
		b.log.WithError(err).Warn("subject list failed")
		return "대상자 목록을 불러오지 못했습니다."
	}
	if len(subjects) == 0 {
		return "등록된 활성 대상자가 없습니다."
	}
	var staff, clients []string
	for _, s := range subjects {
		line := "• " + esc(s.Name)
		if s.Affiliation != "" {
			line += " (" + esc(s.Affiliation) + ")"
		}
		if s.Category == types.CategoryClient {
			clients = append(clients, line)
		} else {
			staff = append(staff, line)
		}
	}
	var out strings.Builder
	if len(staff) > 0 {
		fmt.Fprintf(&out, "<b>%s</b>\n%s\n", types.CategoryStaff, strings.Join(staff, "\n"))
	}
	if len(clients) > 0 {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		fmt.Fprintf(&out, "<b>%s</b>\n%s\n", types.CategoryClient, strings.Join(clients, "\n"))
	}
	return strings.TrimRight(out.String(), "\n")
}

func (b *Bot) recentSessions(ctx context.Context) string {
	sessions, err := b.dir.ListSessions(ctx, records.SessionFilter{Limit: b.recentLimit})
	if err != nil {
		b.log.WithError(err).Warn("recent sessions failed")
		return "면담 기록을 불러오지 못했습니다."
	}
	if len(sessions) == 0 {
		return "최근 면담 기록이 없습니다."
	}
	lines := make([]string, 0, len(sessions)+1)
	lines = append(lines, "<b>최근 면담</b>")
	for _, s := range sessions {
		lines = append(lines, fmt.Sprintf("• %s %s", esc(s.Date), esc(s.SubjectName)))
	}
	return strings.Join(lines, "\n")
}
