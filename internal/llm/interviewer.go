package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chadiek/interview-agent/internal/interview"
)

// generateTimeout bounds every model call so a stalled generation cannot
// leave the session stuck in processing. On expiry the fallback text is used.
const generateTimeout = 20 * time.Second

// Interviewer turns interview context into interviewer utterances. Model
// failures never escape: every method returns usable spoken text.
type Interviewer struct {
	llm     LLM
	timeout time.Duration
}

func NewInterviewer(llm LLM) *Interviewer {
	return &Interviewer{llm: llm, timeout: generateTimeout}
}

// Greeting produces the opening utterance for the session.
func (iv *Interviewer) Greeting(ctx context.Context, cfg interview.Config) string {
	prompt := buildGreetingPrompt(cfg)
	text, err := iv.generate(ctx, prompt)
	if err != nil {
		log.Printf("interviewer: greeting generation failed, using fallback: %v", err)
		return fallbackGreeting(cfg)
	}
	return text
}

// NextUtterance produces the interviewer's reply to the candidate's latest
// utterance. When next is non-nil the reply must work toward asking that
// question; when nil the prepared questions are exhausted and the reply is a
// follow-up on what the candidate just said.
func (iv *Interviewer) NextUtterance(ctx context.Context, cfg interview.Config, history []interview.Message, userText string, next *interview.Question) string {
	prompt := buildResponsePrompt(cfg, history, userText, next)
	text, err := iv.generate(ctx, prompt)
	if err != nil {
		log.Printf("interviewer: response generation failed, using fallback: %v", err)
		return fallbackResponse(cfg, next)
	}
	return text
}

func (iv *Interviewer) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, iv.timeout)
	defer cancel()
	text, err := iv.llm.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text = sanitizeSpoken(text)
	if text == "" {
		return "", fmt.Errorf("interviewer: empty generation")
	}
	return text, nil
}

func buildGreetingPrompt(cfg interview.Config) string {
	var b strings.Builder
	writeContext(&b, cfg)
	b.WriteString("Greet the candidate")
	if name := strings.TrimSpace(cfg.CandidateName); name != "" {
		fmt.Fprintf(&b, " by name (%s)", name)
	}
	b.WriteString(", briefly set expectations for the interview, and invite them to introduce themselves. Two or three sentences.")
	return b.String()
}

func buildResponsePrompt(cfg interview.Config, history []interview.Message, userText string, next *interview.Question) string {
	var b strings.Builder
	writeContext(&b, cfg)
	b.WriteString("Conversation so far:\n")
	for _, m := range history {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(string(m.Role)))
		b.WriteString("] ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("[USER] ")
	b.WriteString(userText)
	b.WriteString("\n\n")
	if next != nil {
		fmt.Fprintf(&b, "Briefly acknowledge the candidate's answer, then ask this question naturally: %q.", next.Text)
	} else {
		b.WriteString("All prepared questions are done. Ask one concise follow-up question about what the candidate just said. Do not repeat an earlier question.")
	}
	b.WriteString(" Keep it to at most three spoken sentences.")
	return b.String()
}

func writeContext(b *strings.Builder, cfg interview.Config) {
	fmt.Fprintf(b, "You are conducting a %s interview for the %s position", orDefault(cfg.Type, "mock"), orDefault(cfg.Position, "open"))
	if cfg.Company != "" {
		fmt.Fprintf(b, " at %s", cfg.Company)
	}
	if cfg.Difficulty != "" {
		fmt.Fprintf(b, " (difficulty: %s)", cfg.Difficulty)
	}
	b.WriteString(".\n")
	b.WriteString("Your words are spoken aloud by a voice synthesizer: plain sentences only, no lists, no formatting characters, no notes to yourself.\n\n")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func fallbackGreeting(cfg interview.Config) string {
	name := strings.TrimSpace(cfg.CandidateName)
	if name != "" {
		name = " " + name
	}
	return fmt.Sprintf("Hello%s, and welcome. Thanks for joining this %s interview for the %s position. To get us started, please tell me a little about yourself.",
		name, orDefault(cfg.Type, "mock"), orDefault(cfg.Position, "open"))
}

func fallbackResponse(cfg interview.Config, next *interview.Question) string {
	if next != nil {
		return fmt.Sprintf("Thank you, that's helpful. Let's move on: %s", next.Text)
	}
	return fmt.Sprintf("Thanks for sharing that. Could you go a bit deeper on how that experience applies to the %s role?",
		orDefault(cfg.Position, "open"))
}

// sanitizeSpoken strips structural artifacts that sound wrong when read
// aloud: bullet markers, list numbering, markdown emphasis, stray quotes.
func sanitizeSpoken(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•>#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	joined := strings.Join(out, " ")
	joined = strings.ReplaceAll(joined, "**", "")
	joined = strings.ReplaceAll(joined, "`", "")
	return strings.TrimSpace(joined)
}
