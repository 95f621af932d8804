package interview

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/vzynszice/voice-interview-system/internal/session"
	"github.com/vzynszice/voice-interview-system/pkg/provider/llm"
)

// DefaultSystemPrompt is the interviewer persona. The {placeholders} are
// filled from the job, the candidate and the current phase.
const DefaultSystemPrompt = `You are an experienced HR professional conducting a job interview.
You are interviewing for the position of {position} at {company}.
The candidate's name is {candidate_name}.

Important instructions:
1. Ask ONE question at a time
2. Keep questions relevant to the job requirements
3. Be professional but friendly
4. Listen actively to responses
5. Ask follow-up questions when appropriate

Job Requirements:
{job_requirements}

Candidate Background:
{candidate_summary}

Current interview phase: {phase}`

const (
	// charsPerToken is the heuristic ratio used for token estimation. Common
	// tokenizers average roughly 4 characters per token for English text.
	charsPerToken = 4

	defaultMaxHistoryTokens = 3000
	defaultTemperature      = 0.7
	defaultMaxTokens        = 200
)

var phaseInstructions = map[string]string{
	PhaseWarmup: "Start with a warm, welcoming question to make the candidate comfortable. " +
		"Ask about their background or what interests them about this role. " +
		"Keep it conversational and friendly.",
	PhaseTechnical: "Ask a technical question related to the job requirements. " +
		"Focus on their practical experience with the required technologies. " +
		"Ask for specific examples from their past work.",
	PhaseBehavioral: "Ask a behavioral question using the STAR method. " +
		"Focus on situations where they demonstrated key soft skills like " +
		"teamwork, leadership, or problem-solving.",
	PhaseSituational: "Present a hypothetical scenario relevant to this role. " +
		"Ask how they would handle the situation and why. " +
		"The scenario should test their decision-making process.",
	PhaseClosing: "We're concluding the interview. Ask if they have any questions " +
		"about the role, the company, or next steps.",
}

// Option configures an [Interviewer].
type Option func(*Interviewer)

// WithSystemPrompt replaces [DefaultSystemPrompt].
func WithSystemPrompt(tmpl string) Option {
	return func(iv *Interviewer) {
		if tmpl != "" {
			iv.template = tmpl
		}
	}
}

// WithMaxHistoryTokens caps the estimated size of the prior-turn history sent
// with each request. The oldest exchanges are dropped first.
func WithMaxHistoryTokens(n int) Option {
	return func(iv *Interviewer) { iv.maxHistoryTokens = n }
}

// WithSampling sets temperature and completion length of generated questions.
func WithSampling(temperature float64, maxTokens int) Option {
	return func(iv *Interviewer) {
		iv.temperature = temperature
		iv.maxTokens = maxTokens
	}
}

// Interviewer turns the session history into generation requests following a
// [Plan]. It is stateless apart from its configuration and safe for
// concurrent use.
type Interviewer struct {
	plan      *Plan
	job       Job
	candidate Candidate
	lang      string

	template         string
	maxHistoryTokens int
	temperature      float64
	maxTokens        int
}

// New returns an interviewer that generates questions in lang (the target
// language of the session).
func New(plan *Plan, job Job, cand Candidate, lang string, opts ...Option) *Interviewer {
	if plan == nil {
		plan = DefaultPlan()
	}
	iv := &Interviewer{
		plan:             plan,
		job:              job,
		candidate:        cand,
		lang:             lang,
		template:         DefaultSystemPrompt,
		maxHistoryTokens: defaultMaxHistoryTokens,
		temperature:      defaultTemperature,
		maxTokens:        defaultMaxTokens,
	}
	for _, o := range opts {
		o(iv)
	}
	return iv
}

// Plan returns the phase plan.
func (iv *Interviewer) Plan() *Plan { return iv.plan }

// Job returns the position being interviewed for.
func (iv *Interviewer) Job() Job { return iv.job }

// Candidate returns the interviewee.
func (iv *Interviewer) Candidate() Candidate { return iv.candidate }

// Answered counts the turns that produced a reply, which is the number of
// plan questions already asked.
func Answered(turns []session.Turn) int {
	n := 0
	for _, t := range turns {
		if t.Status == session.TurnSucceeded {
			n++
		}
	}
	return n
}

// Phase returns the phase of the next question, or "" when the plan is
// exhausted.
func (iv *Interviewer) Phase(history []session.Turn) string {
	p, _ := iv.plan.PhaseAt(Answered(history))
	return p
}

// Finished reports whether the candidate has answered the last question of
// the plan.
func (iv *Interviewer) Finished(turns []session.Turn) bool {
	return Answered(turns) > iv.plan.Total()
}

// Prompt builds the request for the next question given the completed turns
// and the candidate's current answer in the target language. ok is false when
// every question of the plan has been asked, in which case no reply should be
// generated.
func (iv *Interviewer) Prompt(history []session.Turn, answer string) (req llm.CompletionRequest, ok bool) {
	phase, ok := iv.plan.PhaseAt(Answered(history))
	if !ok {
		return llm.CompletionRequest{}, false
	}

	msgs := iv.history(history)
	instruction := phaseInstructions[phase]
	if instruction == "" {
		instruction = "Ask a relevant follow-up question."
	}
	msgs = append(msgs, llm.Message{
		Role: llm.RoleUser,
		Content: strings.TrimSpace(answer) + "\n\n" + instruction +
			"\n\nIMPORTANT: Ask only ONE clear, specific question. Do not ask multiple questions at once.",
	})

	return llm.CompletionRequest{
		SystemPrompt: iv.systemPrompt(phase),
		Messages:     msgs,
		Temperature:  iv.temperature,
		MaxTokens:    iv.maxTokens,
		Language:     iv.lang,
		Phase:        phase,
	}, true
}

// Clean normalises a generated question: surrounding whitespace and quote
// characters are removed and a trailing question mark is ensured.
func (iv *Interviewer) Clean(reply string) string { return NormalizeQuestion(reply) }

func (iv *Interviewer) systemPrompt(phase string) string {
	r := strings.NewReplacer(
		"{position}", orDefault(iv.job.Title, "Unknown Position"),
		"{company}", orDefault(iv.job.Company, "Unknown Company"),
		"{candidate_name}", orDefault(iv.candidate.Name, "Candidate"),
		"{job_requirements}", iv.job.Requirements.Summary(),
		"{candidate_summary}", iv.candidate.Summary(),
		"{phase}", phase,
	)
	return r.Replace(iv.template) + "\n\nAlways reply in " + languageName(iv.lang) + "."
}

// history converts successful prior turns into user/assistant pairs, oldest
// first, dropping the oldest pairs until the estimate fits the budget.
func (iv *Interviewer) history(turns []session.Turn) []llm.Message {
	var pairs [][2]llm.Message
	for _, t := range turns {
		if t.Status != session.TurnSucceeded || t.Response == "" {
			continue
		}
		answer := t.Translated
		if answer == "" {
			answer = t.Transcript
		}
		pairs = append(pairs, [2]llm.Message{
			{Role: llm.RoleUser, Content: answer},
			{Role: llm.RoleAssistant, Content: t.Response},
		})
	}

	total := 0
	for _, p := range pairs {
		total += estimateTokens(p[0]) + estimateTokens(p[1])
	}
	for len(pairs) > 0 && iv.maxHistoryTokens > 0 && total > iv.maxHistoryTokens {
		total -= estimateTokens(pairs[0][0]) + estimateTokens(pairs[0][1])
		pairs = pairs[1:]
	}

	msgs := make([]llm.Message, 0, 2*len(pairs)+1)
	for _, p := range pairs {
		msgs = append(msgs, p[0], p[1])
	}
	return msgs
}

// estimateTokens returns a rough token count for a single message using the
// 1-token-per-4-characters heuristic.
func estimateTokens(m llm.Message) int {
	return (len(m.Content) + len(m.Role)) / charsPerToken
}

// NormalizeQuestion strips whitespace and quote characters and makes sure
// the text ends with a question mark.
func NormalizeQuestion(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(`"`, "", "“", "", "”", "", "«", "", "»", "").Replace(s)
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, "?") {
		return s
	}
	return strings.TrimRight(s, ".!:; ") + "?"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func languageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Languages().Name(t); name != "" {
		return name
	}
	return tag
}
