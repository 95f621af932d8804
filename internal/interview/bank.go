package interview

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/vzynszice/voice-interview-system/pkg/provider/llm"
)

// BankName is the provider name of the question bank in rankings.
const BankName = "questionbank"

var _ llm.Provider = (*Bank)(nil)

// bankQuestions holds canned questions per language and phase.
var bankQuestions = map[string]map[string][]string{
	"tr": {
		PhaseWarmup: {
			"Kısaca kendinizden ve bu pozisyona olan ilginizden bahseder misiniz?",
			"Kariyer yolculuğunuzdan biraz bahseder misiniz?",
		},
		PhaseTechnical: {
			"En son üzerinde çalıştığınız projeden ve kullandığınız teknolojilerden bahseder misiniz?",
			"Karşılaştığınız teknik bir zorluğu ve çözüm yaklaşımınızı anlatır mısınız?",
		},
		PhaseBehavioral: {
			"Ekip çalışması yaptığınız bir projeden ve katkınızdan bahseder misiniz?",
			"Stresli bir durumu nasıl yönettiğinizi bir örnekle anlatır mısınız?",
		},
		PhaseSituational: {
			"Bir projenin son teslim tarihine yetişmeyeceğini fark etseniz ne yapardınız?",
			"Ekip üyelerinizden biri ile fikir ayrılığı yaşasanız nasıl bir yaklaşım sergilerdiniz?",
		},
		PhaseClosing: {
			"Bizimle ilgili merak ettiğiniz sorular var mı?",
			"Bu pozisyon veya şirketimiz hakkında sormak istediğiniz bir şey var mı?",
		},
	},
	"en": {
		PhaseWarmup: {
			"Could you briefly tell me about yourself and your interest in this position?",
			"Could you tell me a little about your career journey?",
		},
		PhaseTechnical: {
			"Could you tell me about the last project you worked on and the technologies you used?",
			"Could you describe a technical challenge you faced and how you approached it?",
		},
		PhaseBehavioral: {
			"Could you tell me about a team project and your contribution to it?",
			"Could you give an example of how you handled a stressful situation?",
		},
		PhaseSituational: {
			"What would you do if you realised a project was going to miss its deadline?",
			"How would you approach a disagreement with one of your teammates?",
		},
		PhaseClosing: {
			"Do you have any questions for us?",
			"Is there anything you would like to ask about the position or our company?",
		},
	},
}

// Bank is an [llm.Provider] that answers from a fixed set of questions. It is
// meant as the last entry of the generate ranking so that an unreachable
// model degrades to a canned question instead of a failed turn.
type Bank struct {
	pick func(n int) int
}

// NewBank returns a bank that picks questions at random.
func NewBank() *Bank { return &Bank{pick: rand.IntN} }

// Languages lists the languages the bank has questions for.
func (b *Bank) Languages() []string { return []string{"en", "tr"} }

// Complete implements llm.Provider. It answers in req.Language with a
// question for req.Phase; unknown phases use the technical questions.
func (b *Bank) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, &llm.GenerationError{Provider: BankName, Err: err}
	}
	byPhase, ok := bankQuestions[req.Language]
	if !ok {
		return nil, &llm.GenerationError{Provider: BankName, Err: fmt.Errorf("no questions for language %q", req.Language)}
	}
	qs, ok := byPhase[req.Phase]
	if !ok {
		qs = byPhase[PhaseTechnical]
	}
	return &llm.CompletionResponse{Content: qs[b.pick(len(qs))], FinishReason: "stop"}, nil
}
