package interview

import "strings"

// Welcome returns the opening line spoken before the first question, in the
// candidate's language. Languages other than Turkish get the English text.
func Welcome(lang string, job Job, cand Candidate) string {
	var tmpl string
	switch lang {
	case "tr":
		tmpl = "Merhaba {name}, {company} şirketinin {title} pozisyonu için bugün sizinle görüşeceğim. Hazırsanız başlayalım."
	default:
		tmpl = "Hello {name}, today I will be interviewing you for the {title} position at {company}. Let's begin whenever you are ready."
	}
	return strings.NewReplacer(
		"{name}", orDefault(cand.Name, "there"),
		"{company}", orDefault(job.Company, "our company"),
		"{title}", orDefault(job.Title, "open"),
	).Replace(tmpl)
}

// Closing returns the line spoken after the last answer.
func Closing(lang string) string {
	switch lang {
	case "tr":
		return "Mülakat tamamlandı. Zaman ayırdığınız için teşekkür ederiz. En kısa sürede size dönüş yapacağız."
	default:
		return "The interview is complete. Thank you for your time. We will get back to you as soon as possible."
	}
}
