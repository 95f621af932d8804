// Package interview holds what the interviewer knows about the job and the
// candidate, the phase plan that drives the conversation, and the prompts
// sent to the generator.
package interview

import (
	"fmt"
	"strings"
)

// Requirements describes what the position asks for.
type Requirements struct {
	TechnicalSkills []string `yaml:"technical_skills" json:"technical_skills,omitempty"`
	ExperienceYears int      `yaml:"experience_years" json:"experience_years,omitempty"`
	Education       string   `yaml:"education"        json:"education,omitempty"`
}

// Job is the position being interviewed for.
type Job struct {
	Title        string       `yaml:"title"        json:"title"`
	Company      string       `yaml:"company"      json:"company"`
	Requirements Requirements `yaml:"requirements" json:"requirements"`
}

// Candidate is the person being interviewed.
type Candidate struct {
	Name            string   `yaml:"name"             json:"name"`
	CurrentPosition string   `yaml:"current_position" json:"current_position,omitempty"`
	YearsExperience int      `yaml:"years_experience" json:"years_experience,omitempty"`
	KeySkills       []string `yaml:"key_skills"       json:"key_skills,omitempty"`
}

// Summary renders the requirements one per line, skipping empty fields.
func (r Requirements) Summary() string {
	var lines []string
	if len(r.TechnicalSkills) > 0 {
		lines = append(lines, "Technical Skills: "+strings.Join(r.TechnicalSkills, ", "))
	}
	if r.ExperienceYears > 0 {
		lines = append(lines, fmt.Sprintf("Experience: %d years", r.ExperienceYears))
	}
	if r.Education != "" {
		lines = append(lines, "Education: "+r.Education)
	}
	return strings.Join(lines, "\n")
}

// Summary renders the candidate background one per line, skipping empty
// fields.
func (c Candidate) Summary() string {
	var lines []string
	if c.CurrentPosition != "" {
		lines = append(lines, "Current Position: "+c.CurrentPosition)
	}
	if c.YearsExperience > 0 {
		lines = append(lines, fmt.Sprintf("Total Experience: %d years", c.YearsExperience))
	}
	if len(c.KeySkills) > 0 {
		lines = append(lines, "Key Skills: "+strings.Join(c.KeySkills, ", "))
	}
	return strings.Join(lines, "\n")
}

// Labels returns the session metadata recorded for this interview.
func Labels(job Job, cand Candidate) map[string]string {
	return map[string]string{
		"job_title": job.Title,
		"company":   job.Company,
		"candidate": cand.Name,
	}
}

// Vocabulary returns the names and skills a speech recogniser is likely to
// mishear during this interview.
func Vocabulary(job Job, cand Candidate) []string {
	terms := []string{job.Company, cand.Name}
	terms = append(terms, job.Requirements.TechnicalSkills...)
	terms = append(terms, cand.KeySkills...)
	out := terms[:0]
	for _, t := range terms {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}
