package negotiation

import (
	"fmt"
	"sort"
	"strings"
)

const newConversationSeed = "Start a new negotiation based on the user's first message."

// BuildPrompt renders the outreach email instructions for one influencer profile.
// Profile keys are listed in sorted order so identical input yields an identical prompt.
func BuildPrompt(userPrompt string, influencerData map[string]any) string {
	keys := make([]string, 0, len(influencerData))
	for key := range influencerData {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", key, influencerData[key]))
	}
	profile := "None"
	if len(lines) > 0 {
		profile = strings.Join(lines, "\n")
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are writing an email as a representative from InfluAI. Craft an email with:
1. SUBJECT (under 60 chars, attention-grabbing)
2. Two newlines
3. BODY with:
   - Personalized greeting mentioning their recent work
   - Anchor rate 20%% above typical
   - Clear deliverables and perks
   - Urgency and social proof
   - Multiple CTAs
   - No bold formatting (remove ** or any markdown)
   - For contact, use: "DM me @InfluAI" or "email us at hello@influai.com"
   - Maintain professional but friendly tone

--- Influencer Profile ---
%s

--- User Instruction ---
%s

Return EXACTLY:
- First line = SUBJECT
- A blank line
- The full BODY
- No mentions of "top influencer" or similar phrases
- Clean, professional formatting without markdown
`, profile, userPrompt))
}

// Applied in order; stripping emphasis first can expose a phrase rewritten further down.
var replacements = [][2]string{
	{"**", ""},
	{"*", ""},
	{"top influencer", "team at InfluAI"},
	{"leading negotiator", "InfluAI representative"},
	{"best in the business", "InfluAI"},
	{"Priyansh Arora", "InfluAI team"},
	{"@[Your Instagram Handle]", "@InfluAI"},
	{"@[Insert Instagram Handle]", "@InfluAI"},
	{"[Your Phone Number]", "hello@influai.com"},
}

// Clean strips markdown emphasis and rewrites self-promotional phrases and placeholders.
func Clean(text string) string {
	for _, r := range replacements {
		text = strings.ReplaceAll(text, r[0], r[1])
	}
	return strings.TrimSpace(text)
}

// SplitEmail separates the subject line from the body at the first blank line. Text with
// no blank line is returned whole as the body.
func SplitEmail(text string) (subject string, body string) {
	parts := strings.SplitN(text, "\n\n", 2)
	subject = strings.TrimSpace(parts[0])
	if len(parts) < 2 {
		return subject, text
	}
	return subject, strings.TrimSpace(parts[1])
}
