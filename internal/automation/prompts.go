package automation

import (
	"encoding/json"
	"fmt"

	"github.com/influai/control-plane/internal/influencer"
)

func understandingPrompt(req Request) string {
	return fmt.Sprintf(`Analyze the following campaign details to understand its core objectives and target audience:
Campaign Name: %s
Campaign Goals: %s
Industry: %s
Budget: %s
Provide a concise summary of the campaign's essence and key considerations for AI automation.`,
		req.Name, req.Goals, req.Industry, req.Budget)
}

func planningPrompt(req Request) string {
	return fmt.Sprintf(`Based on the understanding of the campaign "%s" (Goals: %s, Industry: %s, Budget: %s), outline a strategic plan for AI-driven influencer outreach. Include ideas for content prompts, target influencer demographics, and initial setup considerations.`,
		req.Name, req.Goals, req.Industry, req.Budget)
}

func selectionPrompt(req Request, candidates []influencer.Candidate) string {
	profiles, err := json.Marshal(influencer.Summaries(candidates))
	if err != nil {
		profiles = []byte("[]")
	}
	return fmt.Sprintf(`Based on the campaign details for "%s" and the following influencer profiles: %s, explain how the AI would select the best-fit influencers for this campaign. Focus on criteria like audience alignment, engagement, and past performance.`,
		req.Name, profiles)
}

func negotiationPrompt(req Request) string {
	return fmt.Sprintf(`Describe how the AI would initiate and manage direct negotiations with the selected influencers for the "%s" campaign. What key points would it cover, and how would it aim to secure optimal terms within the budget of %s?`,
		req.Name, req.Budget)
}
