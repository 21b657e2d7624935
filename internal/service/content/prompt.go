package content

import (
	"fmt"
	"strings"

	"github.com/ifuryst/postpilot/internal/models"
)

var platformInstructions = map[models.Platform]string{
	models.PlatformTwitter: "Create an engaging tweet (max 280 characters). Include relevant hashtags.",
	models.PlatformTikTok:  "Create a compelling TikTok caption with hooks and trending hashtags. Keep it engaging and brief.",
}

const defaultInstruction = "Create engaging social media content."

func buildSystemPrompt(platform models.Platform, tone string) string {
	instruction, ok := platformInstructions[platform]
	if !ok {
		instruction = defaultInstruction
	}

	return fmt.Sprintf(`You are a social media content creator specializing in %[1]s posts.
Your goal is to create engaging, authentic content that resonates with the audience.

Tone: %[2]s
Platform: %[1]s
Instructions: %[3]s

Guidelines:
- Be authentic and valuable
- Use emojis sparingly and naturally
- Include 2-3 relevant hashtags
- Keep it concise and impactful
- Don't use overly promotional language`, platform, tone, instruction)
}

func buildUserPrompt(platform models.Platform, knowledge, topics []string, template string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s post.\n", platform)

	if len(knowledge) > 0 {
		b.WriteString("\nKnowledge Base Context:\n")
		b.WriteString(strings.Join(knowledge, "\n"))
		b.WriteString("\n")
	}
	if len(topics) > 0 {
		b.WriteString("\nTrending Topics to Consider:\n")
		b.WriteString(strings.Join(topics, "\n"))
		b.WriteString("\n")
	}
	if t := strings.TrimSpace(template); t != "" {
		b.WriteString("\nCustom Instructions: ")
		b.WriteString(t)
		b.WriteString("\n")
	}

	b.WriteString("\nGenerate only the post content, no explanations.")
	return b.String()
}
