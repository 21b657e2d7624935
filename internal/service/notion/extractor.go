package notion

import (
	"strings"

	"github.com/ifuryst/postpilot/internal/models"
)

func extractTitle(properties map[string]any) string {
	for _, prop := range properties {
		propMap, ok := prop.(map[string]any)
		if !ok || propMap["type"] != "title" {
			continue
		}
		if title := joinPlainText(propMap["title"]); title != "" {
			return title
		}
	}
	return "Untitled"
}

// extractTags reads the first multi_select property as keywords.
func extractTags(properties map[string]any) models.StringArray {
	for _, prop := range properties {
		propMap, ok := prop.(map[string]any)
		if !ok || propMap["type"] != "multi_select" {
			continue
		}
		tags, ok := propMap["multi_select"].([]any)
		if !ok {
			continue
		}
		names := models.StringArray{}
		for _, tag := range tags {
			if tagMap, ok := tag.(map[string]any); ok {
				if name, ok := tagMap["name"].(string); ok && name != "" {
					names = append(names, name)
				}
			}
		}
		return names
	}
	return models.StringArray{}
}

func extractTextFromBlock(block map[string]any) string {
	blockType, ok := block["type"].(string)
	if !ok {
		return ""
	}
	blockContent, ok := block[blockType].(map[string]any)
	if !ok {
		return ""
	}
	return joinPlainText(blockContent["rich_text"])
}

func joinPlainText(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if text, ok := m["plain_text"].(string); ok {
				b.WriteString(text)
			}
		}
	}
	return b.String()
}
