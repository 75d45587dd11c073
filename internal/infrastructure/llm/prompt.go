package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"HustleCollector/internal/domain"
)

const maxPostRunes = 6000

const defaultSystemPrompt = `You extract structured side-hustle case studies from forum posts, product launches and community stories.
Answer with a single JSON object and nothing else. Use exactly these keys:
relevant (boolean: false when the text is not a side hustle or income story),
title, description, income, time_required, tools (array of strings), steps (array of strings),
category, difficulty (one of "beginner", "intermediate", "advanced" or ""),
investment_required, skills_needed, target_audience, potential_risks, success_rate,
time_to_profit, scalability, location_flexible (boolean), age_restriction, revenue_model,
competition_level, market_trend, key_metrics, tags (array of short lowercase strings).
Only state facts present in or directly inferable from the text. Use "" for anything unknown.
Never invent numbers: income, success_rate and key_metrics must come from the text.`

func systemPrompt(custom string) string {
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return defaultSystemPrompt
	}
	return custom
}

func userPrompt(post domain.RawPost) string {
	body := post.Body
	if utf8.RuneCountInString(body) > maxPostRunes {
		body = string([]rune(body)[:maxPostRunes])
	}
	return fmt.Sprintf("Source: %s\nURL: %s\nTitle: %s\n\n%s", post.SourceType, post.URL, post.Title, body)
}
