package labels

const systemPrompt = `You are a document classification expert. Analyze document text and generate exactly 3 to 5 high-level category labels.

RULES:
- Labels must be short noun phrases (e.g., "research paper", "invoice", "legal contract")
- Output ONLY a valid JSON array of strings
- No explanations, no markdown, no extra text
- Example output: ["research paper", "scientific study", "academic publication"]`

func buildUserPrompt(text string) string {
	return "DOCUMENT TEXT:\n" + text + "\n\nOUTPUT JSON ARRAY:"
}
