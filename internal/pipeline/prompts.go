package pipeline

import "fmt"

// SummaryPrompt is the system instruction for the summarization stage.
const SummaryPrompt = `You are a professional meeting assistant. Analyze the meeting transcript you are given and summarize it.
Respond with a single JSON object that has exactly three keys: "agenda", "decisions" and "risks".
- "agenda": a concise list of the main topics discussed.
- "decisions": every concrete decision that was made.
- "risks": every risk, blocker or open issue that was raised.
Each value is an array of strings. Use an empty array when there is nothing to report.
Do not output anything outside the JSON object.`

// ActionItemsPrompt is the system instruction for action-item extraction. It embeds ActionItemSchema.
var ActionItemsPrompt = fmt.Sprintf(`You are an expert at extracting structured data from text.
Read the meeting transcript you are given and extract every action item.
Respond with a JSON array. Every element must conform to this JSON Schema:
%s
Only fill "owner", "due_date" or "priority" when the transcript states them; otherwise leave the key out. Never invent information.
Respond with an empty array if there are no action items. Do not output anything outside the JSON array.`, ActionItemSchema)

const repairTemplate = `Your previous answer could not be used: %s.
It was not valid JSON or it did not match the required format.
Correct it and respond with %s only, following the original instructions exactly.

Original transcript:
%s

Invalid output:
%s`

// repairPrompt builds the user turn that asks the generator to fix its own output.
func repairPrompt(shape, source, invalid string, cause error) string {
	return fmt.Sprintf(repairTemplate, cause, shape, source, invalid)
}
