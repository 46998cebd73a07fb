package rag

const questionPrompt = `You are a helpful assistant for a children's illustration book website.
You have access to the story context and the story logic rules given by the user.

Answer the question based on the story context while respecting the story logic rules.
If you cannot answer from the context, say so politely.
Keep responses friendly, engaging, and appropriate for children.`

const questionTemplate = `STORY CONTEXT:
%s

STORY LOGIC RULES:
%s

USER QUESTION: %s`

const validationPrompt = `You validate proposed expansions to a children's story.

Check the proposal for:
1. Consistency with established characters
2. Adherence to world rules
3. Logical cause-and-effect
4. Thematic alignment

Return the result as JSON:
{"is_permissible": true|false, "reasoning": "explanation", "suggestions": ["suggestion", "..."]}`

const validationTemplate = `PROPOSAL: %s

EXISTING STORY LOGIC:
%s

EXISTING CONTEXT:
%s`
