package chat

// baseSystemPrompt is the fixed instruction block every turn starts from.
// Augmentations append to it in a fixed order: memory first, then academic.
const baseSystemPrompt = `You are a helpful AI assistant. Answer the user's questions clearly and accurately. Use markdown formatting where it improves readability. If you are unsure about something, say so rather than guessing.`

// memoryPromptHeader introduces the stored user memory block.
const memoryPromptHeader = `

The user has shared the following facts about themselves in past conversations. Use them to personalize your answers when relevant, and do not ask for information already present here:
`

// memoryToolHint is appended when the memory tool is registered for the turn.
const memoryToolHint = `
When the user shares a new lasting fact about themselves (preferences, background, ongoing projects), call the remember_fact tool with a single short sentence describing it. Do not announce that you are saving it.`

// academicPromptHeader introduces retrieved sources for academic mode.
const academicPromptHeader = `

The following sources were retrieved for this question. Ground your answer in them and cite each source you use by its number in the form [n]:
`

// academicPromptFooter closes the academic block.
const academicPromptFooter = `
Base your answer on these sources. If they do not cover the question, say so explicitly before answering from general knowledge.`
