package prompts

// SeasonLabels is the closed label set the classifier is allowed to answer
// with. Kept here so the prompt text and the parser stay in sync.
var SeasonLabels = []string{"Spring", "Summer", "Autumn", "Winter"}

// SeasonPrompt constrains the vision model to answer with exactly one label
// word. The wording matters: looser phrasings make small models chatty, and
// anything beyond a single word fails label parsing.
const SeasonPrompt = "Analyze the following image and determine which of the four seasons it best represents: " +
	"Spring, Summer, Autumn, or Winter. Respond with only one word from the list: [Spring, Summer, Autumn, Winter]."
