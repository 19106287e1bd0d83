package config

// DefaultCategories is the vocabulary written into a fresh config file.
// Earlier entries win when several patterns match the same post.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{
			Name:    "self_harm",
			Pattern: `\b(?:end(?:ing)? my life|kill(?:ing)? myself|suicid(?:e|al)|self[- ]?harm(?:ing)?|cut(?:ting)? myself|want(?:ed)? to die|hopeless(?:ness)?)\b`,
		},
		{
			Name:    "crying",
			Pattern: `\b(?:cry(?:ing)?|cried|cries|tears?|sobb(?:ing|ed))\b`,
		},
		{
			Name:    "hate_me",
			Pattern: `\b(?:(?:every(?:one|body)|they all|people) hates? me|hate me|hate myself|nobody likes me)\b`,
		},
		{
			Name:    "loneliness",
			Pattern: `\b(?:lonel(?:y|iness)|alone|isolat(?:ed|ion)|no friends?|no one to talk to)\b`,
		},
		{
			Name:    "work_burnout",
			Pattern: `\b(?:burn(?:t|ed)? ?out|quit(?:ting)? my job|overwork(?:ed)?|exhaust(?:ed|ion)|toxic (?:boss|workplace|job)|hate my job)\b`,
		},
		{
			Name:    "anxiety",
			Pattern: `\b(?:anxi(?:ety|ous)|panic(?:king)?(?: attacks?)?|overthink(?:ing)?|can'?t breathe)\b`,
		},
		{
			Name:    "relationship",
			Pattern: `\b(?:break ?up|broke up|divorce[d]?|cheat(?:ed|ing)|(?:my )?(?:ex|boyfriend|girlfriend|husband|wife|partner))\b`,
		},
	}
}
