package generator

import "math/rand"

// Approach is a named rhetorical template governing how a generated reply
// engages with a thread.
type Approach struct {
	Name        string
	Instruction string
}

// promotionalApproaches weave the brand into the reply.
var promotionalApproaches = []Approach{
	{"sandwich", "Open with genuine engagement on the thread topic, mention the brand in the middle as one option among others, close with more on-topic discussion."},
	{"story_based", "Tell a short first-person story about facing the same problem, in which the brand appears naturally as part of how things played out."},
	{"before_after", "Describe what a situation was like before and after trying the brand, keeping the focus on the change rather than the product."},
	{"problem_solution", "Restate the poster's problem in your own words, then walk through how you solved it, mentioning the brand as the thing that worked."},
	{"casual_recommendation", "Reply as a regular who has tried a few options and drops the brand as a low-key recommendation alongside an alternative."},
	{"comparison", "Compare two or three approaches to the poster's situation and include the brand as one of them, with an honest tradeoff."},
	{"expert_insight", "Share practical domain knowledge that actually answers the question, and reference the brand once as an example."},
	{"personal_experience", "Write about your own recent experience relevant to the thread, letting the brand come up as a detail rather than the point."},
	{"helpful_resource", "Give a genuinely useful answer and point at the brand as one resource worth checking out, without overselling it."},
	{"subtle_endorsement", "Agree with or build on another sentiment in the thread, and slip in that the brand worked for you in passing."},
}

// organicApproaches engage without mentioning any brand.
var organicApproaches = []Approach{
	{"simple_reaction", "React naturally to the post the way a community regular would, in one or two sentences."},
	{"empathy", "Show that you understand what the poster is going through before anything else; relate to their situation."},
	{"follow_up_question", "Ask a genuine clarifying question that moves the discussion forward."},
	{"quick_tip", "Offer one concrete, immediately usable tip relevant to the post."},
	{"shared_experience", "Share a short personal anecdote about the same situation, no advice needed."},
	{"humor", "Make a light, good-natured joke that fits the subreddit's tone."},
	{"agreement_plus", "Agree with the post and add one new point that extends it."},
	{"gentle_counterpoint", "Respectfully offer a different perspective, acknowledging the poster's view first."},
	{"encouragement", "Encourage the poster; validate what they are trying to do."},
	{"curiosity", "Express genuine curiosity about a detail in the post and riff on it."},
	{"practical_advice", "Give straightforward, experience-based advice on the poster's actual question."},
}

// Selector chooses an approach from a catalog. Selection policy is pluggable;
// production uses uniform random, tests pin a fixed choice.
type Selector interface {
	Select(approaches []Approach) Approach
}

// RandomSelector picks uniformly at random.
type RandomSelector struct{}

// Select returns a random approach from the catalog.
func (RandomSelector) Select(approaches []Approach) Approach {
	return approaches[rand.Intn(len(approaches))]
}

// FixedSelector always returns the approach at a fixed index. Useful for
// deterministic tests and operator-forced approaches.
type FixedSelector struct {
	Index int
}

// Select returns the approach at the configured index.
func (s FixedSelector) Select(approaches []Approach) Approach {
	return approaches[s.Index%len(approaches)]
}

// CatalogFor returns the approach catalog for the given mode.
func CatalogFor(isPromotional bool) []Approach {
	if isPromotional {
		return promotionalApproaches
	}
	return organicApproaches
}

// IsKnownApproach reports whether name belongs to the catalog for the mode.
func IsKnownApproach(name string, isPromotional bool) bool {
	for _, a := range CatalogFor(isPromotional) {
		if a.Name == name {
			return true
		}
	}
	return false
}
