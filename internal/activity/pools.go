package activity

import "github.com/p-blackswan/buddy/internal/tasks"

// Topics mixed into generation prompts so consecutive tasks differ.
var topics = map[tasks.Category][]string{
	tasks.Gratitude: {"a color", "a song", "a feeling", "a friend", "funny moment", "tasty food", "nature", "happy memory"},
	tasks.Move:      {"animal", "superhero", "robot", "slow motion", "balance", "sports", "silly walk", "stretch", "jumping"},
	tasks.Kindness:  {"a family member", "a friend", "helping at home", "giving a compliment", "sharing", "saying thank you"},
	tasks.Calm:      {"listening sounds", "favorite color", "textures", "body scan", "peaceful place"},
}

// screenKeys maps a category to the translation section holding its pool.
var screenKeys = map[tasks.Category]string{
	tasks.Gratitude: "gratitude_screen",
	tasks.Move:      "move_screen",
	tasks.Kindness:  "kindness_screen",
	tasks.Calm:      "calm_zone_screen",
}

// builtinPools are used when a language pack has no fallback_tasks list.
var builtinPools = map[tasks.Category][]string{
	tasks.Gratitude: {
		"What made you smile today?",
		"Who is a friend you are thankful for, and why?",
		"What is your favorite food and who makes it best?",
		"What is something in nature you love?",
		"What is a happy memory you like to think about?",
	},
	tasks.Move: {
		"Do 10 star jumps!",
		"Walk like a penguin across the room.",
		"Stand on one foot and count to 15.",
		"Stretch up to the sky, then touch your toes 5 times.",
	},
	tasks.Kindness: {
		"Give someone in your family a compliment.",
		"Say thank you to someone who helped you today.",
		"Share something you like with a friend.",
		"Help tidy up one room at home.",
	},
	tasks.Calm: {
		"Close your eyes and listen for three different sounds.",
		"Think of your favorite color and imagine breathing it in.",
		"Feel the texture of something near you for one minute.",
		"Picture a peaceful place and notice what you see there.",
	},
}

// lastResort is the task offered when the model replied with blank text.
var lastResort = map[tasks.Category]string{
	tasks.Gratitude: "Think of something nice!",
	tasks.Move:      "Let's move!",
	tasks.Kindness:  "Do something kind today.",
	tasks.Calm:      "Take a deep breath.",
}

const defaultReflectionPrompt = "What was the best part of your day?"
