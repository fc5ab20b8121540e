package assistant

// parsePromptTemplate is the instruction block sent to the model for
// scheduling-request parsing. The %s placeholder receives the user's
// raw text.
func parsePromptTemplate() string {
	return `You are a calendar assistant. Parse the user's request into structured JSON.

USER REQUEST:
%s

Extract:
- title: what the event is (e.g., "Walk", "Study session")
- duration_minutes: how long, in minutes
- count: how many times the event should happen
- time_range: when to schedule, one of "today", "next_3_days", "this_week"
- preferred_time: time-of-day preference, one of "morning", "afternoon", "evening", "none"

Rules:
- "half an hour" means 30 minutes; "an hour" means 60
- If no time range is stated, use "this_week"
- If no time-of-day preference is stated, use "none"
- duration_minutes and count must be positive integers

Examples:
"I want to go for a walk for half an hour 3 times this week" ->
{"title": "Walk", "duration_minutes": 30, "count": 3, "time_range": "this_week", "preferred_time": "none"}

"Schedule 2 study sessions of 2 hours each in the mornings this week" ->
{"title": "Study session", "duration_minutes": 120, "count": 2, "time_range": "this_week", "preferred_time": "morning"}

"Find me an hour for the gym tomorrow evening or the day after" ->
{"title": "Gym", "duration_minutes": 60, "count": 1, "time_range": "next_3_days", "preferred_time": "evening"}

Return ONLY valid JSON, no explanations.`
}
