package logging

// Standardized attribute keys. Components use these instead of ad hoc strings
// so log output stays greppable across phases.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldPhase     = "phase"
	FieldRunID     = "run_id"
	FieldFeedID    = "feed_id"
	FieldEpisodeID = "episode_id"
	FieldGUID      = "guid"
	FieldTopic     = "topic"
	FieldChunk     = "chunk"
	FieldStatus    = "status"
)
