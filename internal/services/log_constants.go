package services

const (
	LogActionCycle    = "CYCLE"
	LogActionFetch    = "FETCH"
	LogActionParse    = "PARSE"
	LogActionSnapshot = "SNAPSHOT"
	LogActionReplace  = "REPLACE"
	LogOutcomeSuccess = "SUCCESS"
	LogOutcomeFail    = "FAIL"
	LogOutcomeSkipped = "SKIPPED"
)
