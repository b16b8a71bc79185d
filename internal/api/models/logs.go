package models

import "github.com/tektite-io/voicebox/internal/events"

type LogsRequest struct {
	Since uint64 `query:"since" doc:"Only entries with a sequence number above this"`
	Limit int    `query:"limit" minimum:"0" maximum:"1000" default:"200" doc:"Maximum number of entries, newest last"`
}

// LogsData is a page of buffered log entries.
type LogsData struct {
	Entries []events.LogEntryEvent `json:"entries" doc:"Log entries, oldest first"`
	LastSeq uint64                 `json:"last_seq" doc:"Sequence number to pass as since on the next request"`
}

type LogsResponse struct {
	Body LogsData
}
