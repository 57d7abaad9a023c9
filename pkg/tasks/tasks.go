// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// IngestTask represents an asynchronous document ingestion job.
// The PDF bytes are staged in object storage under ObjectName.
type IngestTask struct {
	FileMD5    string `json:"file_md5"`
	FileName   string `json:"file_name"`
	ObjectName string `json:"object_name"`
	RecordID   uint   `json:"record_id"`
	SessionID  string `json:"session_id"`
}
