package storage

import "time"

// AnalysisRequestMessage 异步分析请求，原始文件已存入 MinIO
type AnalysisRequestMessage struct {
	AnalysisID        string    `json:"analysis_id"`
	SubmittedAt       time.Time `json:"submitted_at"`
	Mode              string    `json:"mode"`
	OriginalFilename  string    `json:"original_filename"`
	OriginalObjectKey string    `json:"original_object_key"` // MinIO中的对象键
	RawFileMD5        string    `json:"raw_file_md5,omitempty"`
}
