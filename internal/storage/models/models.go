package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// AnalysisRecord 简历字段提取记录表
type AnalysisRecord struct {
	AnalysisID        string         `gorm:"type:char(36);primaryKey"`
	Mode              string         `gorm:"type:varchar(20);not null"`
	Source            string         `gorm:"type:varchar(20)"`
	OriginalFilename  string         `gorm:"type:varchar(255)"`
	OriginalObjectKey string         `gorm:"type:varchar(1024)"`
	TextMD5           string         `gorm:"type:char(32);index:idx_ar_text_md5"`
	FieldsJSON        datatypes.JSON `gorm:"type:json"`
	Report            string         `gorm:"type:text"`
	Degraded          bool           `gorm:"default:false"`
	DegradedReason    string         `gorm:"type:varchar(512)"`
	Status            string         `gorm:"type:varchar(50);default:'QUEUED';index:idx_ar_status"`
	ErrorMessage      string         `gorm:"type:text"`
	DurationMS        int64
	ParserVersion     string    `gorm:"type:varchar(50)"`
	CreatedAt         time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_ar_created_at"`
	UpdatedAt         time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (AnalysisRecord) TableName() string {
	return "analysis_records"
}

// DecodeFields 把 FieldsJSON 解到 dest，字段为空时不做任何事
func (r *AnalysisRecord) DecodeFields(dest interface{}) error {
	if len(r.FieldsJSON) == 0 {
		return nil
	}
	return json.Unmarshal(r.FieldsJSON, dest)
}
